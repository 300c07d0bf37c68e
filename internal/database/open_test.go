package database

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/flowcore/internal/metrics"
)

func TestDialector(t *testing.T) {
	for _, driver := range []string{DriverPostgres, DriverMySQL, DriverSQLite} {
		d, err := Dialector(driver, "dsn")
		require.NoError(t, err, driver)
		assert.Equal(t, driver, d.Name())
	}

	_, err := Dialector("oracle", "dsn")
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestOpen_SQLite(t *testing.T) {
	_, err := Open("", "", nil)
	assert.Error(t, err)

	db, err := Open(DriverSQLite, ":memory:", zaptest.NewLogger(t))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	var one int
	require.NoError(t, db.WithContext(context.Background()).Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
}

type probe struct {
	ID   int
	Name string
}

func TestInstrumentQueries(t *testing.T) {
	db, err := Open(DriverSQLite, ":memory:", zap.NewNop())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector("test", reg, zap.NewNop())
	require.NoError(t, InstrumentQueries(db, collector))
	require.NoError(t, InstrumentQueries(db, nil))

	require.NoError(t, db.AutoMigrate(&probe{}))
	require.NoError(t, db.Create(&probe{ID: 1, Name: "a"}).Error)
	var got []probe
	require.NoError(t, db.Find(&got).Error)
	require.Len(t, got, 1)

	n, err := testutil.GatherAndCount(reg, "test_db_query_duration_seconds")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 2, "create and query series")
}
