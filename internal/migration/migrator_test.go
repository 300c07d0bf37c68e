package migration

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/flowcore/config"
)

func TestParseDatabaseType(t *testing.T) {
	tests := []struct {
		input    string
		expected DatabaseType
		wantErr  bool
	}{
		{"postgres", DatabaseTypePostgres, false},
		{"postgresql", DatabaseTypePostgres, false},
		{"pg", DatabaseTypePostgres, false},
		{"mysql", DatabaseTypeMySQL, false},
		{"mariadb", DatabaseTypeMySQL, false},
		{"sqlite", DatabaseTypeSQLite, false},
		{"sqlite3", DatabaseTypeSQLite, false},
		{"POSTGRES", DatabaseTypePostgres, false},
		{"invalid", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseDatabaseType(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestBuildDatabaseURL(t *testing.T) {
	assert.Equal(t,
		"postgres://flow:secret@db:5432/flowcore?sslmode=disable",
		BuildDatabaseURL(DatabaseTypePostgres, "db", 5432, "flowcore", "flow", "secret", "disable"))
	assert.Equal(t,
		"postgres://flow:secret@db:5432/flowcore?sslmode=require",
		BuildDatabaseURL(DatabaseTypePostgres, "db", 5432, "flowcore", "flow", "secret", ""))
	assert.Equal(t,
		"flow:secret@tcp(db:3306)/flowcore?parseTime=true&multiStatements=true",
		BuildDatabaseURL(DatabaseTypeMySQL, "db", 3306, "flowcore", "flow", "secret", ""))
	assert.Empty(t, BuildDatabaseURL(DatabaseTypeSQLite, "", 0, "flow.db", "", "", ""))
}

func TestAvailableMigrations(t *testing.T) {
	for _, dbType := range []DatabaseType{DatabaseTypePostgres, DatabaseTypeMySQL} {
		t.Run(string(dbType), func(t *testing.T) {
			files, err := AvailableMigrations(dbType)
			require.NoError(t, err)
			require.NotEmpty(t, files)
			assert.Equal(t, MigrationFile{Version: 1, Name: "init_schema"}, files[0])
			for i := 1; i < len(files); i++ {
				assert.Greater(t, files[i].Version, files[i-1].Version)
			}

			// 每个 up 都有对应的 down
			for _, f := range files {
				entries, err := fs.Glob(migrationsFS, GetMigrationsPath(dbType)+"/*_"+f.Name+".down.sql")
				require.NoError(t, err)
				assert.Len(t, entries, 1, f.Name)
			}
		})
	}

	_, err := AvailableMigrations(DatabaseTypeSQLite)
	assert.ErrorIs(t, err, ErrNoSQLMigrations)
}

func TestEmbeddedSchemaCoversTables(t *testing.T) {
	tables := []string{"agent", "plugin", "message_history", "knowledge_chunk", "execution_log"}
	for _, dbType := range []DatabaseType{DatabaseTypePostgres, DatabaseTypeMySQL} {
		data, err := fs.ReadFile(migrationsFS, GetMigrationsPath(dbType)+"/000001_init_schema.up.sql")
		require.NoError(t, err)
		for _, table := range tables {
			assert.Contains(t, string(data), "CREATE TABLE IF NOT EXISTS "+table+" (", "%s: %s", dbType, table)
		}
	}
}

func TestBuildStatusAndSummary(t *testing.T) {
	files := []MigrationFile{{1, "init_schema"}, {2, "add_index"}, {3, "add_column"}}

	statuses := buildStatus(files, 2, true)
	require.Len(t, statuses, 3)
	assert.True(t, statuses[0].Applied)
	assert.True(t, statuses[1].Applied)
	assert.True(t, statuses[1].Dirty)
	assert.False(t, statuses[2].Applied)

	info := summarize(statuses, 2, true)
	assert.Equal(t, &MigrationInfo{
		CurrentVersion:    2,
		Dirty:             true,
		TotalMigrations:   3,
		AppliedMigrations: 2,
		PendingMigrations: 1,
	}, info)
}

func TestNewMigrator_InvalidConfig(t *testing.T) {
	_, err := NewMigrator(Config{DatabaseType: DatabaseTypePostgres}, nil)
	assert.ErrorContains(t, err, "database URL is required")

	_, err = NewMigrator(Config{DatabaseType: DatabaseTypeSQLite, DatabaseURL: "file:x.db"}, nil)
	assert.ErrorIs(t, err, ErrNoSQLMigrations)

	_, err = NewMigratorFromDatabaseConfig(config.DatabaseConfig{Driver: "sqlite", Name: "x.db"}, zap.NewNop())
	assert.ErrorIs(t, err, ErrNoSQLMigrations)

	_, err = NewMigratorFromDatabaseConfig(config.DatabaseConfig{Driver: "oracle"}, zap.NewNop())
	assert.ErrorContains(t, err, "invalid database type")
}

// =============================================================================
// CLI
// =============================================================================

type fakeMigrator struct {
	version uint
	dirty   bool
	files   []MigrationFile
	err     error
	calls   []string
}

func (f *fakeMigrator) Up(context.Context) error {
	f.calls = append(f.calls, "up")
	if f.err == nil {
		f.version = f.files[len(f.files)-1].Version
	}
	return f.err
}

func (f *fakeMigrator) Down(context.Context) error {
	f.calls = append(f.calls, "down")
	if f.version > 0 {
		f.version--
	}
	return f.err
}

func (f *fakeMigrator) Steps(_ context.Context, n int) error {
	f.calls = append(f.calls, "steps")
	f.version = uint(int(f.version) + n)
	return f.err
}

func (f *fakeMigrator) Force(_ context.Context, v int) error {
	f.calls = append(f.calls, "force")
	f.version = uint(v)
	return f.err
}

func (f *fakeMigrator) Version(context.Context) (uint, bool, error) {
	return f.version, f.dirty, nil
}

func (f *fakeMigrator) Status(context.Context) ([]MigrationStatus, error) {
	return buildStatus(f.files, f.version, f.dirty), nil
}

func (f *fakeMigrator) Info(ctx context.Context) (*MigrationInfo, error) {
	statuses, _ := f.Status(ctx)
	return summarize(statuses, f.version, f.dirty), nil
}

func (f *fakeMigrator) Close() error { return nil }

func newCLI(m Migrator) (*CLI, *bytes.Buffer) {
	var buf bytes.Buffer
	cli := NewCLI(m)
	cli.SetOutput(&buf)
	return cli, &buf
}

func TestCLI_UpAndStatus(t *testing.T) {
	m := &fakeMigrator{files: []MigrationFile{{1, "init_schema"}, {2, "add_index"}}}
	cli, out := newCLI(m)
	ctx := context.Background()

	require.NoError(t, cli.RunVersion(ctx))
	assert.Contains(t, out.String(), "No migrations applied yet")

	require.NoError(t, cli.RunUp(ctx))
	assert.Contains(t, out.String(), "Migrations complete. Current version: 2")

	out.Reset()
	require.NoError(t, cli.RunDown(ctx))
	require.NoError(t, cli.RunStatus(ctx))
	lines := strings.Split(out.String(), "\n")
	assert.Equal(t, "Rollback complete. Current version: 1", lines[1])
	assert.Equal(t, "000001   init_schema  Applied", lines[3])
	assert.Equal(t, "000002   add_index    Pending", lines[4])
	assert.Contains(t, out.String(), "Total: 2, Applied: 1, Pending: 1")
}

func TestCLI_StepsForceVersion(t *testing.T) {
	m := &fakeMigrator{files: []MigrationFile{{1, "init_schema"}, {2, "add_index"}}}
	cli, out := newCLI(m)
	ctx := context.Background()

	require.NoError(t, cli.RunSteps(ctx, 2))
	assert.Contains(t, out.String(), "Applying 2 migration(s)")
	require.NoError(t, cli.RunSteps(ctx, -1))
	assert.Contains(t, out.String(), "Rolling back 1 migration(s)")

	require.NoError(t, cli.RunForce(ctx, 2))
	m.dirty = true
	out.Reset()
	require.NoError(t, cli.RunVersion(ctx))
	assert.Equal(t, "Current version: 2 (dirty)\n", out.String())
	assert.Equal(t, []string{"steps", "steps", "force"}, m.calls)
}

func TestCLI_Errors(t *testing.T) {
	boom := errors.New("locked")
	m := &fakeMigrator{files: []MigrationFile{{1, "init_schema"}}, err: boom}
	cli, _ := newCLI(m)

	assert.ErrorIs(t, cli.RunUp(context.Background()), boom)
	assert.ErrorIs(t, cli.RunDown(context.Background()), boom)
	assert.ErrorIs(t, cli.RunForce(context.Background(), 1), boom)

	empty, out := newCLI(&fakeMigrator{})
	require.NoError(t, empty.RunStatus(context.Background()))
	assert.Contains(t, out.String(), "No migrations found")
}
