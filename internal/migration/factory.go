package migration

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/flowcore/config"
)

// NewMigratorFromDatabaseConfig creates a migrator from the application's
// database section. sqlite yields ErrNoSQLMigrations.
func NewMigratorFromDatabaseConfig(dbCfg config.DatabaseConfig, logger *zap.Logger) (*DefaultMigrator, error) {
	dbType, err := ParseDatabaseType(dbCfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("invalid database type: %w", err)
	}
	if dbType == DatabaseTypeSQLite {
		return nil, ErrNoSQLMigrations
	}

	url := BuildDatabaseURL(dbType, dbCfg.Host, dbCfg.Port, dbCfg.Name, dbCfg.User, dbCfg.Password, dbCfg.SSLMode)
	return NewMigrator(Config{DatabaseType: dbType, DatabaseURL: url}, logger)
}
