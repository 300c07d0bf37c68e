package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/BaSui01/flowcore/internal/database"
	"github.com/BaSui01/flowcore/internal/migration"
	"github.com/BaSui01/flowcore/store"
)

// =============================================================================
// Database Migration Commands
// =============================================================================

const migrateUsage = `Database Migration Commands

Usage:
  flowcore migrate <subcommand> [options]

Subcommands:
  up              Apply all pending migrations
  down            Rollback the last migration
  steps <n>       Apply (n > 0) or rollback (n < 0) n migrations
  status          Show migration status
  version         Show current migration version
  force <version> Force set migration version (use with caution)

Options:
  --config <path>     Path to configuration file (YAML)

sqlite databases have no SQL migrations; "up" creates their tables directly.`

// runMigrate handles the migrate command and its subcommands
func runMigrate(args []string, stdout io.Writer) error {
	if len(args) < 1 {
		fmt.Fprintln(stdout, migrateUsage)
		return errUsage
	}
	sub, rest := args[0], args[1:]
	if sub == "help" || sub == "-h" || sub == "--help" {
		fmt.Fprintln(stdout, migrateUsage)
		return nil
	}

	var n int
	switch sub {
	case "steps", "force":
		if len(rest) < 1 {
			return fmt.Errorf("migrate %s: number required: %w", sub, errUsage)
		}
		v, err := strconv.Atoi(rest[0])
		if err != nil {
			return fmt.Errorf("migrate %s: invalid number %q: %w", sub, rest[0], errUsage)
		}
		n, rest = v, rest[1:]
	case "up", "down", "status", "version":
	default:
		return fmt.Errorf("unknown migrate subcommand %q: %w", sub, errUsage)
	}

	var cf commonFlags
	fs := newFlagSet("migrate "+sub, &cf)
	if err := fs.Parse(rest); err != nil {
		return err
	}
	cfg, logger, _, err := loadConfig(cf)
	if err != nil {
		return err
	}
	defer logger.Sync()

	migrator, err := migration.NewMigratorFromDatabaseConfig(cfg.Database, logger)
	if errors.Is(err, migration.ErrNoSQLMigrations) {
		if sub != "up" {
			return fmt.Errorf("migrate %s: %w", sub, err)
		}
		return autoMigrate(cfg.Database.Driver, cfg.Database.DSN(), stdout)
	}
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer migrator.Close()

	cli := migration.NewCLI(migrator)
	cli.SetOutput(stdout)
	ctx := context.Background()

	switch sub {
	case "up":
		return cli.RunUp(ctx)
	case "down":
		return cli.RunDown(ctx)
	case "steps":
		return cli.RunSteps(ctx, n)
	case "force":
		return cli.RunForce(ctx, n)
	case "version":
		return cli.RunVersion(ctx)
	default:
		return cli.RunStatus(ctx)
	}
}

// autoMigrate 为没有 SQL 迁移的驱动直接建表
func autoMigrate(driver, dsn string, stdout io.Writer) error {
	db, err := database.Open(driver, dsn, nil)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}
	if err := store.AutoMigrate(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	fmt.Fprintln(stdout, "Schema is up to date (auto-migrated)")
	return nil
}
