// Command migrate applies or inspects the embedded database schema.
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/civicwatch/incident-portal/internal/config"
	"github.com/civicwatch/incident-portal/internal/database"
	"github.com/civicwatch/incident-portal/internal/logger"
	"github.com/golang-migrate/migrate/v4"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	sugar := log.Sugar()

	if cfg.DatabaseURL == "" {
		sugar.Fatal("DATABASE_URL is required")
	}

	m, err := database.NewMigrator(cfg.DatabaseURL, cfg.MigrationsTable)
	if err != nil {
		sugar.Fatalf("Failed to init migrator: %v", err)
	}
	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			sugar.Warnw("Failed to close migrator", "source_error", sourceErr, "db_error", dbErr)
		}
	}()

	switch command {
	case "up":
		err := m.Up()
		switch {
		case errors.Is(err, migrate.ErrNoChange):
			sugar.Info("No change: schema is up to date")
		case err != nil:
			sugar.Fatalf("Migrate up failed: %v", err)
		default:
			sugar.Info("Migrations applied")
		}

	case "down":
		// Roll back the most recent migration only
		if err := m.Steps(-1); err != nil {
			sugar.Fatalf("Rollback failed: %v", err)
		}
		sugar.Info("Rolled back one migration")

	case "goto":
		if len(os.Args) < 3 {
			sugar.Fatal("goto needs a version number")
		}
		version, err := strconv.ParseUint(os.Args[2], 10, 64)
		if err != nil {
			sugar.Fatalf("Invalid version: %v", err)
		}
		err = m.Migrate(uint(version))
		switch {
		case errors.Is(err, migrate.ErrNoChange):
			sugar.Infof("No change: already at version %d", version)
		case err != nil:
			sugar.Fatalf("Migrate to version %d failed: %v", version, err)
		default:
			sugar.Infof("Migrated to version %d", version)
		}

	case "version", "status":
		version, dirty, err := m.Version()
		switch {
		case errors.Is(err, migrate.ErrNilVersion):
			sugar.Info("No migrations applied yet")
		case err != nil:
			sugar.Fatalf("Failed to read version: %v", err)
		default:
			sugar.Infow("Current schema version", "version", version, "dirty", dirty)
		}

	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: migrate <command>")
	fmt.Println("Commands:")
	fmt.Println("  up       apply all pending migrations")
	fmt.Println("  down     roll back the last migration")
	fmt.Println("  goto N   migrate to version N")
	fmt.Println("  version  print the current schema version")
}
