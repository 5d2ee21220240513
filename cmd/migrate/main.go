package main

// Run database migrations:
//   go run ./cmd/migrate
//   go run ./cmd/migrate -status

import (
	"context"
	"flag"
	"os"

	"admissions-portal/internal/shared/config"
	"admissions-portal/internal/shared/storage/db"
	"admissions-portal/internal/shared/telemetry"
)

func main() {
	status := flag.Bool("status", false, "print migration status instead of applying")
	flag.Parse()

	cfg := config.Load()
	ctx := context.Background()

	opts := db.OptionsFromEnv(db.DefaultMigrateOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		telemetry.Error("migrate.connect_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	defer sqlDB.Close()

	if *status {
		err = db.MigrationStatus(ctx, sqlDB)
	} else {
		err = db.RunMigrations(ctx, sqlDB)
	}
	if err != nil {
		telemetry.Error("migrate.failed", map[string]any{"error": err.Error()})
		sqlDB.Close()
		os.Exit(1)
	}
	telemetry.Info("migrate.done", map[string]any{"status_only": *status})
}
