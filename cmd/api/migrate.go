package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"workreport/api/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply or roll back database migrations",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"up", "down"},
	RunE:      runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := store.Open(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	migrations := store.Migrations(cfg.MigrationsDir)
	switch args[0] {
	case "up":
		err = store.ApplyMigrations(ctx, db, migrations)
	case "down":
		err = store.RollbackMigrations(ctx, db, migrations)
	default:
		return fmt.Errorf("unknown migrate direction %q", args[0])
	}
	if err != nil {
		return err
	}
	logger.Info("migrations finished", zap.String("direction", args[0]))
	return nil
}
