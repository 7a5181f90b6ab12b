package cmd

import (
	"fmt"

	"github.com/parleyhq/parley/db"
	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/log"
)

// runMigrate applies pending database migrations and exits. Useful for
// deployments that migrate separately from serving.
func runMigrate(logger log.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Info("applying migrations", "host", cfg.PostgresHost, "db", cfg.PostgresDBName)
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	logger.Info("migrations applied")
	return nil
}
