package migrate

import (
	"context"
	"fmt"

	"github.com/bloodbank/bloodbank-backend/pkg/config"
	"github.com/bloodbank/bloodbank-backend/pkg/db"
	"github.com/bloodbank/bloodbank-backend/pkg/logger"
)

// AutoRunEnabled reports whether startup should apply pending migrations. The
// embedded SQLite store always migrates itself; Postgres only in dev with the
// auto-migrate flag.
func AutoRunEnabled(cfg *config.Config) bool {
	if cfg.DB.IsSQLite() {
		return true
	}
	return cfg.App.IsDev() && cfg.FeatureFlags.AutoMigrate
}

// AutoRun applies pending migrations when AutoRunEnabled allows it.
func AutoRun(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !AutoRunEnabled(cfg) {
		return nil
	}
	sqlDB, err := client.SQL()
	if err != nil {
		return err
	}

	ctx = logg.WithField(ctx, "dialect", client.Dialect())
	applied, version, err := upWithReport(ctx, sqlDB, client.Dialect())
	if err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	logg.Info(logg.WithFields(ctx, map[string]any{
		"applied": applied,
		"version": version,
	}), "schema up to date")
	return nil
}
