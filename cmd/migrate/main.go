package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/bloodbank/bloodbank-backend/pkg/config"
	"github.com/bloodbank/bloodbank-backend/pkg/db"
	"github.com/bloodbank/bloodbank-backend/pkg/instance"
	"github.com/bloodbank/bloodbank-backend/pkg/logger"
	"github.com/bloodbank/bloodbank-backend/pkg/migrate"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the blood bank database schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(upCmd(), downCmd(), statusCmd(), versionCmd(), createCmd(), validateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func upCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), "up", func(ctx context.Context, sqlDB *sql.DB, dialect string) error {
				return migrate.Up(ctx, sqlDB, dialect)
			})
		},
	}
}

func downCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), "down", func(ctx context.Context, sqlDB *sql.DB, dialect string) error {
				return migrate.Down(ctx, sqlDB, dialect)
			})
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the state of every migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), "status", func(ctx context.Context, sqlDB *sql.DB, dialect string) error {
				return migrate.Status(ctx, sqlDB, dialect, cmd.OutOrStdout())
			})
		},
	}
}

func versionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Migrate up or down to a target version",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, _ := cmd.Flags().GetString("to")
			if target == "" {
				return fmt.Errorf("missing --to for version command")
			}
			return withDB(cmd.Context(), "version", func(ctx context.Context, sqlDB *sql.DB, dialect string) error {
				return migrate.MigrateToVersion(ctx, sqlDB, dialect, target)
			})
		},
	}
	cmd.Flags().String("to", "", "target version (YYYYMMDDHHMMSS)")
	return cmd
}

func createCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Scaffold a new SQL migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			dir, _ := cmd.Flags().GetString("dir")
			if name == "" {
				return fmt.Errorf("missing --name for create")
			}
			path, err := migrate.CreateSQLMigration(dir, name)
			if err != nil {
				return fmt.Errorf("failed to create migration: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "created migration:", path)
			return nil
		},
	}
	cmd.Flags().String("name", "", "migration name")
	cmd.Flags().String("dir", migrate.DefaultDir, "migrations directory")
	return cmd
}

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check migration file names and annotations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			if err := migrate.ValidateDir(dir); err != nil {
				return fmt.Errorf("migration validation failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migration validation passed")
			return nil
		},
	}
	cmd.Flags().String("dir", migrate.DefaultDir, "migrations directory")
	return cmd
}

// withDB loads config, opens the database and runs fn against it.
func withDB(ctx context.Context, name string, fn func(ctx context.Context, sqlDB *sql.DB, dialect string) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	bootstrap := logger.New(logger.Options{ServiceName: "migrate"})

	cfg, err := config.Load()
	if err != nil {
		bootstrap.Error(ctx, "resource not working: config", err)
		return err
	}

	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
		Static:      map[string]any{"env": cfg.App.Env, "instance": instance.ID()},
	})
	ctx = logg.WithField(ctx, "cmd", name)

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "resource not working: database", err)
		return err
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.SQL()
	if err != nil {
		return err
	}

	logg.Info(ctx, "migrate ready")
	if err := fn(ctx, sqlDB, dbClient.Dialect()); err != nil {
		return fmt.Errorf("goose %s failed: %w", name, err)
	}
	logg.Info(ctx, "migrate finished")
	return nil
}
