package main

import (
	"context"
	"time"

	"github.com/smallbiznis/billbook/internal/config"
	"github.com/smallbiznis/billbook/internal/migration"
	"github.com/smallbiznis/billbook/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations and exit",
	Long: `Apply the embedded postgres migrations, or auto-migrate the schema on sqlite
and mysql. Runs even when DATABASE_MIGRATE is false.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	app := fx.New(
		coreOptions(),
		fx.Decorate(func(cfg config.Config) config.Config {
			cfg.DBMigrate = true
			return cfg
		}),
		db.Module,
		migration.Module,
	)
	if err := app.Err(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return err
	}
	return app.Stop(ctx)
}
