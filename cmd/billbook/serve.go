package main

import (
	"github.com/smallbiznis/billbook/internal/clock"
	"github.com/smallbiznis/billbook/internal/migration"
	"github.com/smallbiznis/billbook/internal/partylock"
	"github.com/smallbiznis/billbook/internal/server"
	"github.com/smallbiznis/billbook/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	app := fx.New(
		// Core Infrastructure
		coreOptions(),
		db.Module,
		migration.Module,
		clock.Module,
		partylock.Module,

		// Functional Domains
		server.Module,
	)
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}
