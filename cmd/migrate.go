/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/ritgame/apiserver/config"
	"github.com/ritgame/apiserver/internal/db"
	"github.com/ritgame/apiserver/internal/logging"
	"github.com/spf13/cobra"
)

// migrateCmd represents the migrate command.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Run the embedded Postgres migrations. The sqlite, buntdb and firestore
backends create their schema on open and need no migrations.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all up migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := logging.New(cfg.Log)

		if cfg.Store.Backend != config.StoreBackendPostgres {
			logger.Warn("store backend is not postgres, migrating anyway", "backend", cfg.Store.Backend)
		}

		if err := db.Migrate(db.PostgresURL(cfg.Database)); err != nil {
			return fmt.Errorf("migrate up failed: %w", err)
		}
		logger.Info("migrations applied", "database", cfg.Database.DBName)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
}
