package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"anonpoll/internal/platform/config"
	"anonpoll/internal/platform/logger"
	"anonpoll/internal/platform/postgres"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		log := logger.New(cfg.Log.Level, cfg.Log.Format)
		db, err := postgres.Open(cfg.Postgres)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.Migrate(cmd.Context(), db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info("schema applied")
		return nil
	},
}
