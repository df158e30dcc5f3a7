package main

import (
	"fmt"

	"github.com/jason-s-yu/codeduel/internal/config"
	"github.com/jason-s-yu/codeduel/internal/database"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Args:  cobra.ExactArgs(0),
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cfg.InMemory {
			return fmt.Errorf("nothing to migrate with in_memory storage")
		}
		logger := cfg.NewLogger()

		pool, err := database.ConnectDB(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := database.Migrate(cmd.Context(), pool); err != nil {
			return err
		}
		logger.Info("schema applied")
		return nil
	},
}
