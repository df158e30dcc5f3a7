package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/codeduel/internal/cache"
	"github.com/jason-s-yu/codeduel/internal/config"
	"github.com/jason-s-yu/codeduel/internal/database"
	"github.com/jason-s-yu/codeduel/internal/historian"
	"github.com/spf13/cobra"
)

var historianCmd = &cobra.Command{
	Use:   "historian",
	Args:  cobra.ExactArgs(0),
	Short: "Persist the duel event queue to Postgres",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if !cfg.Redis.Enabled() || cfg.InMemory {
			return fmt.Errorf("historian needs both redis and a database")
		}
		logger := cfg.NewLogger()

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		pool, err := database.ConnectDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			return err
		}
		rdb, err := cache.ConnectRedis(ctx, cache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()

		h := historian.New(rdb, database.NewPostgresRepository(pool), cfg.Historian, logger)
		return h.Run(ctx)
	},
}
