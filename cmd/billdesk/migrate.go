package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nurpe/billdesk/internal/config"
	"github.com/nurpe/billdesk/internal/db"
	"github.com/nurpe/billdesk/internal/logger"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the postgres store schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Store.Driver != config.StoreDriverPostgres {
				return fmt.Errorf("migrate needs STORE_DRIVER=postgres, got %q", cfg.Store.Driver)
			}
			log := logger.NewWithLevel(cfg.Environment, cfg.LogLevel)
			if err := db.Migrate(cfg, log); err != nil {
				return err
			}
			log.Info().Msg("migrations applied")
			return nil
		},
	}
}
