package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-deposit-backend/internal/config"
	"github.com/tbourn/go-deposit-backend/internal/sysutil"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the deposit, webhook log and idempotency tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			lg := sysutil.ConfigureLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName, Version)

			db, err := openDB(cfg, true)
			if err != nil {
				return err
			}
			defer closeDB(db, lg)

			lg.Info().Str("driver", cfg.DB.Driver).Msg("schema up to date")
			return nil
		},
	}
}
