package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vseti/vseti-chat/internal/app"
	"github.com/vseti/vseti-chat/internal/config"
	"github.com/vseti/vseti-chat/internal/log"
)

// migrateCmd applies the database schema and exits.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the SQLite schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(config.Config{})
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logger := log.New(cfg.LogLevel)

		st, err := app.OpenStore(cmd.Context(), cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer st.Close()

		logger.Info().Str("db_path", cfg.DatabasePath).Msg("schema applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
