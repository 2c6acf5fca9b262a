package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vseti/vseti-chat/internal/app"
	"github.com/vseti/vseti-chat/internal/config"
	"github.com/vseti/vseti-chat/internal/log"
)

var serveFlags config.Config

// serveCmd runs the HTTP and websocket server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the messaging server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(serveFlags)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logger := log.New(cfg.LogLevel)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		application, err := app.New(ctx, &cfg, logger)
		if err != nil {
			return err
		}

		logger.Info().Str("addr", cfg.Addr).Msg("starting vseti-chat server")
		if err := application.Run(ctx); err != nil {
			return fmt.Errorf("server exited with error: %w", err)
		}
		logger.Info().Msg("server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveFlags.Addr, "addr", "", "HTTP listen address")
	serveCmd.Flags().StringVar(&serveFlags.DatabasePath, "db", "", "SQLite database path")
	serveCmd.Flags().DurationVar(&serveFlags.ReadHeaderTimeout, "read-header-timeout", 0, "HTTP read header timeout")
	serveCmd.Flags().DurationVar(&serveFlags.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
}
