package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vseti/vseti-chat/internal/config"
	"github.com/vseti/vseti-chat/internal/log"
)

var (
	configFile string
	logLevel   string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "vseti-chat",
	Short: "Real-time messaging server",
	Long: `vseti-chat serves direct and group conversations over websockets.

Use 'vseti-chat help <command>' for more information on a specific command.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config.yaml (created with defaults if missing)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
}

// loadConfig resolves configuration: defaults < file < env < flags.
func loadConfig(overrides config.Config) (config.Config, error) {
	bootLogger := log.New("info")
	cfg, path, err := config.Load(bootLogger, configFile)
	if err != nil {
		return cfg, err
	}
	overrides.LogLevel = logLevel
	cfg.UpdateFrom(overrides)
	bootLogger.Debug().Str("path", path).Msg("config loaded")
	return cfg, nil
}
