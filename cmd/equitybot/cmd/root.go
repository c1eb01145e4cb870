package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/equitybot/config"
	"github.com/rustyeddy/equitybot/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "equitybot",
	Short: "Trend-following equity trading bot with layered risk controls",
	Long: `Equitybot watches a fixed universe of US equities on 5-minute bars,
trades EMA crossovers that pass its filter chain, sizes every entry from a
stop distance and enforces portfolio caps and safety guards.

It provides tools for:
  - Running the trading loop against the paper broker
  - Running single cycles on demand, optionally as a dry run
  - Inspecting status, last signals and safety guards
  - Clearing the kill switch
  - Querying the trade journal and daily summaries`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	configPath string
	logLevel   string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "equitybot.yaml", "config file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

// loadConfig reads the config file. A missing file is only an error when
// --config was given explicitly; otherwise defaults are used.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadFromFile(configPath)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config"):
		cfg = config.Default()
		cfg.ApplyEnv()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("default config: %w", err)
		}
	default:
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logger.New(logger.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
}
