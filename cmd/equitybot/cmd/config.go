package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/equitybot/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage equitybot configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Secrets are read from the environment, never from the file:
  ` + config.EnvSMTPPassword + `, ` + config.EnvTelegramToken + `,
  ` + config.EnvInfluxToken + `, ` + config.EnvWebhookURL + `

Examples:
  equitybot config init --output equitybot.yaml
  equitybot config validate --file equitybot.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "equitybot.yaml", "output config file path")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Created default configuration: %s\n", configInitOutput)
	fmt.Fprintln(out, "\nEdit the file and run with:")
	fmt.Fprintf(out, "  equitybot run --config %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Configuration valid: %s\n", configValidatePath)
	fmt.Fprintf(out, "  Universe: %s (benchmark %s)\n", strings.Join(cfg.Universe.Symbols, ", "), cfg.Universe.Benchmark)
	fmt.Fprintf(out, "  Session: %s-%s %s\n", cfg.Session.Open, cfg.Session.Close, cfg.Session.Timezone)
	fmt.Fprintf(out, "  Risk: %.2f%% per trade, %d positions max, %.0f%% total open risk\n",
		cfg.Risk.RiskPctBase*100, cfg.Risk.MaxPositions, cfg.Risk.MaxOpenRiskPct*100)
	fmt.Fprintf(out, "  Broker: paper %s ($%.2f)\n", cfg.Broker.AccountID, cfg.Broker.StartingCash)
	fmt.Fprintf(out, "  Journal: %s\n", cfg.Journal.Type)
	fmt.Fprintf(out, "  State: %s\n", cfg.State.Path)
	return nil
}
