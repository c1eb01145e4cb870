package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var killSwitchCmd = &cobra.Command{
	Use:   "killswitch",
	Short: "Manage the kill switch",
	Long: `The kill switch engages after repeated errors and stays engaged across
restarts until an operator clears it.

Examples:
  equitybot killswitch clear --operator alice`,
}

var killSwitchClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear an engaged kill switch",
	Args:  cobra.NoArgs,
	RunE:  runKillSwitchClear,
}

var killSwitchOperator string

func init() {
	rootCmd.AddCommand(killSwitchCmd)
	killSwitchCmd.AddCommand(killSwitchClearCmd)

	killSwitchClearCmd.Flags().StringVarP(&killSwitchOperator, "operator", "o", "", "name of the operator clearing the switch (required)")
	killSwitchClearCmd.MarkFlagRequired("operator")
}

func runKillSwitchClear(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	cleared, err := a.engine.ClearKillSwitch(cmd.Context(), killSwitchOperator)
	if err != nil {
		return err
	}
	if !cleared {
		fmt.Fprintln(cmd.OutOrStdout(), "Kill switch was not engaged")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Kill switch cleared by %s\n", killSwitchOperator)
	return nil
}
