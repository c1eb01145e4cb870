package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/equitybot/engine"
)

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run a single trading cycle",
	Long: `Run one cycle now, regardless of the cadence. With --dry-run the cycle
evaluates signals and decides but neither commits state nor submits orders.

Examples:
  equitybot cycle --dry-run
  equitybot cycle --json`,
	Args: cobra.NoArgs,
	RunE: runCycle,
}

var (
	cycleDryRun bool
	cycleJSON   bool
)

func init() {
	rootCmd.AddCommand(cycleCmd)

	cycleCmd.Flags().BoolVar(&cycleDryRun, "dry-run", false, "decide without committing or submitting orders")
	cycleCmd.Flags().BoolVar(&cycleJSON, "json", false, "print the full cycle report as JSON")
}

func runCycle(cmd *cobra.Command, args []string) error {
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

	rep, err := a.engine.RunCycle(cmd.Context(), engine.Options{DryRun: cycleDryRun})
	if rep.Cycle > 0 || rep.DryRun {
		if perr := printReport(cmd.OutOrStdout(), rep, cycleJSON); perr != nil {
			return perr
		}
	}
	if err != nil {
		return fmt.Errorf("cycle: %w", err)
	}
	return nil
}

func printReport(w io.Writer, rep engine.Report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	fmt.Fprintln(w, rep.Summary())
	for _, a := range rep.Plan.Actions {
		fmt.Fprintf(w, "  plan   %s\n", a)
	}
	for _, r := range rep.Plan.Rejections {
		fmt.Fprintf(w, "  reject %s %v\n", r.Symbol, r.Codes)
	}
	for _, f := range rep.Fills {
		fmt.Fprintf(w, "  fill   %s %s %s %d @ %.2f (order %s)\n", f.Action.Kind, f.Action.Side, f.Action.Symbol, f.Quantity, f.Price, f.OrderID)
	}
	for _, r := range rep.Dropped {
		fmt.Fprintf(w, "  drop   %s %v\n", r.Symbol, r.Codes)
	}
	for _, r := range rep.Reconciled {
		fmt.Fprintf(w, "  recon  %s %s: %s\n", r.Symbol, r.Kind, r.Detail)
	}
	for _, s := range rep.Skipped {
		fmt.Fprintf(w, "  skip   %s: %s\n", s.Symbol, s.Error)
	}
	for _, e := range rep.Errors {
		fmt.Fprintf(w, "  error  %s\n", e)
	}
	return nil
}
