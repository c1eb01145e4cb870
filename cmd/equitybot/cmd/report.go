package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/equitybot/engine"
	"github.com/rustyeddy/equitybot/journal"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Send or show the end-of-day summary",
	Long: `Build the current session's daily summary and send it to the journal
and notifiers. A summary already sent for the session is shown but not sent
again. With --history the last N summaries are read from the SQLite journal
instead.

Examples:
  equitybot report
  equitybot report --history 5`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

var reportHistory int

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().IntVar(&reportHistory, "history", 0, "list the last N daily summaries from the journal")
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if reportHistory > 0 {
		j, err := openSQLite(cfg.Journal.DBPath)
		if err != nil {
			return err
		}
		defer j.Close()
		sums, err := j.ListSummaries(reportHistory)
		if err != nil {
			return fmt.Errorf("query summaries: %w", err)
		}
		for i, s := range sums {
			if i > 0 {
				fmt.Fprintln(out)
			}
			fmt.Fprint(out, journal.FormatSummaryOrg(s))
		}
		return nil
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

	sum, sent, err := a.engine.EndOfDay(cmd.Context())
	if errors.Is(err, engine.ErrNoSession) {
		fmt.Fprintln(out, "No session recorded yet")
		return nil
	}
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	fmt.Fprint(out, engine.FormatSummary(sum))
	if sent {
		fmt.Fprintln(out, "✓ Summary sent")
	} else {
		fmt.Fprintln(out, "Summary was already sent for this session")
	}
	return nil
}
