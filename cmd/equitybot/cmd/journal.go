package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/equitybot/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query trade journal data",
	Long: `Query and display records from the SQLite journal.

Subcommands:
  trade       - Get details of a specific trade by ID
  trades      - List trades closed in a date range
  shadows     - List rejected (shadow) signals in a date range
  performance - Win/loss totals and profit factor for a date range

Dates are YYYY-MM-DD in the market's time zone; both default to today.

Examples:
  equitybot journal trade 01J8Z...
  equitybot journal trades --since 2025-03-03 --until 2025-03-07
  equitybot journal shadows`,
}

var journalTradeCmd = &cobra.Command{
	Use:   "trade <trade-id>",
	Short: "Get details of a specific trade",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrade,
}

var journalTradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "List trades closed in a date range",
	Args:  cobra.NoArgs,
	RunE:  runJournalTrades,
}

var journalShadowsCmd = &cobra.Command{
	Use:   "shadows",
	Short: "List shadow signals in a date range",
	Args:  cobra.NoArgs,
	RunE:  runJournalShadows,
}

var journalPerformanceCmd = &cobra.Command{
	Use:   "performance",
	Short: "Summarize closed trade P&L in a date range",
	Args:  cobra.NoArgs,
	RunE:  runJournalPerformance,
}

const dateLayout = "2006-01-02"

var (
	journalDBPath string
	journalSince  string
	journalUntil  string
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTradeCmd)
	journalCmd.AddCommand(journalTradesCmd)
	journalCmd.AddCommand(journalShadowsCmd)
	journalCmd.AddCommand(journalPerformanceCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "", "path to SQLite journal DB (default journal.db_path)")
	journalCmd.PersistentFlags().StringVar(&journalSince, "since", "", "first day, YYYY-MM-DD (default today)")
	journalCmd.PersistentFlags().StringVar(&journalUntil, "until", "", "last day, YYYY-MM-DD (default --since)")
}

// openJournal opens the SQLite journal and returns the market time zone
// used to interpret dates.
func openJournal(cmd *cobra.Command) (*journal.SQLite, *time.Location, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	cal, err := cfg.Calendar()
	if err != nil {
		return nil, nil, err
	}
	path := journalDBPath
	if path == "" {
		path = cfg.Journal.DBPath
	}
	if path == "" {
		return nil, nil, fmt.Errorf("no journal db: set --db or journal.db_path (journal.type %q)", cfg.Journal.Type)
	}
	j, err := openSQLite(path)
	if err != nil {
		return nil, nil, err
	}
	return j, cal.Location(), nil
}

func runJournalTrade(cmd *cobra.Command, args []string) error {
	j, _, err := openJournal(cmd)
	if err != nil {
		return err
	}
	defer j.Close()

	rec, err := j.GetTrade(args[0])
	if err != nil {
		return fmt.Errorf("get trade: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradeOrg(rec))
	return nil
}

func runJournalTrades(cmd *cobra.Command, args []string) error {
	j, loc, err := openJournal(cmd)
	if err != nil {
		return err
	}
	defer j.Close()

	start, end, err := dateRange(loc, time.Now(), journalSince, journalUntil)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	recs, err := j.ListTradesClosedBetween(start, end)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	if len(recs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No trades closed")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradesOrg(recs))
	return nil
}

func runJournalShadows(cmd *cobra.Command, args []string) error {
	j, loc, err := openJournal(cmd)
	if err != nil {
		return err
	}
	defer j.Close()

	start, end, err := dateRange(loc, time.Now(), journalSince, journalUntil)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	recs, err := j.ListShadowsBetween(start, end)
	if err != nil {
		return fmt.Errorf("query shadows: %w", err)
	}
	out := cmd.OutOrStdout()
	for _, s := range recs {
		fmt.Fprintf(out, "%s %-6s %-5s failed %-12s %9.2f  %s\n",
			s.Time.In(loc).Format("2006-01-02 15:04"), s.Symbol, s.Candidate, s.FailedFilter, s.Price, s.Trail)
	}
	fmt.Fprintf(out, "%d shadow signals\n", len(recs))
	return nil
}

func runJournalPerformance(cmd *cobra.Command, args []string) error {
	j, loc, err := openJournal(cmd)
	if err != nil {
		return err
	}
	defer j.Close()

	start, end, err := dateRange(loc, time.Now(), journalSince, journalUntil)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	p, err := j.Performance(start, end)
	if err != nil {
		return fmt.Errorf("query performance: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Trades:        %d\n", p.Trades)
	fmt.Fprintf(out, "Gross profit:  %.2f\n", p.GrossProfit)
	fmt.Fprintf(out, "Gross loss:    %.2f\n", p.GrossLoss)
	fmt.Fprintf(out, "Net:           %.2f\n", p.GrossProfit-p.GrossLoss)
	fmt.Fprintf(out, "Profit factor: %.2f\n", p.ProfitFactor())
	return nil
}

// dateRange turns --since/--until into [start, end) covering whole days in
// loc. Empty since means the day of now; empty until means since.
func dateRange(loc *time.Location, now time.Time, since, until string) (time.Time, time.Time, error) {
	if since == "" {
		since = now.In(loc).Format(dateLayout)
	}
	if until == "" {
		until = since
	}
	start, _, err := dayBounds(loc, since)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	_, end, err := dayBounds(loc, until)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("--until %s is before --since %s", until, since)
	}
	return start, end, nil
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)
	return start, end, nil
}
