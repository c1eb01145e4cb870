package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/equitybot/engine"
	"github.com/rustyeddy/equitybot/strategies"
)

var (
	okColor    = lipgloss.Color("#33cc33")
	warnColor  = lipgloss.Color("#cccc00")
	alertColor = lipgloss.Color("#cc3300")
	frameColor = lipgloss.Color("#0077cc")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(frameColor).
			Padding(0, 1)
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	boxStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(frameColor).
			Padding(0, 1)
	okStyle    = lipgloss.NewStyle().Foreground(okColor)
	warnStyle  = lipgloss.NewStyle().Foreground(warnColor)
	alertStyle = lipgloss.NewStyle().Bold(true).Foreground(alertColor)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session, safety guards, positions and last signals",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var statusJSON bool

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print status as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	st, err := a.engine.Status(cmd.Context())
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	if statusJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderStatus(st))
	return nil
}

func renderStatus(st engine.Status) string {
	sections := []string{
		titleStyle.Render("equitybot " + st.SessionDate),
		renderSession(st),
		renderSafety(st),
		renderPositions(st),
		renderSignals(st),
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func renderSession(st engine.Status) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Session") + "\n")
	market := warnStyle.Render("closed")
	if st.MarketOpen {
		market = okStyle.Render("open")
	}
	fmt.Fprintf(&b, "market %s, entry window %t, cycle %d", market, st.InEntryWindow, st.Cycle)
	if !st.CommittedAt.IsZero() {
		fmt.Fprintf(&b, ", committed %s", st.CommittedAt.Format("15:04:05"))
	}
	b.WriteString("\n")
	switch {
	case st.Account != nil:
		fmt.Fprintf(&b, "equity %.2f, cash %.2f, buying power %.2f\n",
			st.Account.Equity, st.Account.Cash, st.Account.BuyingPower)
	case st.AccountError != "":
		b.WriteString(alertStyle.Render("account unavailable: "+st.AccountError) + "\n")
	}
	fmt.Fprintf(&b, "risk per trade %.2f%%, trades %d (%d W / %d L), entries %d, shadows %d, errors %d",
		st.RiskPct*100, st.Stats.Trades, st.Stats.Wins, st.Stats.Losses, st.Stats.Entries, st.Stats.Shadows, st.Stats.Errors)
	return b.String()
}

func renderSafety(st engine.Status) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Safety") + "\n")
	if st.Gate.BlockEntries {
		b.WriteString(alertStyle.Render("gate "+st.Gate.String()) + "\n")
	} else {
		b.WriteString(okStyle.Render("gate open") + "\n")
	}
	s := st.Safety
	guard := func(name string, engaged bool, detail string) {
		state := okStyle.Render("ok")
		if engaged {
			state = alertStyle.Render("ENGAGED")
		}
		fmt.Fprintf(&b, "%-18s %s", name, state)
		if detail != "" {
			b.WriteString(" " + mutedStyle.Render(detail))
		}
		b.WriteString("\n")
	}
	ks := fmt.Sprintf("(%d recent errors)", len(s.KillSwitch.Errors))
	if s.KillSwitch.ClearedBy != "" {
		ks += fmt.Sprintf(" last cleared by %s", s.KillSwitch.ClearedBy)
	}
	guard("kill switch", s.KillSwitch.Engaged, ks)
	guard("circuit breaker", s.CircuitBreaker.Engaged, s.CircuitBreaker.Reason)
	guard("daily loss", s.DailyLoss.Breached, fmt.Sprintf("(%.2f%% on %.2f)", s.DailyLoss.PnLPct*100, s.DailyLoss.StartEquity))
	guard("consecutive losses", s.ConsecutiveLosses.Paused, fmt.Sprintf("(%d in a row)", s.ConsecutiveLosses.Count))
	return strings.TrimSuffix(b.String(), "\n")
}

func renderPositions(st engine.Status) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("Positions (%d)", len(st.Positions))))
	if len(st.Positions) == 0 {
		b.WriteString("\n" + mutedStyle.Render("flat"))
		return b.String()
	}
	fmt.Fprintf(&b, "\n%-6s %-5s %6s %10s %10s %9s %s", "SYM", "SIDE", "QTY", "ENTRY", "STOP", "RISK", "SECTOR")
	for _, p := range st.Positions {
		fmt.Fprintf(&b, "\n%-6s %-5s %6d %10.2f %10.2f %9.2f %s", p.Symbol, p.Side, p.Quantity, p.EntryPrice, p.StopPrice, p.RiskAmount, p.Sector)
		if p.Adopted {
			b.WriteString(" " + warnStyle.Render("adopted"))
		}
	}
	return b.String()
}

func renderSignals(st engine.Status) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Last signals"))
	if len(st.LastSignals) == 0 {
		b.WriteString("\n" + mutedStyle.Render("none yet"))
		return b.String()
	}
	syms := make([]string, 0, len(st.LastSignals))
	for sym := range st.LastSignals {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	for _, sym := range syms {
		sig := st.LastSignals[sym]
		fmt.Fprintf(&b, "\n%-6s %s", sym, signalLabel(sig))
	}
	return b.String()
}

func signalLabel(sig strategies.Signal) string {
	switch {
	case sig.Actionable():
		return okStyle.Render(fmt.Sprintf("%s strength %.2f @ %.2f", sig.Direction, sig.Strength, sig.Price))
	case sig.Shadow():
		return warnStyle.Render(fmt.Sprintf("shadow %s, failed %s", sig.Candidate, sig.FailedFilter()))
	default:
		return mutedStyle.Render("no crossover")
	}
}
