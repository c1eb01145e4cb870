package journal

import (
	"fmt"
	"strings"
	"time"
)

// FormatTradeOrg renders a TradeRecord as an Org-mode block for a trading
// journal. Facts go in the PROPERTIES drawer; the headings below it are left
// for notes.
func FormatTradeOrg(t TradeRecord) string {
	heading := fmt.Sprintf("** %s %s %s (%s)", strings.ToUpper(string(t.Action)), t.Symbol, t.Side, shortID(t.ID))

	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":ID: %s\n", t.ID)
	fmt.Fprintf(&b, ":POSITION_ID: %s\n", t.PositionID)
	fmt.Fprintf(&b, ":SYMBOL: %s\n", t.Symbol)
	fmt.Fprintf(&b, ":SIDE: %s\n", t.Side)
	fmt.Fprintf(&b, ":QUANTITY: %d\n", t.Quantity)
	fmt.Fprintf(&b, ":ENTRY_PRICE: %s\n", price(t.EntryPrice).StringFixed(4))
	fmt.Fprintf(&b, ":OPEN_TIME: %s\n", t.OpenTime.UTC().Format(time.RFC3339))
	if t.Action != ActionEntry {
		fmt.Fprintf(&b, ":EXIT_PRICE: %s\n", price(t.ExitPrice).StringFixed(4))
		fmt.Fprintf(&b, ":CLOSE_TIME: %s\n", t.CloseTime.UTC().Format(time.RFC3339))
		fmt.Fprintf(&b, ":REALIZED_PL: %s\n", money(t.RealizedPL).StringFixed(2))
		fmt.Fprintf(&b, ":R_MULTIPLE: %.2f\n", t.RMultiple)
	}
	fmt.Fprintf(&b, ":REASON: %s\n", t.Reason)
	b.WriteString(":END:\n")
	b.WriteString("\n")
	b.WriteString("*** Thesis\n- \n\n")
	b.WriteString("*** Execution\n- \n\n")
	b.WriteString("*** Review\n- \n")

	return b.String()
}

// FormatTradesOrg renders multiple trades separated by blank lines.
func FormatTradesOrg(trades []TradeRecord) string {
	var b strings.Builder
	for i, t := range trades {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(FormatTradeOrg(t))
	}
	return b.String()
}

// FormatSummaryOrg renders a day's summary as a top-level Org heading.
func FormatSummaryOrg(s DailySummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "* Session %s\n", s.SessionDate)
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":START_EQUITY: %s\n", money(s.StartEquity).StringFixed(2))
	fmt.Fprintf(&b, ":END_EQUITY: %s\n", money(s.EndEquity).StringFixed(2))
	fmt.Fprintf(&b, ":REALIZED_PL: %s\n", money(s.RealizedPL).StringFixed(2))
	fmt.Fprintf(&b, ":TRADES: %d\n", s.Trades)
	fmt.Fprintf(&b, ":WIN_RATE: %.1f%%\n", s.WinRate()*100)
	fmt.Fprintf(&b, ":SHADOWS: %d\n", s.Shadows)
	fmt.Fprintf(&b, ":ERRORS: %d\n", s.Errors)
	fmt.Fprintf(&b, ":KILL_SWITCH: %t\n", s.KillSwitch)
	fmt.Fprintf(&b, ":CIRCUIT_BREAKER: %t\n", s.CircuitBreaker)
	b.WriteString(":END:\n")
	return b.String()
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[:8]
}
