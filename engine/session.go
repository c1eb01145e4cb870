package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rustyeddy/equitybot/broker"
	"github.com/rustyeddy/equitybot/journal"
	"github.com/rustyeddy/equitybot/notify"
	"github.com/rustyeddy/equitybot/position"
	"github.com/rustyeddy/equitybot/safety"
	"github.com/rustyeddy/equitybot/state"
	"github.com/rustyeddy/equitybot/strategies"
)

var (
	// ErrNoSession is returned when no session has been committed yet.
	ErrNoSession = errors.New("no session recorded")
	// ErrOperatorRequired rejects a kill switch clear with no operator name.
	ErrOperatorRequired = errors.New("operator is required")
)

// EndOfDay sends the session's daily summary to the journal and notifier.
// It sends at most once per session; later calls return the summary with
// sent false. The live account equity closes out today's session only; an
// older unsent session is summarized at the equity it recorded.
func (e *Engine) EndOfDay(ctx context.Context) (journal.DailySummary, bool, error) {
	if !e.cycleMu.TryLock() {
		return journal.DailySummary{}, false, ErrCycleBusy
	}
	defer e.cycleMu.Unlock()

	snap, err := e.store.Load()
	if err != nil {
		return journal.DailySummary{}, false, err
	}
	if snap == nil || snap.Safety.DailyLoss.StartEquity <= 0 {
		return journal.DailySummary{}, false, ErrNoSession
	}
	if snap.Stats.SummarySent {
		return Summarize(snap, recordedEquity(snap)), false, nil
	}

	now := e.now()
	next := snap.Clone()
	end := recordedEquity(snap)
	if snap.SessionDate == e.calendar.SessionDate(now) {
		actx, cancel := e.withTimeout(ctx, e.cfg.Engine.AccountTimeout)
		acct, err := e.broker.GetAccount(actx)
		cancel()
		if err != nil {
			return journal.DailySummary{}, false, fmt.Errorf("end of day: get account: %w", err)
		}
		end = acct.Equity
		next.Risk.RecordEquity(next.SessionDate, end, e.cfg.Engine.EquityHistory)
	} else {
		e.log.Info("summarizing a past session at its recorded equity",
			zap.String("session", snap.SessionDate), zap.Float64("equity", end))
	}

	sum := Summarize(snap, end)
	e.out.enqueue("journal summary "+sum.SessionDate, func(context.Context) error {
		return e.journal.RecordSummary(sum)
	})
	e.notify(notify.Message{
		Subject:  "Daily summary " + sum.SessionDate,
		Body:     FormatSummary(sum),
		Severity: notify.Info,
	})

	next.Stats.SummarySent = true
	if err := e.store.Commit(next, e.now()); err != nil {
		return sum, true, err
	}
	e.log.Info("daily summary sent",
		zap.String("session", sum.SessionDate),
		zap.Float64("pnl", sum.RealizedPL),
		zap.Int("trades", sum.Trades))
	return sum, true, nil
}

// Summarize builds the daily summary for snap at endEquity.
func Summarize(snap *state.Snapshot, endEquity float64) journal.DailySummary {
	st := snap.Stats
	return journal.DailySummary{
		SessionDate:    snap.SessionDate,
		StartEquity:    snap.Safety.DailyLoss.StartEquity,
		EndEquity:      endEquity,
		RealizedPL:     snap.Safety.DailyLoss.RealizedPnL,
		Trades:         st.Trades,
		Wins:           st.Wins,
		Losses:         st.Losses,
		Entries:        st.Entries,
		Shadows:        st.Shadows,
		Errors:         st.Errors,
		KillSwitch:     snap.Safety.KillSwitch.Engaged,
		CircuitBreaker: snap.Safety.CircuitBreaker.Engaged,
	}
}

// recordedEquity is the equity stored for the snapshot's session.
func recordedEquity(snap *state.Snapshot) float64 {
	h := snap.Risk.EquityHistory
	if n := len(h); n > 0 && h[n-1].Date == snap.SessionDate {
		return h[n-1].Equity
	}
	return snap.Safety.DailyLoss.StartEquity
}

// FormatSummary renders a summary as plain text for notifications.
func FormatSummary(s journal.DailySummary) string {
	cents := func(x float64) string { return decimal.NewFromFloat(x).StringFixed(2) }
	change := s.EndEquity - s.StartEquity
	pct := decimal.Zero
	if s.StartEquity > 0 {
		pct = decimal.NewFromFloat(100 * change / s.StartEquity).Round(2)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Session %s\n", s.SessionDate)
	fmt.Fprintf(&b, "Equity: %s -> %s (%s, %s%%)\n", cents(s.StartEquity), cents(s.EndEquity), cents(change), pct.StringFixed(2))
	fmt.Fprintf(&b, "Realized P&L: %s\n", cents(s.RealizedPL))
	fmt.Fprintf(&b, "Trades: %d (%d wins, %d losses, win rate %s%%)\n",
		s.Trades, s.Wins, s.Losses, decimal.NewFromFloat(100*s.WinRate()).StringFixed(1))
	fmt.Fprintf(&b, "Entries: %d, shadow signals: %d, errors: %d\n", s.Entries, s.Shadows, s.Errors)
	if s.KillSwitch {
		b.WriteString("Kill switch is ENGAGED\n")
	}
	if s.CircuitBreaker {
		b.WriteString("Circuit breaker is engaged\n")
	}
	return b.String()
}

// Status is the control-surface view of the bot.
type Status struct {
	Time          time.Time                    `json:"time"`
	SessionDate   string                       `json:"session_date"`
	Cycle         int64                        `json:"cycle"`
	CommittedAt   time.Time                    `json:"committed_at"`
	MarketOpen    bool                         `json:"market_open"`
	InEntryWindow bool                         `json:"in_entry_window"`
	Account       *broker.Account              `json:"account,omitempty"`
	AccountError  string                       `json:"account_error,omitempty"`
	Gate          safety.Decision              `json:"gate"`
	Safety        safety.State                 `json:"safety"`
	Positions     []position.Position          `json:"positions"`
	Universe      []string                     `json:"universe"`
	Benchmark     string                       `json:"benchmark"`
	RiskPct       float64                      `json:"risk_pct"`
	Stats         state.SessionStats           `json:"stats"`
	LastSignals   map[string]strategies.Signal `json:"last_signals,omitempty"`
}

// Status reports the committed state plus a live account reading. An
// unreachable broker is reported in AccountError rather than failing.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	now := e.now()
	snap, err := e.store.Load()
	if err != nil {
		return Status{}, err
	}
	if snap == nil {
		snap = state.New(e.calendar.SessionDate(now))
	}

	st := Status{
		Time:          now,
		SessionDate:   snap.SessionDate,
		Cycle:         snap.Cycle,
		CommittedAt:   snap.CommittedAt,
		MarketOpen:    e.calendar.IsOpen(now),
		InEntryWindow: e.calendar.InEntryWindow(now),
		Gate:          safety.Gate(snap.Safety),
		Safety:        snap.Safety,
		Positions:     sortedPositions(snap.Positions),
		Universe:      append([]string(nil), e.cfg.Universe.Symbols...),
		Benchmark:     e.cfg.Universe.Benchmark,
		RiskPct:       snap.Risk.RiskPct,
		Stats:         snap.Stats,
		LastSignals:   snap.LastSignals,
	}

	actx, cancel := e.withTimeout(ctx, e.cfg.Engine.AccountTimeout)
	defer cancel()
	if acct, err := e.broker.GetAccount(actx); err != nil {
		st.AccountError = err.Error()
	} else {
		st.Account = &acct
	}
	return st, nil
}

// ClearKillSwitch is the only way to disengage the kill switch. It reports
// whether the switch was engaged.
func (e *Engine) ClearKillSwitch(ctx context.Context, operator string) (bool, error) {
	operator = strings.TrimSpace(operator)
	if operator == "" {
		return false, fmt.Errorf("clear kill switch: %w", ErrOperatorRequired)
	}
	if !e.cycleMu.TryLock() {
		return false, ErrCycleBusy
	}
	defer e.cycleMu.Unlock()

	snap, err := e.store.Load()
	if err != nil {
		return false, err
	}
	if snap == nil || !snap.Safety.KillSwitch.Engaged {
		return false, nil
	}

	now := e.now()
	next := snap.Clone()
	next.Safety.KillSwitch.Clear(now, operator)
	if err := e.store.Commit(next, now); err != nil {
		return false, err
	}
	e.log.Warn("kill switch cleared", zap.String("operator", operator))
	e.notify(notify.Message{
		Subject:  "Kill switch cleared",
		Body:     fmt.Sprintf("Cleared by %s at %s.", operator, now.UTC().Format(time.RFC3339)),
		Severity: notify.Warning,
	})
	return true, nil
}
