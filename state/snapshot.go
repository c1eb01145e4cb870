// Package state persists the engine's session snapshot. The snapshot is the
// single source of truth between cycles and process restarts.
package state

import (
	"time"

	"github.com/rustyeddy/equitybot/position"
	"github.com/rustyeddy/equitybot/safety"
	"github.com/rustyeddy/equitybot/strategies"
)

// Version is bumped whenever the snapshot layout changes incompatibly.
const Version = 1

// EquityPoint is one end-of-session equity reading.
type EquityPoint struct {
	Date   string  `json:"date"`
	Equity float64 `json:"equity"`
}

// RiskInputs feeds the adaptive risk percentage.
type RiskInputs struct {
	StartEquity   float64       `json:"start_equity"`
	PeakEquity    float64       `json:"peak_equity"`
	EquityHistory []EquityPoint `json:"equity_history,omitempty"`
	RiskPct       float64       `json:"risk_pct"`
}

// RecordEquity appends or replaces the reading for date and raises the peak.
// The history is capped at keep entries.
func (r *RiskInputs) RecordEquity(date string, equity float64, keep int) {
	if n := len(r.EquityHistory); n > 0 && r.EquityHistory[n-1].Date == date {
		r.EquityHistory[n-1].Equity = equity
	} else {
		r.EquityHistory = append(r.EquityHistory, EquityPoint{Date: date, Equity: equity})
	}
	if keep > 0 && len(r.EquityHistory) > keep {
		r.EquityHistory = r.EquityHistory[len(r.EquityHistory)-keep:]
	}
	if equity > r.PeakEquity {
		r.PeakEquity = equity
	}
}

// Equities returns the history as a plain series, oldest first.
func (r RiskInputs) Equities() []float64 {
	out := make([]float64, len(r.EquityHistory))
	for i, p := range r.EquityHistory {
		out[i] = p.Equity
	}
	return out
}

// SessionStats are the running counters behind the end-of-day summary.
type SessionStats struct {
	Trades      int     `json:"trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	GrossProfit float64 `json:"gross_profit"`
	GrossLoss   float64 `json:"gross_loss"`
	Entries     int     `json:"entries"`
	Exits       int     `json:"exits"`
	Shadows     int     `json:"shadows"`
	Errors      int     `json:"errors"`
	SummarySent bool    `json:"summary_sent,omitempty"`
}

// RecordClose books a closed trade's realized P&L.
func (s *SessionStats) RecordClose(pnl float64) {
	s.Trades++
	if pnl > 0 {
		s.Wins++
		s.GrossProfit += pnl
	} else if pnl < 0 {
		s.Losses++
		s.GrossLoss += -pnl
	}
}

// WinRate is wins over closed trades, 0 with no trades.
func (s SessionStats) WinRate() float64 {
	if s.Trades == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Trades)
}

// NetPnL is gross profit less gross loss.
func (s SessionStats) NetPnL() float64 {
	return s.GrossProfit - s.GrossLoss
}

// Snapshot is everything the engine carries from one cycle to the next.
type Snapshot struct {
	Version     int                          `json:"version"`
	SessionDate string                       `json:"session_date"`
	Cycle       int64                        `json:"cycle"`
	CommittedAt time.Time                    `json:"committed_at"`
	Positions   position.Book                `json:"positions"`
	Safety      safety.State                 `json:"safety"`
	Risk        RiskInputs                   `json:"risk"`
	LastSignals map[string]strategies.Signal `json:"last_signals,omitempty"`
	Stats       SessionStats                 `json:"stats"`
	// Slippage is each symbol's average entry slippage in basis points. It
	// carries across sessions.
	Slippage map[string]float64 `json:"slippage,omitempty"`
}

// New returns an empty snapshot for the session on date.
func New(date string) *Snapshot {
	return &Snapshot{
		Version:     Version,
		SessionDate: date,
		Positions:   position.Book{},
		LastSignals: map[string]strategies.Signal{},
	}
}

// Clone returns a deep copy so a cycle can build its next snapshot without
// touching the committed one.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Positions = s.Positions.Clone()
	out.Safety.KillSwitch.Errors = append([]time.Time(nil), s.Safety.KillSwitch.Errors...)
	out.Risk.EquityHistory = append([]EquityPoint(nil), s.Risk.EquityHistory...)
	out.LastSignals = make(map[string]strategies.Signal, len(s.LastSignals))
	for k, v := range s.LastSignals {
		v.FilterTrail = append([]strategies.FilterResult(nil), v.FilterTrail...)
		out.LastSignals[k] = v
	}
	if s.Slippage != nil {
		out.Slippage = make(map[string]float64, len(s.Slippage))
		for k, v := range s.Slippage {
			out.Slippage[k] = v
		}
	}
	return &out
}

// RecordSlippage folds one fill's slippage into the symbol's average. The
// first fill seeds it.
func (s *Snapshot) RecordSlippage(symbol string, bps float64) float64 {
	if s.Slippage == nil {
		s.Slippage = map[string]float64{}
	}
	avg, ok := s.Slippage[symbol]
	if !ok {
		avg = bps
	}
	avg = 0.7*avg + 0.3*bps
	s.Slippage[symbol] = avg
	return avg
}

// normalize fills nil maps left by older or hand-edited files.
func (s *Snapshot) normalize() {
	if s.Positions == nil {
		s.Positions = position.Book{}
	}
	if s.LastSignals == nil {
		s.LastSignals = map[string]strategies.Signal{}
	}
}
