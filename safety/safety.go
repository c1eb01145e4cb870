// Package safety holds the four independently tracked guards that can veto
// entries or force a flatten: kill switch, circuit breaker, daily loss and
// consecutive losses.
package safety

import "time"

// Config bundles the guard thresholds.
type Config struct {
	KillSwitch         KillSwitchConfig `json:"kill_switch" yaml:"kill_switch"`
	Circuit            CircuitConfig    `json:"circuit_breaker" yaml:"circuit_breaker"`
	DailyLossPct       float64          `json:"daily_loss_pct" yaml:"daily_loss_pct"`
	MaxConsecutiveLoss int              `json:"max_consecutive_losses" yaml:"max_consecutive_losses"`
}

func DefaultConfig() Config {
	return Config{
		KillSwitch: KillSwitchConfig{
			MaxErrors: 3,
			Window:    10 * time.Minute,
		},
		Circuit: CircuitConfig{
			VolatilityMax: 30,
			ATRMultiple:   2,
			ClearCycles:   1,
		},
		DailyLossPct:       0.03,
		MaxConsecutiveLoss: 3,
	}
}

// State is the SafetyState carried in the session snapshot.
type State struct {
	KillSwitch        KillSwitch        `json:"kill_switch"`
	CircuitBreaker    CircuitBreaker    `json:"circuit_breaker"`
	DailyLoss         DailyLoss         `json:"daily_loss"`
	ConsecutiveLosses ConsecutiveLosses `json:"consecutive_losses"`
}

// NewSession resets the per-session guards. The kill switch is carried over
// untouched; only an operator clear disengages it.
func (s State) NewSession(startEquity float64) State {
	return State{
		KillSwitch: s.KillSwitch.clone(),
		DailyLoss:  DailyLoss{StartEquity: startEquity},
	}
}

// RecordTrade feeds a closed trade's realized P&L to the loss guards. It
// returns which guards transitioned to blocking.
func (s *State) RecordTrade(pnl float64, cfg Config) (dailyBreached, paused bool) {
	dailyBreached = s.DailyLoss.Record(pnl, cfg.DailyLossPct)
	paused = s.ConsecutiveLosses.Record(pnl, cfg.MaxConsecutiveLoss)
	return dailyBreached, paused
}

// RecordPartial feeds realized P&L from a partial exit. It counts toward the
// daily loss but is not a closed trade.
func (s *State) RecordPartial(pnl float64, cfg Config) bool {
	return s.DailyLoss.Record(pnl, cfg.DailyLossPct)
}
