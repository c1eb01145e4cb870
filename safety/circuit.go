package safety

import (
	"fmt"
	"strings"
	"time"
)

type CircuitConfig struct {
	VolatilityMax float64 `json:"volatility_max" yaml:"volatility_max"` // VIX level
	ATRMultiple   float64 `json:"atr_multiple" yaml:"atr_multiple"`     // benchmark ATR% vs trailing median
	// ClearCycles is how many consecutive calm evaluations clear an engaged
	// breaker. 1 clears on the first calm cycle.
	ClearCycles int `json:"clear_cycles" yaml:"clear_cycles"`
}

// CircuitInputs are the market readings for one evaluation. Missing readings
// do not trigger the breaker.
type CircuitInputs struct {
	Volatility     float64
	HasVolatility  bool
	BenchATRPct    float64
	BenchATRMedian float64
	HasBenchmark   bool
}

type CircuitBreaker struct {
	Engaged    bool      `json:"engaged"`
	Reason     string    `json:"reason,omitempty"`
	EngagedAt  time.Time `json:"engaged_at,omitempty"`
	CalmStreak int       `json:"calm_streak,omitempty"`
}

// Evaluate re-checks the breaker and reports whether its engaged state
// changed.
func (c *CircuitBreaker) Evaluate(in CircuitInputs, cfg CircuitConfig, now time.Time) bool {
	var reasons []string
	if in.HasVolatility && cfg.VolatilityMax > 0 && in.Volatility > cfg.VolatilityMax {
		reasons = append(reasons, fmt.Sprintf("volatility index %.2f above %.2f", in.Volatility, cfg.VolatilityMax))
	}
	if in.HasBenchmark && cfg.ATRMultiple > 0 && in.BenchATRMedian > 0 &&
		in.BenchATRPct > cfg.ATRMultiple*in.BenchATRMedian {
		reasons = append(reasons, fmt.Sprintf("benchmark atr%% %.4f above %.1fx median %.4f",
			in.BenchATRPct, cfg.ATRMultiple, in.BenchATRMedian))
	}

	if len(reasons) > 0 {
		changed := !c.Engaged
		if changed {
			c.EngagedAt = now
		}
		c.Engaged = true
		c.Reason = strings.Join(reasons, "; ")
		c.CalmStreak = 0
		return changed
	}

	if !c.Engaged {
		return false
	}
	c.CalmStreak++
	if c.CalmStreak >= max(1, cfg.ClearCycles) {
		*c = CircuitBreaker{}
		return true
	}
	return false
}
