package safety

import "strings"

// Reason names a guard that is currently blocking.
type Reason string

const (
	ReasonKillSwitch        Reason = "kill_switch"
	ReasonCircuitBreaker    Reason = "circuit_breaker"
	ReasonDailyLoss         Reason = "daily_loss"
	ReasonConsecutiveLosses Reason = "consecutive_losses"
)

// Decision is the gate's verdict for a cycle. Exits and stop management are
// never gated.
type Decision struct {
	BlockEntries bool     `json:"block_entries"`
	Flatten      bool     `json:"flatten"`
	Reasons      []Reason `json:"reasons,omitempty"`
}

func (d Decision) String() string {
	if !d.BlockEntries {
		return "open"
	}
	parts := make([]string, len(d.Reasons))
	for i, r := range d.Reasons {
		parts[i] = string(r)
	}
	s := "blocked: " + strings.Join(parts, ",")
	if d.Flatten {
		s += " (flatten)"
	}
	return s
}

// Has reports whether r is among the blocking reasons.
func (d Decision) Has(r Reason) bool {
	for _, x := range d.Reasons {
		if x == r {
			return true
		}
	}
	return false
}

// Gate ORs the four guards. The kill switch and a breached daily loss also
// force a flatten.
func Gate(s State) Decision {
	var d Decision
	if s.KillSwitch.Engaged {
		d.Reasons = append(d.Reasons, ReasonKillSwitch)
		d.Flatten = true
	}
	if s.CircuitBreaker.Engaged {
		d.Reasons = append(d.Reasons, ReasonCircuitBreaker)
	}
	if s.DailyLoss.Breached {
		d.Reasons = append(d.Reasons, ReasonDailyLoss)
		d.Flatten = true
	}
	if s.ConsecutiveLosses.Paused {
		d.Reasons = append(d.Reasons, ReasonConsecutiveLosses)
	}
	d.BlockEntries = len(d.Reasons) > 0
	return d
}
