package safety

import "time"

type KillSwitchConfig struct {
	MaxErrors int           `json:"max_errors" yaml:"max_errors"`
	Window    time.Duration `json:"window" yaml:"window"`
}

// KillSwitch engages after MaxErrors qualifying errors fall inside a rolling
// Window. Once engaged it stays engaged until Clear.
type KillSwitch struct {
	Engaged   bool        `json:"engaged"`
	EngagedAt time.Time   `json:"engaged_at,omitempty"`
	Errors    []time.Time `json:"error_timestamps,omitempty"`
	ClearedBy string      `json:"cleared_by,omitempty"`
	ClearedAt time.Time   `json:"cleared_at,omitempty"`
}

// RecordError notes an error at now and reports whether this call engaged
// the switch.
func (k *KillSwitch) RecordError(now time.Time, cfg KillSwitchConfig) bool {
	cutoff := now.Add(-cfg.Window)
	kept := k.Errors[:0]
	for _, ts := range k.Errors {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	k.Errors = append(kept, now)

	if k.Engaged || len(k.Errors) < cfg.MaxErrors {
		return false
	}
	k.Engaged = true
	k.EngagedAt = now
	return true
}

// Clear is the operator reset. It drops the error history as well.
func (k *KillSwitch) Clear(now time.Time, operator string) {
	k.Engaged = false
	k.EngagedAt = time.Time{}
	k.Errors = nil
	k.ClearedBy = operator
	k.ClearedAt = now
}

func (k KillSwitch) clone() KillSwitch {
	k.Errors = append([]time.Time(nil), k.Errors...)
	return k
}
