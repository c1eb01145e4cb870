package strategies

import (
	"strings"
	"time"

	"github.com/rustyeddy/equitybot/indicators"
	"github.com/rustyeddy/equitybot/market"
)

// Direction is the trade direction of a Signal.
type Direction string

const (
	Flat  Direction = "flat"
	Long  Direction = "long"
	Short Direction = "short"
)

// Side maps a non-flat direction onto a position side.
func (d Direction) Side() market.Side {
	if d == Short {
		return market.Short
	}
	return market.Long
}

// FromCross maps an EMA crossover onto a candidate direction.
func FromCross(c indicators.Cross) Direction {
	switch c {
	case indicators.CrossUp:
		return Long
	case indicators.CrossDown:
		return Short
	}
	return Flat
}

// Filter names, in evaluation order.
const (
	FilterRegime         = "regime"
	FilterVolatility     = "volatility"
	FilterMomentum       = "momentum"
	FilterMultiTimeframe = "multi_timeframe"
	FilterBreadth        = "breadth"
	FilterLiquidity      = "liquidity"
	FilterDontChase      = "dont_chase"
)

// FilterResult is one entry of a signal's filter trail.
type FilterResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Signal is the per-cycle verdict for one symbol. Candidate is what the
// crossover proposed; Direction is what survived the filters. A candidate
// that failed a filter is a shadow signal and keeps Direction flat.
type Signal struct {
	Symbol      string            `json:"symbol"`
	Direction   Direction         `json:"direction"`
	Candidate   Direction         `json:"candidate"`
	GeneratedAt time.Time         `json:"generated_at"`
	FilterTrail []FilterResult    `json:"filter_trail,omitempty"`
	Strength    float64           `json:"strength"`
	Price       float64           `json:"price"`
	ATR         float64           `json:"atr"`
	ATRPct      float64           `json:"atr_pct"`
	Regime      indicators.Regime `json:"regime"`
}

// Actionable reports whether the signal should be forwarded to sizing.
func (s Signal) Actionable() bool {
	return s.Direction != Flat
}

// Shadow reports whether a candidate was rejected by a filter.
func (s Signal) Shadow() bool {
	return s.Candidate != Flat && s.Direction == Flat
}

// FailedFilter returns the name of the filter that rejected the candidate,
// or "" when none did.
func (s Signal) FailedFilter() string {
	for _, f := range s.FilterTrail {
		if !f.Passed {
			return f.Name
		}
	}
	return ""
}

// Trail renders the filter trail as "regime:pass,volatility:fail".
func (s Signal) Trail() string {
	parts := make([]string, 0, len(s.FilterTrail))
	for _, f := range s.FilterTrail {
		verdict := "pass"
		if !f.Passed {
			verdict = "fail"
		}
		parts = append(parts, f.Name+":"+verdict)
	}
	return strings.Join(parts, ",")
}
