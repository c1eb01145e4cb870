package position

import (
	"math"

	"github.com/rustyeddy/equitybot/indicators"
	"github.com/rustyeddy/equitybot/market"
)

// Exit and reduce reasons.
const (
	ReasonStop          = "stop"
	ReasonFlattenEOD    = "flatten_eod"
	ReasonFlattenSafety = "flatten_safety"
	ReasonTimeStop      = "time_stop"
	ReasonOppositeCross = "opposite_cross"
	ReasonPartialTake   = "partial_take"
	ReasonExternal      = "closed_external"
)

// Kind distinguishes a full exit from a partial reduction.
type Kind string

const (
	KindExit   Kind = "exit"
	KindReduce Kind = "reduce"
)

// Instruction asks the execution layer to close some or all of a position.
type Instruction struct {
	Kind       Kind        `json:"kind"`
	PositionID string      `json:"position_id"`
	Symbol     string      `json:"symbol"`
	Side       market.Side `json:"side"`
	Quantity   int64       `json:"quantity"`
	Reason     string      `json:"reason"`
	Price      float64     `json:"price"`
}

// Rules configure trailing stops and the discretionary exits.
type Rules struct {
	TrailATRMult        float64 `json:"trail_atr_mult" yaml:"trail_atr_mult"`                   // 2.5
	TrailATRMultHighVol float64 `json:"trail_atr_mult_high_vol" yaml:"trail_atr_mult_high_vol"` // 1.5
	PartialTakeR        float64 `json:"partial_take_r" yaml:"partial_take_r"`                   // 1.5, 0 disables
	PartialFraction     float64 `json:"partial_fraction" yaml:"partial_fraction"`               // 0.5
	TimeStopBars        int     `json:"time_stop_bars" yaml:"time_stop_bars"`                   // 12, 0 disables
	TimeStopMinR        float64 `json:"time_stop_min_r" yaml:"time_stop_min_r"`                 // 0.25
	ExitOnOppositeCross bool    `json:"exit_on_opposite_cross" yaml:"exit_on_opposite_cross"`
}

func DefaultRules() Rules {
	return Rules{
		TrailATRMult:        2.5,
		TrailATRMultHighVol: 1.5,
		PartialTakeR:        1.5,
		PartialFraction:     0.5,
		TimeStopBars:        12,
		TimeStopMinR:        0.25,
		ExitOnOppositeCross: true,
	}
}

// Quote is the per-cycle market view of one held symbol. ATR is zero when
// indicators were unavailable; the stop is then checked but not trailed.
type Quote struct {
	Price         float64
	ATR           float64
	Regime        indicators.Regime
	OppositeCross bool
}

type Manager struct {
	rules Rules
}

func NewManager(r Rules) *Manager {
	return &Manager{rules: r}
}

// Manage advances p by one cycle: trail the stop, then check exits in order
// stop, opposite cross, time stop, partial take. It returns the updated
// position and at most one instruction.
func (m *Manager) Manage(p Position, q Quote) (Position, *Instruction) {
	if q.Price <= 0 {
		return p, nil
	}
	if q.ATR > 0 {
		mult := m.rules.TrailATRMult
		if q.Regime == indicators.RegimeHigh {
			mult = m.rules.TrailATRMultHighVol
		}
		p.StopPrice = TrailStop(p, q.Price, q.ATR, mult)
		p.BarsHeld++
	}

	if StopCrossed(p, q.Price) {
		return p, exit(p, ReasonStop, q.Price)
	}
	if m.rules.ExitOnOppositeCross && q.OppositeCross {
		return p, exit(p, ReasonOppositeCross, q.Price)
	}
	r := p.RMultiple(q.Price)
	if m.rules.TimeStopBars > 0 && p.BarsHeld >= m.rules.TimeStopBars && r < m.rules.TimeStopMinR {
		return p, exit(p, ReasonTimeStop, q.Price)
	}
	if m.rules.PartialTakeR > 0 && !p.PartialTaken && r >= m.rules.PartialTakeR {
		qty := int64(math.Floor(float64(p.Quantity) * m.rules.PartialFraction))
		if qty >= 1 && qty < p.Quantity {
			return p, &Instruction{
				Kind:       KindReduce,
				PositionID: p.ID,
				Symbol:     p.Symbol,
				Side:       p.Side,
				Quantity:   qty,
				Reason:     ReasonPartialTake,
				Price:      q.Price,
			}
		}
	}
	return p, nil
}

// Flatten is the unconditional exit used at flatten-by and by the safety
// gate.
func Flatten(p Position, reason string, price float64) Instruction {
	return *exit(p, reason, price)
}

func exit(p Position, reason string, price float64) *Instruction {
	return &Instruction{
		Kind:       KindExit,
		PositionID: p.ID,
		Symbol:     p.Symbol,
		Side:       p.Side,
		Quantity:   p.Quantity,
		Reason:     reason,
		Price:      price,
	}
}
