package risk

import (
	"math"

	"github.com/rustyeddy/equitybot/indicators"
	"github.com/rustyeddy/equitybot/market"
)

type Inputs struct {
	Equity       float64
	RiskPct      float64 // 0.0075
	StopDistance float64 // price units per share
}

type Result struct {
	Quantity     int64
	StopDistance float64
	RiskAmount   float64 // Quantity * StopDistance
	Budgeted     float64 // Equity * RiskPct
}

// Calculate sizes a position so Quantity*StopDistance never exceeds
// Equity*RiskPct. Quantity is rounded down to whole shares.
func Calculate(in Inputs) Result {
	res := Result{StopDistance: in.StopDistance, Budgeted: in.Equity * in.RiskPct}
	if in.StopDistance <= 0 || res.Budgeted <= 0 {
		return res
	}
	q := math.Floor(res.Budgeted / in.StopDistance)
	if q > 0 && q*in.StopDistance > res.Budgeted {
		q--
	}
	res.Quantity = int64(q)
	res.RiskAmount = float64(res.Quantity) * in.StopDistance
	return res
}

// StopDistance is the ATR multiple for the regime, floored at MinStopPct of
// price.
func StopDistance(p Policy, price, atr float64, regime indicators.Regime) float64 {
	mult := p.StopATRMult
	if regime == indicators.RegimeHigh {
		mult = p.StopATRMultHighVol
	}
	return math.Max(mult*atr, p.MinStopPct*price)
}

// StopPrice places a stop dist away from entry on the losing side.
func StopPrice(side market.Side, entry, dist float64) float64 {
	return entry - side.Sign()*dist
}

// SlippageFactor scales a quantity for a symbol that has slipped observed
// basis points on average. The factor is target/observed, kept within
// [1-SlippageSizeCap, 1].
func SlippageFactor(p Policy, observed float64) float64 {
	if p.TargetSlippageBps <= 0 || observed <= p.TargetSlippageBps {
		return 1
	}
	return math.Max(1-p.SlippageSizeCap, p.TargetSlippageBps/observed)
}

// SlippageBps is the distance between the expected and filled price in
// basis points of the expected price.
func SlippageBps(expected, filled float64) float64 {
	if expected <= 0 {
		return 0
	}
	return math.Abs(filled-expected) / expected * 10000
}
