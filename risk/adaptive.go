package risk

// Drawdown is the fractional decline of equity from peak.
func Drawdown(equity, peak float64) float64 {
	if peak <= 0 || equity >= peak {
		return 0
	}
	return (peak - equity) / peak
}

// EquitySlope is the least-squares slope of history per step, normalized by
// the mean equity so 0.001 means +0.1% per session.
func EquitySlope(history []float64) float64 {
	n := len(history)
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range history {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	nf := float64(n)
	den := nf*sumXX - sumX*sumX
	mean := sumY / nf
	if den == 0 || mean <= 0 {
		return 0
	}
	slope := (nf*sumXY - sumX*sumY) / den
	return slope / mean
}

// AdaptiveRiskPct adjusts the base per-trade risk for drawdown and equity
// curve slope. The result never leaves [RiskPctMin, RiskPctMax].
func AdaptiveRiskPct(p Policy, equity, peak float64, history []float64) float64 {
	pct := p.RiskPctBase
	switch {
	case Drawdown(equity, peak) > p.DrawdownThreshold:
		pct *= 1 - p.DrawdownReduction
	case p.SlopeLookback > 0 && len(history) >= p.SlopeLookback &&
		EquitySlope(history[len(history)-p.SlopeLookback:]) > p.SlopeThreshold:
		pct *= 1 + p.SlopeBoost
	}
	return clamp(pct, p.RiskPctMin, p.RiskPctMax)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
