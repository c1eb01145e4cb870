package indicators

// Regime buckets current volatility against its own recent history.
type Regime string

const (
	RegimeLow    Regime = "low"
	RegimeNormal Regime = "normal"
	RegimeHigh   Regime = "high"
)

// Regime boundaries relative to the trailing median ATR%.
const (
	HighVolMultiple = 1.5
	LowVolMultiple  = 0.7
)

// VolatilityRegime compares the latest ATR% with the median of the trailing
// lookback values (the latest included).
func VolatilityRegime(atrPct []float64, lookback int) Regime {
	if len(atrPct) == 0 {
		return RegimeNormal
	}
	window := atrPct
	if lookback > 0 && len(window) > lookback {
		window = window[len(window)-lookback:]
	}
	med := Median(window)
	if med <= 0 {
		return RegimeNormal
	}
	cur := last(atrPct)
	switch {
	case cur > HighVolMultiple*med:
		return RegimeHigh
	case cur < LowVolMultiple*med:
		return RegimeLow
	}
	return RegimeNormal
}
