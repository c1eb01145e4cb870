package indicators

import "fmt"

// MACDResult is the MACD line, its signal line and the histogram at the
// latest bar.
type MACDResult struct {
	Line   float64
	Signal float64
	Hist   float64
}

// MACD computes EMA(fast) - EMA(slow) and an EMA(signal) of that line. The
// minimum input is slow+signal-1 values.
func MACD(values []float64, fast, slow, signal int) (MACDResult, error) {
	for _, p := range []int{fast, slow, signal} {
		if err := checkPeriod("MACD", p); err != nil {
			return MACDResult{}, err
		}
	}
	if fast >= slow {
		return MACDResult{}, fmt.Errorf("MACD: fast period %d must be below slow %d", fast, slow)
	}
	need := slow + signal - 1
	if len(values) < need {
		return MACDResult{}, insufficient(fmt.Sprintf("MACD(%d,%d,%d)", fast, slow, signal), need, len(values))
	}

	fs, err := EMASeries(values, fast)
	if err != nil {
		return MACDResult{}, err
	}
	ss, err := EMASeries(values, slow)
	if err != nil {
		return MACDResult{}, err
	}

	// Align both series on the slow EMA's first index.
	offset := slow - fast
	line := make([]float64, len(ss))
	for i := range ss {
		line[i] = fs[i+offset] - ss[i]
	}

	sig, err := EMASeries(line, signal)
	if err != nil {
		return MACDResult{}, err
	}
	l, s := last(line), last(sig)
	return MACDResult{Line: l, Signal: s, Hist: l - s}, nil
}
