package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/equitybot/market"
)

// TrueRange of cur given the previous bar's close.
func TrueRange(cur market.Bar, prevClose float64) float64 {
	return max3(cur.High-cur.Low, math.Abs(cur.High-prevClose), math.Abs(cur.Low-prevClose))
}

// ATRSeries returns Wilder's ATR for every bar from index n onward. The first
// value is the mean of the first n true ranges. out[i] corresponds to
// bars[i+n].
func ATRSeries(bars market.Bars, n int) ([]float64, error) {
	if err := checkPeriod("ATR", n); err != nil {
		return nil, err
	}
	if len(bars) < n+1 {
		return nil, insufficient(fmt.Sprintf("ATR(%d)", n), n+1, len(bars))
	}

	nf := float64(n)
	sum := 0.0
	for i := 1; i <= n; i++ {
		sum += TrueRange(bars[i], bars[i-1].Close)
	}
	atr := sum / nf

	out := make([]float64, 0, len(bars)-n)
	out = append(out, atr)
	for i := n + 1; i < len(bars); i++ {
		atr = (atr*(nf-1) + TrueRange(bars[i], bars[i-1].Close)) / nf
		out = append(out, atr)
	}
	return out, nil
}

// ATR returns the latest Wilder ATR.
func ATR(bars market.Bars, n int) (float64, error) {
	s, err := ATRSeries(bars, n)
	if err != nil {
		return 0, err
	}
	return last(s), nil
}

// ATRPercentSeries is ATRSeries divided by the matching close.
func ATRPercentSeries(bars market.Bars, n int) ([]float64, error) {
	s, err := ATRSeries(bars, n)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(s))
	for i, atr := range s {
		c := bars[i+n].Close
		if c > 0 {
			out[i] = atr / c
		}
	}
	return out, nil
}

// ATRPercent is ATR / close at the latest bar.
func ATRPercent(bars market.Bars, n int) (float64, error) {
	s, err := ATRPercentSeries(bars, n)
	if err != nil {
		return 0, err
	}
	return last(s), nil
}

func max3(a, b, c float64) float64 {
	if a >= b && a >= c {
		return a
	}
	if b >= a && b >= c {
		return b
	}
	return c
}
