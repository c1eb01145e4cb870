package strategies

import (
	"github.com/rustyeddy/equitybot/indicators"
	"github.com/rustyeddy/equitybot/market"
)

// Trend is the benchmark's confirmed trend state.
type Trend string

const (
	TrendUp      Trend = "up"
	TrendDown    Trend = "down"
	TrendNeutral Trend = "neutral"
)

// Benchmark summarizes the market-breadth reference instrument for a cycle.
type Benchmark struct {
	Symbol       string  `json:"symbol"`
	Available    bool    `json:"available"`
	Trend        Trend   `json:"trend"`
	EMAFast      float64 `json:"ema_fast"`
	EMASlow      float64 `json:"ema_slow"`
	ADX          float64 `json:"adx"`
	ATRPct       float64 `json:"atr_pct"`
	ATRPctMedian float64 `json:"atr_pct_median"`
}

// AllowsLong is false only when the benchmark is in a confirmed downtrend or
// unavailable.
func (b Benchmark) AllowsLong() bool {
	return b.Available && b.Trend != TrendDown
}

func (b Benchmark) AllowsShort() bool {
	return b.Available && b.Trend != TrendUp
}

// EvaluateBenchmark classifies the benchmark. A trend is confirmed when the
// EMAs are ordered and ADX exceeds adxThreshold. medianLookback bounds the
// trailing ATR% window used by the circuit breaker.
func EvaluateBenchmark(symbol string, bars market.Bars, p indicators.Params, adxThreshold float64, medianLookback int) (Benchmark, error) {
	set, err := indicators.Compute(bars, p)
	if err != nil {
		return Benchmark{Symbol: symbol}, err
	}
	series, err := indicators.ATRPercentSeries(bars, p.ATR)
	if err != nil {
		return Benchmark{Symbol: symbol}, err
	}
	// Trailing median excludes the current bar.
	trailing := series[:len(series)-1]
	if medianLookback > 0 && len(trailing) > medianLookback {
		trailing = trailing[len(trailing)-medianLookback:]
	}

	b := Benchmark{
		Symbol:       symbol,
		Available:    true,
		Trend:        TrendNeutral,
		EMAFast:      set.EMAFast,
		EMASlow:      set.EMASlow,
		ADX:          set.ADX,
		ATRPct:       set.ATRPct,
		ATRPctMedian: indicators.Median(trailing),
	}
	if set.ADX > adxThreshold {
		switch {
		case set.EMAFast > set.EMASlow:
			b.Trend = TrendUp
		case set.EMAFast < set.EMASlow:
			b.Trend = TrendDown
		}
	}
	return b, nil
}
