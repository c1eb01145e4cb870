package strategies

import (
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/equitybot/indicators"
	"github.com/rustyeddy/equitybot/market"
)

// Thresholds configure the entry filters.
type Thresholds struct {
	ADXMin          float64 `json:"adx_min" yaml:"adx_min"`
	ATRPctMin       float64 `json:"atr_pct_min" yaml:"atr_pct_min"`
	RSILong         float64 `json:"rsi_long" yaml:"rsi_long"`
	RSIShort        float64 `json:"rsi_short" yaml:"rsi_short"`
	RSILongHighVol  float64 `json:"rsi_long_high_vol" yaml:"rsi_long_high_vol"`
	RSIShortHighVol float64 `json:"rsi_short_high_vol" yaml:"rsi_short_high_vol"`

	// MACD histogram bounds in the high volatility regime. In other regimes
	// the histogram only has to agree in sign.
	MACDHistLongHighVol  float64 `json:"macd_hist_long_high_vol" yaml:"macd_hist_long_high_vol"`
	MACDHistShortHighVol float64 `json:"macd_hist_short_high_vol" yaml:"macd_hist_short_high_vol"`

	// Liquidity floor. A zero value disables that check.
	MinPrice      float64 `json:"min_price" yaml:"min_price"`
	MinADVDollars float64 `json:"min_adv_dollars" yaml:"min_adv_dollars"`
	MaxSpreadBps  float64 `json:"max_spread_bps" yaml:"max_spread_bps"`

	// DontChaseATR rejects entries further than this many ATRs from the slow
	// EMA. Zero disables the check.
	DontChaseATR float64 `json:"dont_chase_atr" yaml:"dont_chase_atr"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		ADXMin:          18,
		ATRPctMin:       0.0015,
		RSILong:         55,
		RSIShort:        45,
		RSILongHighVol:  60,
		RSIShortHighVol: 40,

		MACDHistLongHighVol:  0.5,
		MACDHistShortHighVol: -0.5,

		MinPrice:      5,
		MinADVDollars: 50_000_000,
		MaxSpreadBps:  10,
	}
}

// Input is everything the generator looks at for one symbol.
type Input struct {
	Symbol    string
	Primary   indicators.Set     // 5-minute
	Confirm   indicators.EMAPair // 15-minute
	Benchmark Benchmark
	Liquidity Liquidity
	Now       time.Time
}

// Liquidity is how easily a symbol trades.
type Liquidity struct {
	// ADVDollars is the mean daily close*volume; zero when unknown.
	ADVDollars float64
	// SpreadBps estimates the spread from the median 5-minute bar range.
	SpreadBps float64
}

type filter struct {
	name  string
	check func(th Thresholds, in Input, dir Direction) (bool, string)
}

// Generator turns indicator sets into Signals through a fixed filter chain.
type Generator struct {
	th      Thresholds
	filters []filter
}

func NewGenerator(th Thresholds) *Generator {
	g := &Generator{
		th: th,
		filters: []filter{
			{FilterRegime, regimeFilter},
			{FilterVolatility, volatilityFilter},
			{FilterMomentum, momentumFilter},
			{FilterMultiTimeframe, multiTimeframeFilter},
			{FilterBreadth, breadthFilter},
			{FilterLiquidity, liquidityFilter},
		},
	}
	if th.DontChaseATR > 0 {
		g.filters = append(g.filters, filter{FilterDontChase, dontChaseFilter})
	}
	return g
}

// Evaluate produces this cycle's Signal for in.Symbol. Filters run in order
// and stop at the first failure; the trail never lists a filter after it.
func (g *Generator) Evaluate(in Input) Signal {
	set := in.Primary
	sig := Signal{
		Symbol:      in.Symbol,
		Direction:   Flat,
		Candidate:   FromCross(set.Cross()),
		GeneratedAt: in.Now,
		Strength:    Strength(set),
		Price:       set.Close,
		ATR:         set.ATR,
		ATRPct:      set.ATRPct,
		Regime:      set.Regime,
	}
	if sig.Candidate == Flat {
		return sig
	}

	for _, f := range g.filters {
		ok, detail := f.check(g.th, in, sig.Candidate)
		sig.FilterTrail = append(sig.FilterTrail, FilterResult{Name: f.name, Passed: ok, Detail: detail})
		if !ok {
			return sig
		}
	}
	sig.Direction = sig.Candidate
	return sig
}

// Strength ranks signals for allocation: EMA separation in ATRs scaled by
// trend strength.
func Strength(set indicators.Set) float64 {
	if set.ATR <= 0 {
		return 0
	}
	return math.Abs(set.EMAFast-set.EMASlow) / set.ATR * set.ADX / 100
}

func regimeFilter(th Thresholds, in Input, _ Direction) (bool, string) {
	adx := in.Primary.ADX
	return adx > th.ADXMin, fmt.Sprintf("adx %.2f vs %.2f", adx, th.ADXMin)
}

func volatilityFilter(th Thresholds, in Input, _ Direction) (bool, string) {
	p := in.Primary.ATRPct
	return p >= th.ATRPctMin, fmt.Sprintf("atr%% %.4f vs %.4f", p, th.ATRPctMin)
}

func momentumFilter(th Thresholds, in Input, dir Direction) (bool, string) {
	set := in.Primary
	upper, lower := th.RSILong, th.RSIShort
	histLong, histShort := 0.0, 0.0
	if set.Regime == indicators.RegimeHigh {
		upper, lower = th.RSILongHighVol, th.RSIShortHighVol
		histLong, histShort = th.MACDHistLongHighVol, th.MACDHistShortHighVol
	}
	hist := set.MACD - set.MACDSignal
	detail := fmt.Sprintf("rsi %.2f macd %.4f signal %.4f hist %.4f", set.RSI, set.MACD, set.MACDSignal, hist)
	if dir == Long {
		return set.RSI > upper && hist > histLong, detail
	}
	return set.RSI < lower && hist < histShort, detail
}

func multiTimeframeFilter(_ Thresholds, in Input, dir Direction) (bool, string) {
	c := in.Confirm
	detail := fmt.Sprintf("15m fast %.4f slow %.4f", c.Fast, c.Slow)
	if dir == Long {
		return c.Fast > c.Slow, detail
	}
	return c.Fast < c.Slow, detail
}

func breadthFilter(_ Thresholds, in Input, dir Direction) (bool, string) {
	b := in.Benchmark
	if !b.Available {
		return false, "benchmark unavailable"
	}
	detail := fmt.Sprintf("%s trend %s", b.Symbol, b.Trend)
	if dir == Long {
		return b.AllowsLong(), detail
	}
	return b.AllowsShort(), detail
}

func liquidityFilter(th Thresholds, in Input, _ Direction) (bool, string) {
	px, liq := in.Primary.Close, in.Liquidity
	detail := fmt.Sprintf("price %.2f adv$ %.0f spread %.1fbps", px, liq.ADVDollars, liq.SpreadBps)
	switch {
	case th.MinPrice > 0 && px < th.MinPrice:
		return false, detail
	case th.MinADVDollars > 0 && liq.ADVDollars < th.MinADVDollars:
		return false, detail
	case th.MaxSpreadBps > 0 && liq.SpreadBps > th.MaxSpreadBps:
		return false, detail
	}
	return true, detail
}

// ADVDollars is the mean close*volume over the last n daily bars.
func ADVDollars(daily market.Bars, n int) float64 {
	if n > 0 && len(daily) > n {
		daily = daily[len(daily)-n:]
	}
	if len(daily) == 0 {
		return 0
	}
	var sum float64
	for _, b := range daily {
		sum += b.Close * b.Volume
	}
	return sum / float64(len(daily))
}

// SpreadBps is the median (high-low)/close of the last n bars in basis
// points.
func SpreadBps(bars market.Bars, n int) float64 {
	if n > 0 && len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	ranges := make([]float64, 0, len(bars))
	for _, b := range bars {
		if b.Close > 0 {
			ranges = append(ranges, (b.High-b.Low)/b.Close)
		}
	}
	if len(ranges) == 0 {
		return 0
	}
	return indicators.Median(ranges) * 10000
}

func dontChaseFilter(th Thresholds, in Input, _ Direction) (bool, string) {
	set := in.Primary
	dist := math.Abs(set.Close - set.EMASlow)
	limit := th.DontChaseATR * set.ATR
	return dist <= limit, fmt.Sprintf("distance %.4f vs %.4f", dist, limit)
}
