package indicators

import (
	"fmt"
	"time"

	"github.com/rustyeddy/equitybot/market"
)

// Params are the indicator periods used for one timeframe.
type Params struct {
	EMAFast        int `json:"ema_fast" yaml:"ema_fast"`
	EMASlow        int `json:"ema_slow" yaml:"ema_slow"`
	RSI            int `json:"rsi" yaml:"rsi"`
	MACDFast       int `json:"macd_fast" yaml:"macd_fast"`
	MACDSlow       int `json:"macd_slow" yaml:"macd_slow"`
	MACDSignal     int `json:"macd_signal" yaml:"macd_signal"`
	ADX            int `json:"adx" yaml:"adx"`
	ATR            int `json:"atr" yaml:"atr"`
	RegimeLookback int `json:"regime_lookback" yaml:"regime_lookback"`
}

func DefaultParams() Params {
	return Params{
		EMAFast:        9,
		EMASlow:        21,
		RSI:            14,
		MACDFast:       12,
		MACDSlow:       26,
		MACDSignal:     9,
		ADX:            14,
		ATR:            14,
		RegimeLookback: 20,
	}
}

// MinBars is the shortest bar sequence Compute accepts.
func (p Params) MinBars() int {
	return max(
		max(p.EMAFast, p.EMASlow)+1,
		p.RSI+1,
		p.MACDSlow+p.MACDSignal-1,
		p.ATR+1,
		2*p.ADX,
	)
}

// Set is the IndicatorSet for one (symbol, timeframe, as-of bar).
type Set struct {
	AsOf  time.Time `json:"as_of"`
	Close float64   `json:"close"`

	EMAFast     float64 `json:"ema_fast"`
	EMASlow     float64 `json:"ema_slow"`
	EMAFastPrev float64 `json:"ema_fast_prev"`
	EMASlowPrev float64 `json:"ema_slow_prev"`

	RSI        float64 `json:"rsi"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	MACDHist   float64 `json:"macd_hist"`

	ADX     float64 `json:"adx"`
	PlusDI  float64 `json:"plus_di"`
	MinusDI float64 `json:"minus_di"`

	ATR    float64 `json:"atr"`
	ATRPct float64 `json:"atr_pct"`
	Regime Regime  `json:"regime"`
}

// Cross is the EMA crossover at the as-of bar.
func (s Set) Cross() Cross {
	return Crossover(s.EMAFastPrev, s.EMASlowPrev, s.EMAFast, s.EMASlow)
}

// Compute builds a Set from bars. It fails with ErrInsufficientData when bars
// is shorter than p.MinBars().
func Compute(bars market.Bars, p Params) (Set, error) {
	if need := p.MinBars(); len(bars) < need {
		return Set{}, insufficient("indicator set", need, len(bars))
	}
	closes := bars.Closes()
	lastBar, _ := bars.Last()

	pair, err := EMACross(closes, p.EMAFast, p.EMASlow)
	if err != nil {
		return Set{}, err
	}
	rsi, err := RSI(closes, p.RSI)
	if err != nil {
		return Set{}, err
	}
	macd, err := MACD(closes, p.MACDFast, p.MACDSlow, p.MACDSignal)
	if err != nil {
		return Set{}, err
	}
	adx, err := ADX(bars, p.ADX)
	if err != nil {
		return Set{}, err
	}
	atrs, err := ATRSeries(bars, p.ATR)
	if err != nil {
		return Set{}, err
	}
	atrPct, err := ATRPercentSeries(bars, p.ATR)
	if err != nil {
		return Set{}, err
	}
	if lastBar.Close <= 0 {
		return Set{}, fmt.Errorf("indicator set: non-positive close %v at %s", lastBar.Close, lastBar.Time)
	}

	return Set{
		AsOf:        lastBar.Time,
		Close:       lastBar.Close,
		EMAFast:     pair.Fast,
		EMASlow:     pair.Slow,
		EMAFastPrev: pair.PrevFast,
		EMASlowPrev: pair.PrevSlow,
		RSI:         rsi,
		MACD:        macd.Line,
		MACDSignal:  macd.Signal,
		MACDHist:    macd.Hist,
		ADX:         adx.ADX,
		PlusDI:      adx.PlusDI,
		MinusDI:     adx.MinusDI,
		ATR:         last(atrs),
		ATRPct:      last(atrPct),
		Regime:      VolatilityRegime(atrPct, p.RegimeLookback),
	}, nil
}
