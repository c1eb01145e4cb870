package market

import (
	"fmt"
	"time"
)

// Timeframe names a bar interval the way the data vendor spells it.
type Timeframe string

const (
	TF5Min  Timeframe = "5Min"
	TF15Min Timeframe = "15Min"
	TF1Day  Timeframe = "1Day"
)

// Duration returns the length of one bar.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF5Min:
		return 5 * time.Minute
	case TF15Min:
		return 15 * time.Minute
	case TF1Day:
		return 24 * time.Hour
	}
	return 0
}

// Side is the direction of a held position.
type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// Sign returns +1 for long and -1 for short.
func (s Side) Sign() float64 {
	if s == Short {
		return -1
	}
	return 1
}

func (s Side) Opposite() Side {
	if s == Short {
		return Long
	}
	return Short
}

// Bar is one OHLCV sample for a symbol at a timeframe. Bars are treated as
// immutable once received.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Bars is an ordered, append-only bar sequence.
type Bars []Bar

func (b Bars) Closes() []float64 {
	out := make([]float64, len(b))
	for i, bar := range b {
		out[i] = bar.Close
	}
	return out
}

// Last returns the most recent bar.
func (b Bars) Last() (Bar, bool) {
	if len(b) == 0 {
		return Bar{}, false
	}
	return b[len(b)-1], true
}

// Tail returns the last n bars, or all of them when fewer exist.
func (b Bars) Tail(n int) Bars {
	if n <= 0 || n >= len(b) {
		return b
	}
	return b[len(b)-n:]
}

// Validate checks that timestamps are strictly increasing.
func (b Bars) Validate() error {
	for i := 1; i < len(b); i++ {
		if !b[i].Time.After(b[i-1].Time) {
			return fmt.Errorf("bar %d at %s is not after %s", i, b[i].Time.Format(time.RFC3339), b[i-1].Time.Format(time.RFC3339))
		}
	}
	return nil
}
