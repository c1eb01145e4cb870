// Package journal records executed trades, rejected (shadow) signals and
// end-of-day summaries.
package journal

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/equitybot/market"
)

// Action is what a trade row did to the position.
type Action string

const (
	ActionEntry  Action = "entry"
	ActionExit   Action = "exit"
	ActionReduce Action = "reduce"
)

type TradeRecord struct {
	ID         string
	PositionID string
	Symbol     string
	Side       market.Side
	Action     Action
	Quantity   int64
	EntryPrice float64
	ExitPrice  float64
	OpenTime   time.Time
	CloseTime  time.Time
	RealizedPL float64
	RMultiple  float64
	Reason     string
}

// ShadowRecord is a crossover candidate that a filter or the risk sizer
// turned away.
type ShadowRecord struct {
	ID           string
	Time         time.Time
	Symbol       string
	Candidate    string
	FailedFilter string
	Trail        string
	Price        float64
	Strength     float64
}

type DailySummary struct {
	SessionDate    string
	StartEquity    float64
	EndEquity      float64
	RealizedPL     float64
	Trades         int
	Wins           int
	Losses         int
	Entries        int
	Shadows        int
	Errors         int
	KillSwitch     bool
	CircuitBreaker bool
}

// WinRate is wins over closed trades.
func (s DailySummary) WinRate() float64 {
	if s.Trades == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Trades)
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordShadow(ShadowRecord) error
	RecordSummary(DailySummary) error
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordTrade(TradeRecord) error { return nil }
func (Nop) RecordShadow(ShadowRecord) error { return nil }
func (Nop) RecordSummary(DailySummary) error { return nil }
func (Nop) Close() error { return nil }

// Multi fans every record out to each journal and joins their errors.
type Multi []Journal

func (m Multi) RecordTrade(t TradeRecord) error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.RecordTrade(t))
	}
	return errors.Join(errs...)
}

func (m Multi) RecordShadow(s ShadowRecord) error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.RecordShadow(s))
	}
	return errors.Join(errs...)
}

func (m Multi) RecordSummary(s DailySummary) error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.RecordSummary(s))
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.Close())
	}
	return errors.Join(errs...)
}

// money rounds to cents; price rounds to four places.
func money(x float64) decimal.Decimal { return decimal.NewFromFloat(x).Round(2) }
func price(x float64) decimal.Decimal { return decimal.NewFromFloat(x).Round(4) }
