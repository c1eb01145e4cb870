// Package position owns open positions, their trailing stops and the exit
// instructions derived from them.
package position

import (
	"math"
	"sort"
	"time"

	"github.com/rustyeddy/equitybot/market"
)

// Position is one open holding.
type Position struct {
	ID           string      `json:"id"`
	Symbol       string      `json:"symbol"`
	Side         market.Side `json:"side"`
	Quantity     int64       `json:"quantity"`
	EntryPrice   float64     `json:"entry_price"`
	EntryTime    time.Time   `json:"entry_time"`
	StopPrice    float64     `json:"stop_price"`
	InitialStop  float64     `json:"initial_stop"`
	Sector       string      `json:"sector"`
	RiskAmount   float64     `json:"risk_amount"`
	BarsHeld     int         `json:"bars_held"`
	PartialTaken bool        `json:"partial_taken,omitempty"`
	Adopted      bool        `json:"adopted,omitempty"`
	// AltExitR is the highest alternative exit milestone already recorded.
	AltExitR int `json:"alt_exit_r,omitempty"`
}

// RiskPerShare is the initial distance between entry and stop.
func (p Position) RiskPerShare() float64 {
	return math.Abs(p.EntryPrice - p.InitialStop)
}

// RMultiple is the open profit per share in units of initial risk.
func (p Position) RMultiple(price float64) float64 {
	r := p.RiskPerShare()
	if r == 0 {
		return 0
	}
	return p.Side.Sign() * (price - p.EntryPrice) / r
}

func (p Position) MarketValue(price float64) float64 {
	return float64(p.Quantity) * price
}

// RealizedPnL for closing qty shares opened at entry and closed at exit.
func RealizedPnL(side market.Side, qty int64, entry, exit float64) float64 {
	return side.Sign() * float64(qty) * (exit - entry)
}

// Book is the set of open positions keyed by symbol. It is a plain value so
// it serializes directly into the session snapshot.
type Book map[string]Position

// Clone returns an independent copy.
func (b Book) Clone() Book {
	out := make(Book, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

func (b Book) Get(symbol string) (Position, bool) {
	p, ok := b[symbol]
	return p, ok
}

// Open adds or replaces the position for p.Symbol.
func (b Book) Open(p Position) {
	b[p.Symbol] = p
}

// Close removes the position for symbol. Closing an absent position is a
// no-op and reports false.
func (b Book) Close(symbol string) (Position, bool) {
	p, ok := b[symbol]
	if !ok {
		return Position{}, false
	}
	delete(b, symbol)
	return p, true
}

// Reduce takes qty shares off a position, scaling its recorded risk. Reducing
// by the full quantity or more closes it.
func (b Book) Reduce(symbol string, qty int64) (Position, bool) {
	p, ok := b[symbol]
	if !ok || qty <= 0 {
		return p, false
	}
	if qty >= p.Quantity {
		return b.Close(symbol)
	}
	remaining := p.Quantity - qty
	p.RiskAmount = p.RiskAmount * float64(remaining) / float64(p.Quantity)
	p.Quantity = remaining
	b[symbol] = p
	return p, true
}

// Symbols returns held symbols in sorted order.
func (b Book) Symbols() []string {
	out := make([]string, 0, len(b))
	for s := range b {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// OpenRisk sums the risk recorded at entry across positions.
func (b Book) OpenRisk() float64 {
	sum := 0.0
	for _, p := range b {
		sum += p.RiskAmount
	}
	return sum
}
