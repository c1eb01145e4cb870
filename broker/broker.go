// Package broker defines the brokerage boundary: account state, held
// positions and market order submission.
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/rustyeddy/equitybot/market"
)

// ErrExecution wraps broker failures: rejected orders, unreachable API,
// account lookups that did not complete.
var ErrExecution = errors.New("execution error")

type Broker interface {
	GetAccount(ctx context.Context) (Account, error)
	GetPositions(ctx context.Context) ([]Position, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (Order, error)
}

type Account struct {
	ID          string  `json:"id"`
	Equity      float64 `json:"equity"`
	Cash        float64 `json:"cash"`
	BuyingPower float64 `json:"buying_power"`
}

// Position is the broker's view of a holding. Quantity is always positive;
// Side carries the direction.
type Position struct {
	Symbol        string      `json:"symbol"`
	Side          market.Side `json:"side"`
	Quantity      int64       `json:"quantity"`
	AvgEntryPrice float64     `json:"avg_entry_price"`
	CurrentPrice  float64     `json:"current_price"`
	MarketValue   float64     `json:"market_value"`
}

type OrderSide string

const (
	Buy  OrderSide = "buy"
	Sell OrderSide = "sell"
)

// EntrySide is the order side that opens a position on side.
func EntrySide(side market.Side) OrderSide {
	if side == market.Short {
		return Sell
	}
	return Buy
}

// ExitSide is the order side that reduces or closes a position on side.
func ExitSide(side market.Side) OrderSide {
	if side == market.Short {
		return Buy
	}
	return Sell
}

type OrderType string

const Market OrderType = "market"

type OrderRequest struct {
	ClientOrderID string    `json:"client_order_id"`
	Symbol        string    `json:"symbol"`
	Side          OrderSide `json:"side"`
	Quantity      int64     `json:"qty"`
	Type          OrderType `json:"type"`
}

type OrderStatus string

const (
	StatusFilled   OrderStatus = "filled"
	StatusAccepted OrderStatus = "accepted"
	StatusRejected OrderStatus = "rejected"
)

type Order struct {
	ID             string      `json:"id"`
	ClientOrderID  string      `json:"client_order_id"`
	Symbol         string      `json:"symbol"`
	Side           OrderSide   `json:"side"`
	Quantity       int64       `json:"qty"`
	Status         OrderStatus `json:"status"`
	FilledQty      int64       `json:"filled_qty"`
	FilledAvgPrice float64     `json:"filled_avg_price"`
	SubmittedAt    time.Time   `json:"submitted_at"`
}

// Filled reports whether any quantity executed.
func (o Order) Filled() bool {
	return o.FilledQty > 0
}
