package market

import (
	"context"
	"errors"
)

// ErrDataUnavailable is returned (wrapped) by feeds that cannot serve a
// request. The engine counts these toward the kill switch.
var ErrDataUnavailable = errors.New("market data unavailable")

// Feed is the market data collaborator.
type Feed interface {
	// GetBars returns up to lookback of the most recent bars, oldest first.
	GetBars(ctx context.Context, symbol string, tf Timeframe, lookback int) (Bars, error)
	GetLatestPrice(ctx context.Context, symbol string) (float64, error)
}

// VolatilitySource provides the external volatility index (VIX) used by the
// circuit breaker.
type VolatilitySource interface {
	VolatilityIndex(ctx context.Context) (float64, error)
}
