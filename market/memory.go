package market

import (
	"context"
	"fmt"
	"sync"
)

// MemoryFeed is an in-process Feed and VolatilitySource. Dry runs and tests
// load it directly.
type MemoryFeed struct {
	mu     sync.RWMutex
	bars   map[string]Bars
	prices map[string]float64
	errs   map[string]error

	vix    float64
	hasVIX bool
	vixErr error
}

func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{
		bars:   make(map[string]Bars),
		prices: make(map[string]float64),
		errs:   make(map[string]error),
	}
}

func key(symbol string, tf Timeframe) string {
	return symbol + "_" + string(tf)
}

func (m *MemoryFeed) SetBars(symbol string, tf Timeframe, bars Bars) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(Bars, len(bars))
	copy(cp, bars)
	m.bars[key(symbol, tf)] = cp
}

func (m *MemoryFeed) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[symbol] = price
}

// SetError makes every request for symbol fail with err. A nil err clears it.
func (m *MemoryFeed) SetError(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errs, symbol)
		return
	}
	m.errs[symbol] = err
}

func (m *MemoryFeed) SetVolatilityIndex(v float64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vix, m.hasVIX, m.vixErr = v, err == nil, err
}

func (m *MemoryFeed) GetBars(ctx context.Context, symbol string, tf Timeframe, lookback int) (Bars, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrDataUnavailable, symbol, tf, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.errs[symbol]; err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDataUnavailable, symbol, err)
	}
	bars, ok := m.bars[key(symbol, tf)]
	if !ok {
		return nil, fmt.Errorf("%w: no %s bars for %s", ErrDataUnavailable, tf, symbol)
	}
	tail := bars.Tail(lookback)
	out := make(Bars, len(tail))
	copy(out, tail)
	return out, nil
}

// GetLatestPrice returns the explicit price when set, otherwise the last
// 5-minute close.
func (m *MemoryFeed) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrDataUnavailable, symbol, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.errs[symbol]; err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrDataUnavailable, symbol, err)
	}
	if p, ok := m.prices[symbol]; ok {
		return p, nil
	}
	if last, ok := m.bars[key(symbol, TF5Min)].Last(); ok {
		return last.Close, nil
	}
	return 0, fmt.Errorf("%w: no price for %s", ErrDataUnavailable, symbol)
}

func (m *MemoryFeed) VolatilityIndex(ctx context.Context) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.vixErr != nil {
		return 0, fmt.Errorf("%w: volatility index: %w", ErrDataUnavailable, m.vixErr)
	}
	if !m.hasVIX {
		return 0, fmt.Errorf("%w: volatility index not set", ErrDataUnavailable)
	}
	return m.vix, nil
}
