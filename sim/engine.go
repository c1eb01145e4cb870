// Package sim is a paper broker. It fills market orders at the feed's latest
// price and keeps a cash and holdings ledger.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rustyeddy/equitybot/broker"
)

// PriceSource supplies fill and mark prices. market.Feed satisfies it.
type PriceSource interface {
	GetLatestPrice(ctx context.Context, symbol string) (float64, error)
}

type Config struct {
	AccountID    string  `json:"account_id" yaml:"account_id"`
	StartingCash float64 `json:"starting_cash" yaml:"starting_cash"`
	Leverage     float64 `json:"leverage" yaml:"leverage"`
	// LedgerPath, when set, persists the ledger after every fill so paper
	// positions survive restarts.
	LedgerPath string `json:"ledger_path" yaml:"ledger_path"`
}

func DefaultConfig() Config {
	return Config{
		AccountID:    "paper",
		StartingCash: 100000,
		Leverage:     4,
	}
}

type Engine struct {
	mu       sync.Mutex
	cfg      Config
	prices   PriceSource
	cash     float64
	holdings map[string]*Holding
	orders   []broker.Order
	now      func() time.Time

	failAccount error
	failSymbols map[string]error
}

var _ broker.Broker = (*Engine)(nil)

// NewEngine returns a paper broker, restoring the ledger from cfg.LedgerPath
// when one exists.
func NewEngine(cfg Config, prices PriceSource) (*Engine, error) {
	if cfg.Leverage <= 0 {
		cfg.Leverage = 1
	}
	e := &Engine{
		cfg:         cfg,
		prices:      prices,
		cash:        cfg.StartingCash,
		holdings:    make(map[string]*Holding),
		now:         time.Now,
		failSymbols: make(map[string]error),
	}
	if cfg.LedgerPath != "" {
		l, err := loadLedger(cfg.LedgerPath)
		if err != nil {
			return nil, err
		}
		if l != nil {
			e.restore(l)
		}
	}
	return e, nil
}

// SetClock overrides the time source used to stamp orders.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

// FailAccount makes account and position lookups fail with err until
// called again with nil.
func (e *Engine) FailAccount(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failAccount = err
}

// FailSymbol rejects orders for symbol with err. A nil err clears it.
func (e *Engine) FailSymbol(symbol string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		delete(e.failSymbols, symbol)
		return
	}
	e.failSymbols[symbol] = err
}

func (e *Engine) GetAccount(ctx context.Context) (broker.Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.failAccount != nil {
		return broker.Account{}, fmt.Errorf("%w: get account: %w", broker.ErrExecution, e.failAccount)
	}
	equity, gross, err := e.markLocked(ctx)
	if err != nil {
		return broker.Account{}, err
	}
	return broker.Account{
		ID:          e.cfg.AccountID,
		Equity:      equity,
		Cash:        e.cash,
		BuyingPower: math.Max(0, equity*e.cfg.Leverage-gross),
	}, nil
}

func (e *Engine) GetPositions(ctx context.Context) ([]broker.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.failAccount != nil {
		return nil, fmt.Errorf("%w: get positions: %w", broker.ErrExecution, e.failAccount)
	}

	out := make([]broker.Position, 0, len(e.holdings))
	for _, h := range e.holdings {
		px, err := e.prices.GetLatestPrice(ctx, h.Symbol)
		if err != nil {
			return nil, fmt.Errorf("%w: mark %s: %w", broker.ErrExecution, h.Symbol, err)
		}
		qty := abs64(h.Quantity)
		out = append(out, broker.Position{
			Symbol:        h.Symbol,
			Side:          h.Side(),
			Quantity:      qty,
			AvgEntryPrice: h.AvgPrice,
			CurrentPrice:  px,
			MarketValue:   float64(h.Quantity) * px,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// SubmitOrder fills a market order in full at the latest price. Orders that
// add exposure beyond buying power are rejected.
func (e *Engine) SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.Order, error) {
	if err := validate(req); err != nil {
		return broker.Order{}, fmt.Errorf("%w: %w", broker.ErrExecution, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.failSymbols[req.Symbol]; err != nil {
		return broker.Order{}, fmt.Errorf("%w: %s: %w", broker.ErrExecution, req.Symbol, err)
	}
	price, err := e.prices.GetLatestPrice(ctx, req.Symbol)
	if err != nil {
		return broker.Order{}, fmt.Errorf("%w: price %s: %w", broker.ErrExecution, req.Symbol, err)
	}

	delta := req.Quantity
	if req.Side == broker.Sell {
		delta = -delta
	}

	h := e.holdings[req.Symbol]
	if h == nil {
		h = &Holding{Symbol: req.Symbol}
	}
	added := abs64(h.Quantity+delta) - abs64(h.Quantity)
	if added > 0 {
		equity, gross, err := e.markLocked(ctx)
		if err != nil {
			return broker.Order{}, err
		}
		bp := equity*e.cfg.Leverage - gross
		if need := float64(added) * price; need > bp {
			return broker.Order{}, fmt.Errorf("%w: %s: insufficient buying power: need %.2f have %.2f",
				broker.ErrExecution, req.Symbol, need, bp)
		}
	}

	h.apply(delta, price)
	e.cash -= float64(delta) * price
	if h.Quantity == 0 {
		delete(e.holdings, req.Symbol)
	} else {
		e.holdings[req.Symbol] = h
	}

	clientID := req.ClientOrderID
	if clientID == "" {
		clientID = uuid.NewString()
	}
	order := broker.Order{
		ID:             uuid.NewString(),
		ClientOrderID:  clientID,
		Symbol:         req.Symbol,
		Side:           req.Side,
		Quantity:       req.Quantity,
		Status:         broker.StatusFilled,
		FilledQty:      req.Quantity,
		FilledAvgPrice: price,
		SubmittedAt:    e.now().UTC(),
	}
	e.orders = append(e.orders, order)

	if e.cfg.LedgerPath != "" {
		if err := saveLedger(e.cfg.LedgerPath, e.snapshotLocked()); err != nil {
			return order, fmt.Errorf("%w: persist ledger: %w", broker.ErrExecution, err)
		}
	}
	return order, nil
}

// Orders returns every order filled so far, oldest first.
func (e *Engine) Orders() []broker.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]broker.Order(nil), e.orders...)
}

// Holding returns the ledger entry for symbol.
func (e *Engine) Holding(symbol string) (Holding, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.holdings[symbol]
	if !ok {
		return Holding{}, false
	}
	return *h, true
}

func (e *Engine) Cash() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cash
}

// markLocked returns equity and gross exposure at latest prices.
func (e *Engine) markLocked(ctx context.Context) (equity, gross float64, err error) {
	equity = e.cash
	for _, h := range e.holdings {
		px, err := e.prices.GetLatestPrice(ctx, h.Symbol)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: mark %s: %w", broker.ErrExecution, h.Symbol, err)
		}
		equity += float64(h.Quantity) * px
		gross += float64(abs64(h.Quantity)) * px
	}
	return equity, gross, nil
}

func validate(req broker.OrderRequest) error {
	switch {
	case req.Symbol == "":
		return errors.New("missing symbol")
	case req.Quantity <= 0:
		return fmt.Errorf("quantity must be positive, got %d", req.Quantity)
	case req.Side != broker.Buy && req.Side != broker.Sell:
		return fmt.Errorf("unknown side %q", req.Side)
	case req.Type != "" && req.Type != broker.Market:
		return fmt.Errorf("unsupported order type %q", req.Type)
	}
	return nil
}
