package sim

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/rustyeddy/equitybot/broker"
	"github.com/rustyeddy/equitybot/state"
)

type ledger struct {
	Cash     float64            `json:"cash"`
	Holdings map[string]Holding `json:"holdings"`
	Orders   []broker.Order     `json:"orders,omitempty"`
}

// maxLedgerOrders bounds the order history written to disk.
const maxLedgerOrders = 500

func (e *Engine) snapshotLocked() ledger {
	l := ledger{
		Cash:     e.cash,
		Holdings: make(map[string]Holding, len(e.holdings)),
	}
	for k, h := range e.holdings {
		l.Holdings[k] = *h
	}
	orders := e.orders
	if len(orders) > maxLedgerOrders {
		orders = orders[len(orders)-maxLedgerOrders:]
	}
	l.Orders = append([]broker.Order(nil), orders...)
	return l
}

func (e *Engine) restore(l *ledger) {
	e.cash = l.Cash
	e.holdings = make(map[string]*Holding, len(l.Holdings))
	for k, h := range l.Holdings {
		h := h
		e.holdings[k] = &h
	}
	e.orders = l.Orders
}

func saveLedger(path string, l ledger) error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return err
	}
	return state.WriteFileAtomic(path, data, 0o600)
}

func loadLedger(path string) (*ledger, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", path, err)
	}
	var l ledger
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("decode ledger %s: %w", path, err)
	}
	return &l, nil
}
