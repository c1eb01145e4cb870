package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/equitybot/broker"
	"github.com/rustyeddy/equitybot/journal"
	"github.com/rustyeddy/equitybot/notify"
	"github.com/rustyeddy/equitybot/pkg/id"
	"github.com/rustyeddy/equitybot/position"
	"github.com/rustyeddy/equitybot/risk"
	"github.com/rustyeddy/equitybot/state"
)

// ReconcileBook makes book agree with the broker's positions. The broker is
// authoritative: positions it no longer holds are removed and returned as
// closed, positions it holds that the book does not know are adopted with a
// fallback stop, and quantity differences take the broker's quantity.
func ReconcileBook(book position.Book, held []broker.Position, policy risk.Policy, sector func(string) string, now time.Time) (closed []position.Position, recs []Reconciliation) {
	atBroker := make(map[string]broker.Position, len(held))
	for _, bp := range held {
		if bp.Quantity > 0 {
			atBroker[bp.Symbol] = bp
		}
	}

	for _, sym := range book.Symbols() {
		p := book[sym]
		bp, ok := atBroker[sym]
		if ok && bp.Side == p.Side {
			continue
		}
		book.Close(sym)
		closed = append(closed, p)
		recs = append(recs, Reconciliation{
			Kind:     ReconcileClosedExternal,
			Symbol:   sym,
			Quantity: p.Quantity,
			Detail:   fmt.Sprintf("%s %d no longer held at broker", p.Side, p.Quantity),
		})
	}

	for _, bp := range held {
		if bp.Quantity <= 0 {
			continue
		}
		p, ok := book[bp.Symbol]
		if !ok {
			np := adopt(bp, policy, sector(bp.Symbol), now)
			book.Open(np)
			recs = append(recs, Reconciliation{
				Kind:     ReconcileAdopted,
				Symbol:   bp.Symbol,
				Quantity: bp.Quantity,
				Price:    np.EntryPrice,
				Detail:   fmt.Sprintf("adopted %s %d @ %.2f, stop %.2f", bp.Side, bp.Quantity, np.EntryPrice, np.StopPrice),
			})
			continue
		}
		if p.Quantity != bp.Quantity {
			recs = append(recs, Reconciliation{
				Kind:     ReconcileQuantity,
				Symbol:   bp.Symbol,
				Quantity: bp.Quantity,
				Detail:   fmt.Sprintf("book %d, broker %d", p.Quantity, bp.Quantity),
			})
			if p.Quantity > 0 {
				p.RiskAmount = p.RiskAmount * float64(bp.Quantity) / float64(p.Quantity)
			}
			p.Quantity = bp.Quantity
			book[bp.Symbol] = p
		}
	}
	return closed, recs
}

func adopt(bp broker.Position, policy risk.Policy, sector string, now time.Time) position.Position {
	entry := bp.AvgEntryPrice
	if entry <= 0 {
		entry = bp.CurrentPrice
	}
	pct := policy.AdoptStopPct
	if pct <= 0 {
		pct = policy.MinStopPct
	}
	dist := pct * entry
	stop := risk.StopPrice(bp.Side, entry, dist)
	return position.Position{
		ID:          id.NewAt(now),
		Symbol:      bp.Symbol,
		Side:        bp.Side,
		Quantity:    bp.Quantity,
		EntryPrice:  entry,
		EntryTime:   now,
		StopPrice:   stop,
		InitialStop: stop,
		Sector:      sector,
		RiskAmount:  float64(bp.Quantity) * dist,
		Adopted:     true,
	}
}

// reconcile applies ReconcileBook to next and books externally closed
// positions as trades at the latest price.
func (e *Engine) reconcile(ctx context.Context, next *state.Snapshot, held []broker.Position, now time.Time, fx *effects) []Reconciliation {
	closed, recs := ReconcileBook(next.Positions, held, e.cfg.Risk, e.cfg.Universe.Sector, now)
	for i := range recs {
		e.log.Warn("reconciled position",
			zap.String("symbol", recs[i].Symbol),
			zap.String("reason", recs[i].Kind),
			zap.String("detail", recs[i].Detail))
	}

	for _, p := range closed {
		px := e.lastPrice(ctx, p)
		pnl := position.RealizedPnL(p.Side, p.Quantity, p.EntryPrice, px)
		e.recordClose(next, pnl)
		fx.trades = append(fx.trades, journal.TradeRecord{
			ID:         id.NewAt(now),
			PositionID: p.ID,
			Symbol:     p.Symbol,
			Side:       p.Side,
			Action:     journal.ActionExit,
			Quantity:   p.Quantity,
			EntryPrice: p.EntryPrice,
			ExitPrice:  px,
			OpenTime:   p.EntryTime,
			CloseTime:  now,
			RealizedPL: pnl,
			RMultiple:  p.RMultiple(px),
			Reason:     position.ReasonExternal,
		})
		fx.messages = append(fx.messages, notify.Message{
			Subject:  fmt.Sprintf("%s closed outside the bot", p.Symbol),
			Body:     fmt.Sprintf("%s %d %s was not held at the broker; booked at %.2f for %.2f.", p.Side, p.Quantity, p.Symbol, px, pnl),
			Severity: notify.Warning,
		})
		for i := range recs {
			if recs[i].Symbol == p.Symbol && recs[i].Kind == ReconcileClosedExternal {
				recs[i].Price = px
			}
		}
	}
	return recs
}

// lastPrice is the latest price for p, falling back to its stop when the
// feed cannot answer.
func (e *Engine) lastPrice(ctx context.Context, p position.Position) float64 {
	pctx, cancel := e.withTimeout(ctx, e.cfg.Engine.SymbolTimeout)
	defer cancel()
	px, err := e.feed.GetLatestPrice(pctx, p.Symbol)
	if err != nil || px <= 0 {
		e.log.Warn("no price for externally closed position, using stop",
			zap.String("symbol", p.Symbol), zap.Error(err))
		return p.StopPrice
	}
	return px
}
