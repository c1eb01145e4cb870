package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rustyeddy/equitybot/broker"
	"github.com/rustyeddy/equitybot/journal"
	"github.com/rustyeddy/equitybot/notify"
	"github.com/rustyeddy/equitybot/pkg/id"
	"github.com/rustyeddy/equitybot/position"
	"github.com/rustyeddy/equitybot/risk"
	"github.com/rustyeddy/equitybot/safety"
	"github.com/rustyeddy/equitybot/state"
)

// effects collects what a cycle has to tell the outside world once the
// snapshot is committed.
type effects struct {
	fills    []Fill
	dropped  []Rejection
	trades   []journal.TradeRecord
	shadows  []journal.ShadowRecord
	messages []notify.Message
	errors   []string
}

func (fx *effects) errorf(format string, args ...any) {
	fx.errors = append(fx.errors, fmt.Sprintf(format, args...))
}

// execute places the plan's orders and applies every fill to next. Exits
// and reductions go first. Entries stop as soon as the gate blocks them,
// which happens when an exit breaches a loss guard or an order failure
// engages the kill switch mid-cycle. Failed orders are never resubmitted.
//
// Decide sized the entries as if every exit closed its position. When one
// did not, the entries are sized again against the book as it now stands
// and any that would break a cap are dropped.
func (e *Engine) execute(ctx context.Context, next *state.Snapshot, plan Plan, in Inputs, fx *effects) {
	now := in.Now
	open := 0
	for _, a := range plan.Exits() {
		e.executeExit(ctx, next, a, now, fx)
		if a.Kind == ActionExit && stillOpen(next, a) {
			open++
		}
	}

	var alloc *risk.Allocator
	if open > 0 && len(plan.Entries()) > 0 {
		e.log.Warn("exits left positions open, re-checking entries", zap.Int("open", open))
		alloc = risk.NewAllocator(e.cfg.Risk.Budget(plan.RiskPct), in.Account.Equity, in.Account.BuyingPower,
			openExposure(next.Positions, in.Analyses, nil))
	}

	for _, a := range plan.Entries() {
		if g := safety.Gate(next.Safety); g.BlockEntries {
			e.log.Warn("entries blocked mid-cycle", zap.Stringer("gate", g), zap.String("symbol", a.Symbol))
			return
		}
		if alloc != nil {
			if d := alloc.Try(a.candidate()); !d.Allowed {
				e.drop(next, a, d, in, fx)
				continue
			}
		}
		e.executeEntry(ctx, next, a, now, fx)
	}
}

// stillOpen reports whether the position an exit targeted is still held.
func stillOpen(next *state.Snapshot, a Action) bool {
	p, ok := next.Positions.Get(a.Symbol)
	return ok && (a.PositionID == "" || p.ID == a.PositionID)
}

// drop turns an entry the caps no longer allow into a shadow signal.
func (e *Engine) drop(next *state.Snapshot, a Action, d risk.Decision, in Inputs, fx *effects) {
	rej := Rejection{Symbol: a.Symbol, Side: a.Side, Codes: d.Codes(), Signal: in.Analyses[a.Symbol].Signal}
	for _, v := range d.Violations {
		rej.Messages = append(rej.Messages, v.Msg)
	}
	code := strings.Join(rej.Codes, ",")
	e.log.Warn("entry dropped by risk caps",
		zap.String("symbol", a.Symbol),
		zap.String("code", code))
	fx.dropped = append(fx.dropped, rej)
	fx.shadows = append(fx.shadows, shadowFromSignal(rej.Signal, "risk:"+code, in.Now))
	next.Stats.Shadows++
}

func (e *Engine) executeExit(ctx context.Context, next *state.Snapshot, a Action, now time.Time, fx *effects) {
	p, ok := next.Positions.Get(a.Symbol)
	if !ok || (a.PositionID != "" && p.ID != a.PositionID) {
		// Already closed.
		return
	}
	qty := min(a.Quantity, p.Quantity)
	order, ok := e.place(ctx, next, a, broker.ExitSide(p.Side), qty, now, fx)
	if !ok {
		return
	}

	px := order.FilledAvgPrice
	filled := min(order.FilledQty, p.Quantity)
	pnl := position.RealizedPnL(p.Side, filled, p.EntryPrice, px)
	trade := journal.TradeRecord{
		ID:         id.NewAt(now),
		PositionID: p.ID,
		Symbol:     p.Symbol,
		Side:       p.Side,
		Quantity:   filled,
		EntryPrice: p.EntryPrice,
		ExitPrice:  px,
		OpenTime:   p.EntryTime,
		CloseTime:  now,
		RealizedPL: pnl,
		RMultiple:  p.RMultiple(px),
		Reason:     a.Reason,
	}

	if filled >= p.Quantity {
		next.Positions.Close(p.Symbol)
		trade.Action = journal.ActionExit
		e.recordClose(next, pnl)
		next.Stats.Exits++
		fx.messages = append(fx.messages, notify.Message{
			Subject:  fmt.Sprintf("Exit %s %s", p.Side, p.Symbol),
			Body:     fmt.Sprintf("Closed %d %s @ %.2f (%s): P&L %.2f, %.2fR.", filled, p.Symbol, px, a.Reason, pnl, trade.RMultiple),
			Severity: notify.Info,
		})
	} else {
		rem, _ := next.Positions.Reduce(p.Symbol, filled)
		if a.Kind == ActionReduce {
			rem.PartialTaken = true
			next.Positions[p.Symbol] = rem
		}
		trade.Action = journal.ActionReduce
		next.Safety.RecordPartial(pnl, e.guards)
		fx.messages = append(fx.messages, notify.Message{
			Subject:  fmt.Sprintf("Reduced %s %s", p.Side, p.Symbol),
			Body:     fmt.Sprintf("Sold %d of %d %s @ %.2f (%s): P&L %.2f.", filled, p.Quantity, p.Symbol, px, a.Reason, pnl),
			Severity: notify.Info,
		})
	}

	fx.trades = append(fx.trades, trade)
	fx.fills = append(fx.fills, Fill{
		Action:     a,
		OrderID:    order.ID,
		ClientID:   order.ClientOrderID,
		Quantity:   filled,
		Price:      px,
		RealizedPL: pnl,
		Time:       now,
	})
	e.log.Info("exit filled",
		zap.String("symbol", p.Symbol),
		zap.String("reason", a.Reason),
		zap.Int64("qty", filled),
		zap.Float64("price", px),
		zap.Float64("pnl", pnl))
}

func (e *Engine) executeEntry(ctx context.Context, next *state.Snapshot, a Action, now time.Time, fx *effects) {
	if _, held := next.Positions.Get(a.Symbol); held {
		return
	}
	order, ok := e.place(ctx, next, a, broker.EntrySide(a.Side), a.Quantity, now, fx)
	if !ok {
		return
	}

	px := order.FilledAvgPrice
	stop := risk.StopPrice(a.Side, px, a.StopDistance)
	p := position.Position{
		ID:          id.NewAt(now),
		Symbol:      a.Symbol,
		Side:        a.Side,
		Quantity:    order.FilledQty,
		EntryPrice:  px,
		EntryTime:   now,
		StopPrice:   stop,
		InitialStop: stop,
		Sector:      a.Sector,
		RiskAmount:  float64(order.FilledQty) * a.StopDistance,
	}
	next.Positions.Open(p)
	next.Stats.Entries++
	slip := risk.SlippageBps(a.Price, px)
	avgSlip := next.RecordSlippage(a.Symbol, slip)

	fx.trades = append(fx.trades, journal.TradeRecord{
		ID:         id.NewAt(now),
		PositionID: p.ID,
		Symbol:     p.Symbol,
		Side:       p.Side,
		Action:     journal.ActionEntry,
		Quantity:   p.Quantity,
		EntryPrice: px,
		OpenTime:   now,
		Reason:     a.Reason,
	})
	fx.fills = append(fx.fills, Fill{
		Action:   a,
		OrderID:  order.ID,
		ClientID: order.ClientOrderID,
		Quantity: p.Quantity,
		Price:    px,
		Time:     now,
	})
	fx.messages = append(fx.messages, notify.Message{
		Subject:  fmt.Sprintf("Entry %s %s", p.Side, p.Symbol),
		Body:     fmt.Sprintf("Opened %d %s @ %.2f, stop %.2f, risk %.2f.", p.Quantity, p.Symbol, px, stop, p.RiskAmount),
		Severity: notify.Info,
	})
	e.log.Info("entry filled",
		zap.String("symbol", p.Symbol),
		zap.String("side", string(p.Side)),
		zap.Int64("qty", p.Quantity),
		zap.Float64("price", px),
		zap.Float64("stop", stop),
		zap.Float64("slippage_bps", slip),
		zap.Float64("avg_slippage_bps", avgSlip))
}

// place submits one market order. It returns false when nothing filled;
// submission errors and broker rejections count toward the kill switch, an
// accepted but unfilled order is left for the next reconciliation.
func (e *Engine) place(ctx context.Context, next *state.Snapshot, a Action, side broker.OrderSide, qty int64, now time.Time, fx *effects) (broker.Order, bool) {
	octx, cancel := e.withTimeout(ctx, e.cfg.Engine.OrderTimeout)
	defer cancel()

	req := broker.OrderRequest{
		ClientOrderID: uuid.NewString(),
		Symbol:        a.Symbol,
		Side:          side,
		Quantity:      qty,
		Type:          broker.Market,
	}
	order, err := e.broker.SubmitOrder(octx, req)
	if err == nil && order.Status == broker.StatusRejected {
		err = fmt.Errorf("%w: order %s rejected", broker.ErrExecution, req.ClientOrderID)
	}
	if err != nil {
		e.log.Error("order failed",
			zap.String("symbol", a.Symbol),
			zap.String("kind", string(a.Kind)),
			zap.Error(err))
		fx.errorf("%s %s: %v", a.Kind, a.Symbol, err)
		if !errors.Is(err, context.Canceled) {
			e.recordError(next, now)
		}
		return order, false
	}
	if !order.Filled() {
		e.log.Warn("order not filled, leaving it to reconciliation",
			zap.String("symbol", a.Symbol),
			zap.String("order_id", order.ID),
			zap.String("status", string(order.Status)))
		return order, false
	}
	return order, true
}

// recordError tallies a data or execution error toward the kill switch.
func (e *Engine) recordError(next *state.Snapshot, now time.Time) {
	next.Stats.Errors++
	if next.Safety.KillSwitch.RecordError(now, e.guards.KillSwitch) {
		e.log.Error("kill switch engaged", zap.Int("errors", len(next.Safety.KillSwitch.Errors)))
	}
}

// recordClose feeds a closed trade to the loss guards and the session stats.
func (e *Engine) recordClose(next *state.Snapshot, pnl float64) {
	daily, paused := next.Safety.RecordTrade(pnl, e.guards)
	next.Stats.RecordClose(pnl)
	if daily {
		e.log.Warn("daily loss limit breached", zap.Float64("pnl_pct", next.Safety.DailyLoss.PnLPct))
	}
	if paused {
		e.log.Warn("consecutive loss pause", zap.Int("losses", next.Safety.ConsecutiveLosses.Count))
	}
}
