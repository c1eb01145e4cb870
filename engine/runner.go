package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// TickOutcome says what a runner tick did.
type TickOutcome string

const (
	TickIdle    TickOutcome = "idle"
	TickCycle   TickOutcome = "cycle"
	TickSummary TickOutcome = "summary"
	TickBusy    TickOutcome = "busy"
)

// Run drives the engine at the configured cadence until ctx is done:
//  1. tick immediately, then on every cadence interval
//  2. while the market is open, run a trading cycle
//  3. after the close on a trading day, send the daily summary once
//
// Cycle errors are logged and the loop keeps going; the kill switch is what
// stops trading.
func (e *Engine) Run(ctx context.Context) error {
	cadence := e.cfg.Engine.Cadence
	if cadence <= 0 {
		cadence = 5 * time.Minute
	}
	t := time.NewTicker(cadence)
	defer t.Stop()

	e.log.Info("runner started", zap.Duration("cadence", cadence), zap.Int("symbols", len(e.cfg.Universe.Symbols)))
	for {
		if _, err := e.Tick(ctx); err != nil {
			e.log.Error("tick failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			e.log.Info("runner stopped")
			return nil
		case <-t.C:
		}
	}
}

// Tick performs one runner step at the engine's current time.
func (e *Engine) Tick(ctx context.Context) (TickOutcome, error) {
	now := e.now()
	switch {
	case e.calendar.IsOpen(now):
		_, err := e.RunCycle(ctx, Options{})
		if errors.Is(err, ErrCycleBusy) {
			e.log.Debug("previous cycle still running, skipping tick")
			return TickBusy, nil
		}
		return TickCycle, err

	case e.calendar.IsTradingDay(now) && e.calendar.AfterClose(now):
		_, sent, err := e.EndOfDay(ctx)
		switch {
		case errors.Is(err, ErrNoSession):
			return TickIdle, nil
		case errors.Is(err, ErrCycleBusy):
			return TickBusy, nil
		case sent:
			return TickSummary, err
		}
		return TickIdle, err
	}
	return TickIdle, nil
}
