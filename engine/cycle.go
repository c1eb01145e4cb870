package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/equitybot/broker"
	"github.com/rustyeddy/equitybot/journal"
	"github.com/rustyeddy/equitybot/metrics"
	"github.com/rustyeddy/equitybot/notify"
	"github.com/rustyeddy/equitybot/pkg/id"
	"github.com/rustyeddy/equitybot/position"
	"github.com/rustyeddy/equitybot/safety"
	"github.com/rustyeddy/equitybot/state"
	"github.com/rustyeddy/equitybot/strategies"
)

// AltExitPrefix marks journal shadow rows that record an alternative exit
// rather than a rejected entry.
const AltExitPrefix = "alt_exit:"

// Options control a single cycle.
type Options struct {
	// DryRun evaluates and decides but neither commits nor submits.
	DryRun bool
}

// RunCycle runs one trading cycle. Only one cycle runs at a time; a second
// caller gets ErrCycleBusy immediately. Once started a cycle runs to the
// end even if ctx is cancelled; only the per-call timeouts bound it.
//
// The decided snapshot is committed before any order is sent, and again
// after execution. If either commit fails the cycle returns an error
// wrapping state.ErrPersistence; if the first one fails nothing is
// submitted.
func (e *Engine) RunCycle(ctx context.Context, opts Options) (Report, error) {
	if !e.cycleMu.TryLock() {
		return Report{}, ErrCycleBusy
	}
	defer e.cycleMu.Unlock()
	return e.runCycle(context.WithoutCancel(ctx), opts)
}

func (e *Engine) runCycle(ctx context.Context, opts Options) (Report, error) {
	start := e.now()
	rep := Report{StartedAt: start, DryRun: opts.DryRun}

	prev, err := e.store.Load()
	if err != nil {
		e.log.Error("load snapshot", zap.Error(err))
		return rep, fmt.Errorf("%w: %w", ErrCycleAborted, err)
	}
	date := e.calendar.SessionDate(start)
	base := prev
	if base == nil {
		base = state.New(date)
	}
	rep.SessionDate = base.SessionDate

	acct, held, err := e.readAccount(ctx)
	if err != nil {
		return rep, e.abortOnAccount(base, err, start, opts)
	}
	rep.Account = acct

	next := base.Clone()
	next.Cycle++
	rep.Cycle = next.Cycle
	log := e.log.With(zap.Int64("cycle", next.Cycle), zap.Bool("dry_run", opts.DryRun))

	if rollSession(next, date, acct.Equity, e.cfg.Engine.EquityHistory) {
		log.Info("new session", zap.String("session", date), zap.Float64("start_equity", acct.Equity))
	}
	rep.SessionDate = next.SessionDate
	if acct.Equity > next.Risk.PeakEquity {
		next.Risk.PeakEquity = acct.Equity
	}
	before := safety.Gate(next.Safety)

	fx := &effects{}
	rep.Reconciled = e.reconcile(ctx, next, held, start, fx)

	bench, err := e.evaluateBenchmark(ctx)
	if err != nil {
		e.countDataError(next, fx, err, start)
	}
	rep.Benchmark = bench
	circuit, err := e.circuitInputs(ctx, bench)
	if err != nil {
		e.countDataError(next, fx, err, start)
	}
	if next.Safety.CircuitBreaker.Evaluate(circuit, e.guards.Circuit, start) {
		log.Warn("circuit breaker changed",
			zap.Bool("engaged", next.Safety.CircuitBreaker.Engaged),
			zap.String("reason", next.Safety.CircuitBreaker.Reason))
	}

	symbols := symbolsToAnalyze(e.cfg.Universe.Symbols, next.Positions.Symbols())
	analyses := e.analyzeUniverse(ctx, symbols, bench, start)
	for _, sym := range symbols {
		a := analyses[sym]
		if a.Err != nil {
			rep.Skipped = append(rep.Skipped, SymbolError{Symbol: sym, Error: a.Err.Error(), Counted: a.Counted})
			if a.Counted {
				log.Warn("market data unavailable", zap.String("symbol", sym), zap.Error(a.Err))
				e.recordError(next, start)
			} else {
				log.Debug("skipping symbol", zap.String("symbol", sym), zap.Error(a.Err))
			}
		}
		for _, derr := range a.DataErrors {
			log.Warn("market data degraded", zap.String("symbol", sym), zap.Error(derr))
			e.countDataError(next, fx, fmt.Errorf("%s %w", sym, derr), start)
		}
		if !a.HasSignal {
			continue
		}
		rep.Signals = append(rep.Signals, a.Signal)
		if a.Signal.Shadow() {
			fx.shadows = append(fx.shadows, shadowFromSignal(a.Signal, a.Signal.FailedFilter(), start))
		}
	}

	in := Inputs{
		Now:           start,
		Account:       acct,
		Analyses:      analyses,
		InEntryWindow: e.calendar.InEntryWindow(start),
		PastFlattenBy: e.calendar.PastFlattenBy(start),
	}
	plan := Decide(&e.cfg, next, in)
	rep.Plan = plan
	for _, r := range plan.Rejections {
		log.Warn("entry rejected by risk caps",
			zap.String("symbol", r.Symbol),
			zap.String("code", strings.Join(r.Codes, ",")))
		fx.shadows = append(fx.shadows, shadowFromSignal(r.Signal, "risk:"+strings.Join(r.Codes, ","), start))
	}

	if opts.DryRun {
		e.finishReport(&rep, next, fx)
		e.emit(rep, next, nil)
		return rep, nil
	}

	e.recordAltExits(next, analyses, start, fx)
	if err := e.store.Commit(next, e.now()); err != nil {
		log.Error("commit decided snapshot, nothing submitted", zap.Error(err))
		fx.errorf("commit: %v", err)
		e.finishReport(&rep, next, fx)
		return rep, err
	}

	e.execute(ctx, next, plan, in, fx)
	fx.messages = append(fx.messages, safetyMessages(before, next.Safety, start)...)

	commitErr := e.store.Commit(next, e.now())
	if commitErr != nil {
		log.Error("commit executed snapshot", zap.Error(commitErr))
		fx.errorf("commit: %v", commitErr)
	}
	e.finishReport(&rep, next, fx)
	e.emit(rep, next, fx)
	return rep, commitErr
}

// readAccount fetches the account and broker positions under one timeout.
func (e *Engine) readAccount(ctx context.Context) (broker.Account, []broker.Position, error) {
	actx, cancel := e.withTimeout(ctx, e.cfg.Engine.AccountTimeout)
	defer cancel()

	acct, err := e.broker.GetAccount(actx)
	if err != nil {
		return broker.Account{}, nil, fmt.Errorf("get account: %w", err)
	}
	held, err := e.broker.GetPositions(actx)
	if err != nil {
		return broker.Account{}, nil, fmt.Errorf("get positions: %w", err)
	}
	return acct, held, nil
}

// abortOnAccount records the failure on the last committed snapshot so the
// kill switch tally survives, then aborts the cycle.
func (e *Engine) abortOnAccount(base *state.Snapshot, err error, now time.Time, opts Options) error {
	e.log.Error("account unavailable, cycle aborted", zap.Error(err))
	aborted := fmt.Errorf("%w: %w", ErrCycleAborted, err)
	if opts.DryRun {
		return aborted
	}

	if errors.Is(err, context.Canceled) {
		return aborted
	}
	snap := base.Clone()
	before := safety.Gate(snap.Safety)
	e.recordError(snap, now)
	if cerr := e.store.Commit(snap, e.now()); cerr != nil {
		e.log.Error("commit error tally", zap.Error(cerr))
		return fmt.Errorf("%w: %w", ErrCycleAborted, errors.Join(err, cerr))
	}
	for _, m := range safetyMessages(before, snap.Safety, now) {
		e.notify(m)
	}
	return aborted
}

// rollSession starts a new session when date differs from the snapshot's,
// or when the snapshot has never seen an account. The kill switch carries
// over; every other guard resets.
func rollSession(next *state.Snapshot, date string, equity float64, keep int) bool {
	if next.SessionDate == date && next.Safety.DailyLoss.StartEquity > 0 {
		return false
	}
	next.SessionDate = date
	next.Safety = next.Safety.NewSession(equity)
	next.Stats = state.SessionStats{}
	next.LastSignals = map[string]strategies.Signal{}
	next.Risk.StartEquity = equity
	next.Risk.RecordEquity(date, equity, keep)
	return true
}

// safetyMessages announces every guard that started blocking since before.
func safetyMessages(before safety.Decision, after safety.State, now time.Time) []notify.Message {
	var out []notify.Message
	gate := safety.Gate(after)
	for _, r := range gate.Reasons {
		if before.Has(r) {
			continue
		}
		switch r {
		case safety.ReasonKillSwitch:
			out = append(out, notify.Message{
				Subject:  "Kill switch engaged",
				Body:     fmt.Sprintf("%d errors inside the window as of %s. Positions are being flattened and entries are blocked until an operator clears the switch.", len(after.KillSwitch.Errors), now.UTC().Format(time.RFC3339)),
				Severity: notify.Critical,
			})
		case safety.ReasonCircuitBreaker:
			out = append(out, notify.Message{
				Subject:  "Circuit breaker engaged",
				Body:     "New entries paused: " + after.CircuitBreaker.Reason,
				Severity: notify.Warning,
			})
		case safety.ReasonDailyLoss:
			out = append(out, notify.Message{
				Subject:  "Daily loss limit reached",
				Body:     fmt.Sprintf("Realized P&L %.2f (%.2f%% of start equity). Flattening and blocking entries for the rest of the session.", after.DailyLoss.RealizedPnL, 100*after.DailyLoss.PnLPct),
				Severity: notify.Critical,
			})
		case safety.ReasonConsecutiveLosses:
			out = append(out, notify.Message{
				Subject:  "Consecutive loss pause",
				Body:     fmt.Sprintf("%d losing trades in a row. Entries paused for the rest of the session.", after.ConsecutiveLosses.Count),
				Severity: notify.Warning,
			})
		}
	}
	if before.Has(safety.ReasonCircuitBreaker) && !gate.Has(safety.ReasonCircuitBreaker) {
		out = append(out, notify.Message{Subject: "Circuit breaker cleared", Body: "Market conditions are back inside limits.", Severity: notify.Info})
	}
	return out
}

func shadowFromSignal(s strategies.Signal, failed string, now time.Time) journal.ShadowRecord {
	return journal.ShadowRecord{
		ID:           id.NewAt(now),
		Time:         now,
		Symbol:       s.Symbol,
		Candidate:    string(s.Candidate),
		FailedFilter: failed,
		Trail:        s.Trail(),
		Price:        s.Price,
		Strength:     s.Strength,
	}
}

// recordAltExits journals the alternative exits open positions reached at
// this cycle's prices and marks them so each is journaled once.
func (e *Engine) recordAltExits(next *state.Snapshot, analyses map[string]Analysis, now time.Time, fx *effects) {
	for _, sym := range next.Positions.Symbols() {
		p := next.Positions[sym]
		px := analyses[sym].Price
		if px <= 0 {
			continue
		}
		reached, marked := p.ReachAltExits(px)
		if len(reached) == 0 {
			continue
		}
		next.Positions[sym] = marked
		r := p.RMultiple(px)
		for _, alt := range reached {
			e.log.Info("alternative exit reached",
				zap.String("symbol", sym),
				zap.String("rule", alt.Name),
				zap.Float64("r", r))
			fx.shadows = append(fx.shadows, journal.ShadowRecord{
				ID:           id.NewAt(now),
				Time:         now,
				Symbol:       sym,
				Candidate:    string(p.Side),
				FailedFilter: AltExitPrefix + alt.Name,
				Trail:        fmt.Sprintf("scale %.0f%% at %dR, open %.2fR", 100*alt.Fraction, alt.R, r),
				Price:        px,
				Strength:     r,
			})
		}
	}
}

func (e *Engine) finishReport(rep *Report, next *state.Snapshot, fx *effects) {
	rep.Gate = safety.Gate(next.Safety)
	rep.Safety = next.Safety
	rep.Positions = sortedPositions(next.Positions)
	rep.Fills = fx.fills
	rep.Dropped = fx.dropped
	rep.Errors = fx.errors
	rep.Duration = e.now().Sub(rep.StartedAt)
}

// emit queues journal rows, notifications and metrics on the outbox and
// publishes the report. Nothing here waits on a collaborator. fx is nil for
// dry runs, which only record metrics and publish.
func (e *Engine) emit(rep Report, next *state.Snapshot, fx *effects) {
	if fx != nil {
		for _, t := range fx.trades {
			e.out.enqueue("journal trade "+t.Symbol, func(context.Context) error {
				return e.journal.RecordTrade(t)
			})
		}
		for _, s := range fx.shadows {
			e.out.enqueue("journal shadow "+s.Symbol, func(context.Context) error {
				return e.journal.RecordShadow(s)
			})
		}
		for _, m := range fx.messages {
			e.notify(m)
		}
	}

	stats := cycleStats(rep, next)
	e.out.enqueue("metrics", func(ctx context.Context) error {
		return e.metrics.RecordCycle(ctx, stats)
	})
	e.publish(rep)
	e.log.Info(rep.Summary(), zap.Int64("cycle", rep.Cycle), zap.Duration("took", rep.Duration))
}

func (e *Engine) notify(m notify.Message) {
	e.out.enqueue("notify "+m.Subject, func(ctx context.Context) error {
		return e.notifier.Notify(ctx, m)
	})
}

// countDataError tallies a market data failure the cycle worked around.
func (e *Engine) countDataError(next *state.Snapshot, fx *effects, err error, now time.Time) {
	if !countable(err) {
		return
	}
	fx.errorf("%v", err)
	e.recordError(next, now)
}

func cycleStats(rep Report, next *state.Snapshot) metrics.CycleStats {
	s := metrics.CycleStats{
		Time:           rep.StartedAt,
		Cycle:          rep.Cycle,
		Duration:       rep.Duration,
		DryRun:         rep.DryRun,
		Symbols:        len(rep.Signals) + len(rep.Skipped),
		Shadows:        rep.Shadows() + len(rep.Plan.Rejections) + len(rep.Dropped),
		Errors:         len(rep.Errors),
		Equity:         rep.Account.Equity,
		OpenPositions:  len(next.Positions),
		OpenRisk:       next.Positions.OpenRisk(),
		RiskPct:        rep.Plan.RiskPct,
		DailyPnLPct:    next.Safety.DailyLoss.PnLPct,
		KillSwitch:     next.Safety.KillSwitch.Engaged,
		CircuitBreaker: next.Safety.CircuitBreaker.Engaged,
	}
	for _, sig := range rep.Signals {
		if sig.Actionable() {
			s.Signals++
		}
	}
	for _, sk := range rep.Skipped {
		if sk.Counted {
			s.Errors++
		}
	}
	for _, f := range rep.Fills {
		if f.Action.Kind == ActionEntry {
			s.Entries++
		} else {
			s.Exits++
		}
	}
	return s
}

func sortedPositions(b position.Book) []position.Position {
	out := make([]position.Position, 0, len(b))
	for _, p := range b {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
