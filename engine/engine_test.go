package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/equitybot/broker"
	"github.com/rustyeddy/equitybot/config"
	"github.com/rustyeddy/equitybot/journal"
	"github.com/rustyeddy/equitybot/market"
	"github.com/rustyeddy/equitybot/notify"
	"github.com/rustyeddy/equitybot/position"
	"github.com/rustyeddy/equitybot/safety"
	"github.com/rustyeddy/equitybot/sim"
	"github.com/rustyeddy/equitybot/state"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingJournal struct {
	mu        sync.Mutex
	trades    []journal.TradeRecord
	shadows   []journal.ShadowRecord
	summaries []journal.DailySummary
}

func (j *recordingJournal) RecordTrade(t journal.TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.trades = append(j.trades, t)
	return nil
}

func (j *recordingJournal) RecordShadow(s journal.ShadowRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.shadows = append(j.shadows, s)
	return nil
}

func (j *recordingJournal) RecordSummary(s journal.DailySummary) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.summaries = append(j.summaries, s)
	return nil
}

func (j *recordingJournal) Close() error { return nil }

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (n *recordingNotifier) Notify(_ context.Context, m notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, m)
	return nil
}

func (n *recordingNotifier) find(subject string) (notify.Message, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range n.msgs {
		if m.Subject == subject {
			return m, true
		}
	}
	return notify.Message{}, false
}

// failingStore fails the next n commits.
type failingStore struct {
	Store
	n int
}

func (s *failingStore) Commit(snap *state.Snapshot, now time.Time) error {
	if s.n > 0 {
		s.n--
		return state.ErrPersistence
	}
	return s.Store.Commit(snap, now)
}

// blockingBroker holds GetAccount until release is closed.
type blockingBroker struct {
	broker.Broker
	entered chan struct{}
	release chan struct{}
}

func (b *blockingBroker) GetAccount(ctx context.Context) (broker.Account, error) {
	b.entered <- struct{}{}
	<-b.release
	return b.Broker.GetAccount(ctx)
}

type fixture struct {
	t       *testing.T
	cfg     *config.Config
	clock   *clock
	feed    *market.MemoryFeed
	broker  *sim.Engine
	store   *state.Store
	journal *recordingJournal
	notes   *recordingNotifier
	engine  *Engine
}

var newYork = mustLocation("America/New_York")

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// tuesday is a regular session day, inside the entry window.
var tuesday = time.Date(2025, 3, 4, 10, 30, 0, 0, newYork)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := config.Default()
	cfg.Universe.Symbols = []string{"AAPL", "MSFT", "XOM", "JPM"}
	cfg.State.Path = filepath.Join(t.TempDir(), "state.json")
	cfg.Exits.ExitOnOppositeCross = false
	cfg.Exits.TimeStopBars = 0
	cfg.Exits.PartialTakeR = 0
	cfg.Signal.Thresholds.ADXMin = 1
	cfg.Signal.Thresholds.MinADVDollars = 0
	cfg.Signal.Thresholds.MaxSpreadBps = 0
	cfg.Risk.DefaultSectorCap = 1

	f := &fixture{
		t:       t,
		cfg:     cfg,
		clock:   &clock{t: tuesday},
		feed:    market.NewMemoryFeed(),
		journal: &recordingJournal{},
		notes:   &recordingNotifier{},
	}
	f.feed.SetVolatilityIndex(15, nil)
	f.flat("AAPL", 100)
	f.flat("MSFT", 200)
	f.flat("XOM", 50)
	f.flat("JPM", 150)
	f.feed.SetBars("SPY", market.TF1Day, flatBars(market.TF1Day, 120, 500, f.clock.Now()))

	b, err := sim.NewEngine(sim.Config{AccountID: "test", StartingCash: 100000, Leverage: 4}, f.feed)
	require.NoError(t, err)
	b.SetClock(f.clock.Now)
	f.broker = b
	f.store = state.NewStore(cfg.State.Path)
	f.engine = f.newEngine(f.store, f.broker)
	return f
}

func (f *fixture) newEngine(store Store, b broker.Broker) *Engine {
	f.t.Helper()
	e, err := New(Deps{
		Config:   f.cfg,
		Feed:     f.feed,
		Broker:   b,
		Store:    store,
		Journal:  f.journal,
		Notifier: f.notes,
		Clock:    f.clock.Now,
	})
	require.NoError(f.t, err)
	f.t.Cleanup(e.Close)
	return e
}

// flat loads 5m and 15m bars drifting gently down into price. The fast
// EMA stays below the slow one, so the symbol produces no candidate.
func (f *fixture) flat(symbol string, price float64) {
	now := f.clock.Now()
	f.feed.SetBars(symbol, market.TF5Min, driftBars(market.TF5Min, 120, price, -0.01, now))
	f.feed.SetBars(symbol, market.TF15Min, driftBars(market.TF15Min, 120, price, -0.01, now))
}

// breakout replaces the last drifting 5m bar with a 1.5 point jump and
// loads rising 15m bars. With the fixture's thresholds that is an actionable
// long at price+1.5.
func (f *fixture) breakout(symbol string, price float64) {
	now := f.clock.Now()
	bars := driftBars(market.TF5Min, 120, price+0.01, -0.01, now)
	last := &bars[len(bars)-1]
	last.Open, last.High, last.Low, last.Close = price, price+2, price, price+1.5
	f.feed.SetBars(symbol, market.TF5Min, bars)
	f.feed.SetBars(symbol, market.TF15Min, driftBars(market.TF15Min, 120, price, 0.1, now))
}

func (f *fixture) buy(symbol string, qty int64) {
	f.t.Helper()
	_, err := f.broker.SubmitOrder(context.Background(), broker.OrderRequest{
		ClientOrderID: "seed-" + symbol,
		Symbol:        symbol,
		Side:          broker.Buy,
		Quantity:      qty,
		Type:          broker.Market,
	})
	require.NoError(f.t, err)
}

func (f *fixture) load() *state.Snapshot {
	f.t.Helper()
	snap, err := f.store.Load()
	require.NoError(f.t, err)
	return snap
}

// flatBars are n identical bars, the last one starting one step before end.
func flatBars(tf market.Timeframe, n int, price float64, end time.Time) market.Bars {
	return driftBars(tf, n, price, 0, end)
}

// driftBars moves slope per bar and closes the last bar at price.
func driftBars(tf market.Timeframe, n int, price, slope float64, end time.Time) market.Bars {
	step := tf.Duration()
	bars := make(market.Bars, n)
	for i := range bars {
		px := price - slope*float64(n-1-i)
		bars[i] = market.Bar{
			Time:   end.Add(-time.Duration(n-i) * step),
			Open:   px,
			High:   px + 0.5,
			Low:    px - 0.5,
			Close:  px,
			Volume: 1000,
		}
	}
	return bars
}

func TestNewRequiresDeps(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tests := []struct {
		name string
		deps Deps
	}{
		{"config", Deps{Feed: f.feed, Broker: f.broker, Store: f.store}},
		{"feed", Deps{Config: f.cfg, Broker: f.broker, Store: f.store}},
		{"broker", Deps{Config: f.cfg, Feed: f.feed, Store: f.store}},
		{"store", Deps{Config: f.cfg, Feed: f.feed, Broker: f.broker}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tt.deps)
			assert.Error(t, err)
		})
	}
}

func TestFirstCycleStartsSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rep, err := f.engine.RunCycle(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, int64(1), rep.Cycle)
	assert.Equal(t, "2025-03-04", rep.SessionDate)
	assert.Equal(t, 100000.0, rep.Account.Equity)
	assert.False(t, rep.Gate.BlockEntries)
	assert.Empty(t, rep.Plan.Actions)
	assert.Empty(t, rep.Skipped)
	assert.True(t, rep.Benchmark.Available)

	snap := f.load()
	require.NotNil(t, snap)
	assert.Equal(t, int64(1), snap.Cycle)
	assert.Equal(t, "2025-03-04", snap.SessionDate)
	assert.Equal(t, 100000.0, snap.Safety.DailyLoss.StartEquity)
	assert.Equal(t, 100000.0, snap.Risk.PeakEquity)
	require.Len(t, snap.Risk.EquityHistory, 1)
	assert.Equal(t, 0.0075, snap.Risk.RiskPct)
	assert.Len(t, snap.LastSignals, 4)
}

func TestCycleEntersOnActionableSignal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.breakout("AAPL", 100)

	rep, err := f.engine.RunCycle(context.Background(), Options{})
	require.NoError(t, err)

	entries := rep.Plan.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "AAPL", entries[0].Symbol)
	assert.Equal(t, market.Long, entries[0].Side)
	require.Len(t, rep.Fills, 1)

	snap := f.load()
	p, ok := snap.Positions.Get("AAPL")
	require.True(t, ok)
	assert.Equal(t, market.Long, p.Side)
	assert.Positive(t, p.Quantity)
	assert.Equal(t, 101.5, p.EntryPrice)
	assert.Less(t, p.StopPrice, p.EntryPrice)
	assert.Equal(t, p.StopPrice, p.InitialStop)
	assert.Equal(t, "Technology", p.Sector)
	assert.LessOrEqual(t, p.RiskAmount, 0.0075*100000)
	assert.Equal(t, 1, snap.Stats.Entries)

	h, ok := f.broker.Holding("AAPL")
	require.True(t, ok)
	assert.Equal(t, p.Quantity, h.Quantity)

	f.engine.Flush()
	require.Len(t, f.journal.trades, 1)
	tr := f.journal.trades[0]
	assert.Equal(t, journal.ActionEntry, tr.Action)
	assert.Equal(t, p.ID, tr.PositionID)
	_, ok = f.notes.find("Entry long AAPL")
	assert.True(t, ok)
}

func TestDryRunNeitherCommitsNorSubmits(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.breakout("AAPL", 100)

	rep, err := f.engine.RunCycle(context.Background(), Options{DryRun: true})
	require.NoError(t, err)
	assert.True(t, rep.DryRun)
	assert.Len(t, rep.Plan.Entries(), 1)
	assert.Empty(t, rep.Fills)

	assert.Nil(t, f.load())
	assert.Empty(t, f.broker.Orders())
	f.engine.Flush()
	assert.Empty(t, f.journal.trades)
}

func TestCommitFailureSubmitsNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.breakout("AAPL", 100)
	e := f.newEngine(&failingStore{Store: f.store, n: 1}, f.broker)

	rep, err := e.RunCycle(context.Background(), Options{})
	require.ErrorIs(t, err, state.ErrPersistence)
	assert.Len(t, rep.Plan.Entries(), 1)
	assert.Empty(t, rep.Fills)
	assert.Empty(t, f.broker.Orders())
	assert.Nil(t, f.load())
}

func TestLoadFailureAbortsCycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	require.NoError(t, state.WriteFileAtomic(path, []byte("{not json"), 0o600))
	e := f.newEngine(state.NewStore(path), f.broker)

	_, err := e.RunCycle(context.Background(), Options{})
	require.ErrorIs(t, err, ErrCycleAborted)
	assert.ErrorIs(t, err, state.ErrPersistence)
	assert.Empty(t, f.broker.Orders())
}

func TestConcurrentCycleIsBusy(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	bb := &blockingBroker{Broker: f.broker, entered: make(chan struct{}, 1), release: make(chan struct{})}
	e := f.newEngine(f.store, bb)

	done := make(chan error, 1)
	go func() {
		_, err := e.RunCycle(context.Background(), Options{})
		done <- err
	}()
	<-bb.entered

	_, err := e.RunCycle(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrCycleBusy)
	_, err = e.ClearKillSwitch(context.Background(), "ops")
	assert.ErrorIs(t, err, ErrCycleBusy)

	close(bb.release)
	require.NoError(t, <-done)
}

func TestKillSwitchFlattensAndSurvivesRestart(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.buy("AAPL", 10)
	outage := errors.New("vendor outage")
	for _, sym := range []string{"MSFT", "XOM", "JPM"} {
		f.feed.SetError(sym, outage)
	}

	rep, err := f.engine.RunCycle(ctx, Options{})
	require.NoError(t, err)
	assert.True(t, rep.Gate.Flatten)
	assert.True(t, rep.Gate.Has(safety.ReasonKillSwitch))
	assert.Len(t, rep.Skipped, 3)
	require.Len(t, rep.Reconciled, 1)
	assert.Equal(t, ReconcileAdopted, rep.Reconciled[0].Kind)
	require.Len(t, rep.Fills, 1)
	assert.Equal(t, position.ReasonFlattenSafety, rep.Fills[0].Action.Reason)

	_, held := f.broker.Holding("AAPL")
	assert.False(t, held)
	snap := f.load()
	assert.True(t, snap.Safety.KillSwitch.Engaged)
	assert.Empty(t, snap.Positions)
	f.engine.Flush()
	msg, ok := f.notes.find("Kill switch engaged")
	require.True(t, ok)
	assert.Equal(t, notify.Critical, msg.Severity)

	// Restart with a fresh engine on the same snapshot file. Data is back
	// and AAPL has an actionable signal, but entries stay blocked.
	for _, sym := range []string{"MSFT", "XOM", "JPM"} {
		f.feed.SetError(sym, nil)
	}
	f.clock.Advance(5 * time.Minute)
	f.flat("MSFT", 200)
	f.flat("XOM", 50)
	f.flat("JPM", 150)
	f.breakout("AAPL", 100)
	orders := len(f.broker.Orders())

	restarted := f.newEngine(state.NewStore(f.cfg.State.Path), f.broker)
	rep, err = restarted.RunCycle(ctx, Options{})
	require.NoError(t, err)
	assert.True(t, rep.Gate.Has(safety.ReasonKillSwitch))
	assert.Empty(t, rep.Plan.Entries())
	assert.Len(t, f.broker.Orders(), orders)
	assert.True(t, f.load().Safety.KillSwitch.Engaged)

	_, err = restarted.ClearKillSwitch(ctx, " ")
	assert.ErrorIs(t, err, ErrOperatorRequired)
	cleared, err := restarted.ClearKillSwitch(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, cleared)
	snap = f.load()
	assert.False(t, snap.Safety.KillSwitch.Engaged)
	assert.Equal(t, "alice", snap.Safety.KillSwitch.ClearedBy)

	cleared, err = restarted.ClearKillSwitch(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, cleared)

	rep, err = restarted.RunCycle(ctx, Options{})
	require.NoError(t, err)
	assert.False(t, rep.Gate.BlockEntries)
	assert.Len(t, rep.Fills, 1)
}

func TestAccountFailuresEngageKillSwitch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.broker.FailAccount(errors.New("503 service unavailable"))

	for i := 0; i < 3; i++ {
		_, err := f.engine.RunCycle(ctx, Options{})
		require.ErrorIs(t, err, ErrCycleAborted)
		f.clock.Advance(time.Minute)
	}

	snap := f.load()
	require.NotNil(t, snap)
	assert.True(t, snap.Safety.KillSwitch.Engaged)
	assert.Len(t, snap.Safety.KillSwitch.Errors, 3)
	assert.Zero(t, snap.Cycle)
	f.engine.Flush()
	_, ok := f.notes.find("Kill switch engaged")
	assert.True(t, ok)
}

func TestDailyLossAtExactLimitFlattens(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.buy("AAPL", 100)
	f.buy("MSFT", 50)

	snap := state.New("2025-03-04")
	snap.Safety = snap.Safety.NewSession(100000)
	snap.Risk.StartEquity = 100000
	snap.Positions.Open(position.Position{
		ID: "P-AAPL", Symbol: "AAPL", Side: market.Long, Quantity: 100,
		EntryPrice: 100, StopPrice: 90, InitialStop: 90, Sector: "Technology", RiskAmount: 1000,
		EntryTime: tuesday.Add(-time.Hour),
	})
	snap.Positions.Open(position.Position{
		ID: "P-MSFT", Symbol: "MSFT", Side: market.Long, Quantity: 50,
		EntryPrice: 200, StopPrice: 100, InitialStop: 100, Sector: "Technology", RiskAmount: 5000,
		EntryTime: tuesday.Add(-time.Hour),
	})
	require.NoError(t, f.store.Commit(snap, tuesday))

	// A 30 point gap through the stop loses exactly 3% of start equity.
	f.feed.SetPrice("AAPL", 70)
	rep, err := f.engine.RunCycle(ctx, Options{})
	require.NoError(t, err)
	require.Len(t, rep.Fills, 1)
	assert.Equal(t, position.ReasonStop, rep.Fills[0].Action.Reason)
	assert.InDelta(t, -3000, rep.Fills[0].RealizedPL, 1e-9)

	after := f.load()
	assert.True(t, after.Safety.DailyLoss.Breached)
	assert.InDelta(t, -0.03, after.Safety.DailyLoss.PnLPct, 1e-12)
	assert.Equal(t, 1, after.Stats.Losses)
	_, held := after.Positions.Get("MSFT")
	assert.True(t, held)
	f.engine.Flush()
	msg, ok := f.notes.find("Daily loss limit reached")
	require.True(t, ok)
	assert.Equal(t, notify.Critical, msg.Severity)

	require.Len(t, f.journal.trades, 1)
	assert.InDelta(t, -3, f.journal.trades[0].RMultiple, 1e-9)

	f.clock.Advance(5 * time.Minute)
	rep, err = f.engine.RunCycle(ctx, Options{})
	require.NoError(t, err)
	require.Len(t, rep.Fills, 1)
	assert.Equal(t, "MSFT", rep.Fills[0].Action.Symbol)
	assert.Equal(t, position.ReasonFlattenSafety, rep.Fills[0].Action.Reason)
	assert.Empty(t, f.load().Positions)
	assert.Empty(t, rep.Plan.Entries())
}

func TestFlattenByClosesAdoptedPosition(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.buy("XOM", 10)
	f.clock.Set(time.Date(2025, 3, 4, 15, 58, 0, 0, newYork))
	f.flat("AAPL", 100)
	f.flat("MSFT", 200)
	f.flat("XOM", 50)
	f.flat("JPM", 150)

	rep, err := f.engine.RunCycle(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, rep.Reconciled, 1)
	assert.Equal(t, ReconcileAdopted, rep.Reconciled[0].Kind)
	require.Len(t, rep.Fills, 1)
	assert.Equal(t, position.ReasonFlattenEOD, rep.Fills[0].Action.Reason)
	assert.Empty(t, f.load().Positions)
}

func TestExternallyClosedPositionIsBooked(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	snap := state.New("2025-03-04")
	snap.Safety = snap.Safety.NewSession(100000)
	snap.Positions.Open(position.Position{
		ID: "P-JPM", Symbol: "JPM", Side: market.Long, Quantity: 20,
		EntryPrice: 140, StopPrice: 130, InitialStop: 130, Sector: "Financials", RiskAmount: 200,
	})
	require.NoError(t, f.store.Commit(snap, tuesday))

	rep, err := f.engine.RunCycle(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, rep.Reconciled, 1)
	assert.Equal(t, ReconcileClosedExternal, rep.Reconciled[0].Kind)
	assert.Equal(t, 150.0, rep.Reconciled[0].Price)

	after := f.load()
	assert.Empty(t, after.Positions)
	assert.Equal(t, 1, after.Stats.Wins)
	assert.InDelta(t, 200, after.Safety.DailyLoss.RealizedPnL, 1e-9)
	f.engine.Flush()
	require.Len(t, f.journal.trades, 1)
	assert.Equal(t, position.ReasonExternal, f.journal.trades[0].Reason)
}

type recordingSubscriber struct {
	mu      sync.Mutex
	reports []Report
}

func (s *recordingSubscriber) Publish(r Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
}

func TestSubscribersReceiveReports(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	sub := &recordingSubscriber{}
	f.engine.Subscribe(sub)

	_, err := f.engine.RunCycle(context.Background(), Options{DryRun: true})
	require.NoError(t, err)
	_, err = f.engine.RunCycle(context.Background(), Options{})
	require.NoError(t, err)

	require.Len(t, sub.reports, 2)
	assert.True(t, sub.reports[0].DryRun)
	assert.Equal(t, int64(1), sub.reports[1].Cycle)
}
