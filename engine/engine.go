// Package engine runs the trading cycle: load the snapshot, reconcile with
// the broker, analyze the universe, decide, commit, execute, commit again.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/equitybot/broker"
	"github.com/rustyeddy/equitybot/config"
	"github.com/rustyeddy/equitybot/journal"
	"github.com/rustyeddy/equitybot/market"
	"github.com/rustyeddy/equitybot/metrics"
	"github.com/rustyeddy/equitybot/notify"
	"github.com/rustyeddy/equitybot/pkg/logger"
	"github.com/rustyeddy/equitybot/safety"
	"github.com/rustyeddy/equitybot/state"
	"github.com/rustyeddy/equitybot/strategies"
)

var (
	// ErrCycleBusy is returned when a cycle is already in progress.
	ErrCycleBusy = errors.New("cycle already running")
	// ErrCycleAborted wraps failures that stop a cycle before it decides
	// anything: the snapshot could not be loaded or the account could not be
	// read.
	ErrCycleAborted = errors.New("cycle aborted")
)

// Store persists the session snapshot. *state.Store is the production
// implementation.
type Store interface {
	Load() (*state.Snapshot, error)
	Commit(snap *state.Snapshot, now time.Time) error
}

// Deps are the engine's collaborators. Config, Feed, Broker and Store are
// required; the rest default to no-ops.
type Deps struct {
	Config     *config.Config
	Feed       market.Feed
	Volatility market.VolatilitySource
	Broker     broker.Broker
	Store      Store
	Journal    journal.Journal
	Notifier   notify.Notifier
	Metrics    metrics.Sink
	Logger     *zap.Logger
	Clock      func() time.Time
}

// Subscriber receives every cycle report. Publish must not block.
type Subscriber interface {
	Publish(Report)
}

type Engine struct {
	cfg      config.Config
	guards   safety.Config
	calendar *market.Calendar

	feed     market.Feed
	vol      market.VolatilitySource
	broker   broker.Broker
	store    Store
	journal  journal.Journal
	notifier notify.Notifier
	metrics  metrics.Sink
	log      *zap.Logger
	now      func() time.Time

	generator *strategies.Generator
	out       *outbox

	cycleMu sync.Mutex

	subsMu sync.RWMutex
	subs   []Subscriber
}

// New validates deps and builds an Engine. The config is copied; later
// changes to d.Config are not seen.
func New(d Deps) (*Engine, error) {
	if d.Config == nil {
		return nil, fmt.Errorf("engine: Config is required")
	}
	if d.Feed == nil {
		return nil, fmt.Errorf("engine: Feed is required")
	}
	if d.Broker == nil {
		return nil, fmt.Errorf("engine: Broker is required")
	}
	if d.Store == nil {
		return nil, fmt.Errorf("engine: Store is required")
	}
	cal, err := d.Config.Calendar()
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e := &Engine{
		cfg:       *d.Config,
		guards:    d.Config.SafetyConfig(),
		calendar:  cal,
		feed:      d.Feed,
		vol:       d.Volatility,
		broker:    d.Broker,
		store:     d.Store,
		journal:   d.Journal,
		notifier:  d.Notifier,
		metrics:   d.Metrics,
		log:       logger.OrNop(d.Logger),
		now:       d.Clock,
		generator: strategies.NewGenerator(d.Config.Signal.Thresholds),
	}
	if e.vol == nil {
		if v, ok := d.Feed.(market.VolatilitySource); ok {
			e.vol = v
		}
	}
	if e.journal == nil {
		e.journal = journal.Nop{}
	}
	if e.notifier == nil {
		e.notifier = notify.Nop{}
	}
	if e.metrics == nil {
		e.metrics = metrics.Nop{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	e.out = newOutbox(d.Config.Engine.ReportTimeout, e.log.Named("outbox"))
	return e, nil
}

// Flush waits until every queued journal write, notification and metrics
// point has been delivered.
func (e *Engine) Flush() { e.out.flush() }

// Close delivers whatever is still queued and stops the delivery
// goroutine. Reports from later calls are dropped.
func (e *Engine) Close() { e.out.close() }

// Subscribe registers s for cycle reports.
func (e *Engine) Subscribe(s Subscriber) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	e.subs = append(e.subs, s)
}

func (e *Engine) publish(r Report) {
	e.subsMu.RLock()
	defer e.subsMu.RUnlock()
	for _, s := range e.subs {
		s.Publish(r)
	}
}

// Calendar exposes the session calendar the engine trades on.
func (e *Engine) Calendar() *market.Calendar { return e.calendar }

// Config returns a copy of the engine's configuration.
func (e *Engine) Config() config.Config { return e.cfg }
