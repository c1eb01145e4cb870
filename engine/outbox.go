package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const outboxSize = 256

// job is one journal write, notification or metrics point.
type job struct {
	name string
	run  func(ctx context.Context) error
}

// outbox runs reporting work on its own goroutine so a slow journal,
// notifier or metrics backend never holds up a cycle. When the queue is
// full the job is dropped and logged.
type outbox struct {
	jobs    chan job
	done    chan struct{}
	timeout time.Duration
	log     *zap.Logger

	pending sync.WaitGroup
	mu      sync.Mutex
	closed  bool
}

func newOutbox(timeout time.Duration, log *zap.Logger) *outbox {
	o := &outbox{
		jobs:    make(chan job, outboxSize),
		done:    make(chan struct{}),
		timeout: timeout,
		log:     log,
	}
	go o.run()
	return o
}

func (o *outbox) run() {
	defer close(o.done)
	for j := range o.jobs {
		o.do(j)
		o.pending.Done()
	}
}

func (o *outbox) do(j job) {
	ctx := context.Background()
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	if err := j.run(ctx); err != nil {
		o.log.Warn("report delivery failed", zap.String("job", j.name), zap.Error(err))
	}
}

// enqueue never blocks. It reports whether the job was queued.
func (o *outbox) enqueue(name string, fn func(ctx context.Context) error) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		o.log.Warn("outbox closed, dropping job", zap.String("job", name))
		return false
	}
	o.pending.Add(1)
	select {
	case o.jobs <- job{name: name, run: fn}:
		return true
	default:
		o.pending.Done()
		o.log.Warn("outbox full, dropping job", zap.String("job", name))
		return false
	}
}

// flush waits for every queued job to finish.
func (o *outbox) flush() {
	o.pending.Wait()
}

// close stops accepting jobs and waits for the queue to drain.
func (o *outbox) close() {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.jobs)
	}
	o.mu.Unlock()
	<-o.done
}
