package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/xraph/choreo/ext"
	"github.com/xraph/choreo/feed"
	"github.com/xraph/choreo/step"
)

const (
	// DefaultConcurrency is the number of goroutines per pool.
	DefaultConcurrency = 4

	// DefaultQueueSize bounds the notification queue of a pool.
	DefaultQueueSize = 256
)

// Pool feeds notifications for one step kind through a bounded queue to a
// fixed set of goroutines. Submit never blocks: when the queue is full the
// notification is dropped and left for the reaper to recover.
type Pool struct {
	executor    *Executor
	extensions  *ext.Registry
	concurrency int
	queueSize   int
	logger      *slog.Logger

	queue  chan feed.Notification
	ctx    context.Context
	cancel context.CancelFunc

	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
	stopped bool

	submitted atomic.Int64
	dropped   atomic.Int64
	outcomes  [len(outcomeNames)]atomic.Int64
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of worker goroutines.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithQueueSize sets the queue capacity.
func WithQueueSize(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// NewPool creates a pool around executor.
func NewPool(executor *Executor, extensions *ext.Registry, logger *slog.Logger, opts ...PoolOption) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if extensions == nil {
		extensions = ext.NewRegistry(logger)
	}
	p := &Pool{
		executor:    executor,
		extensions:  extensions,
		concurrency: DefaultConcurrency,
		queueSize:   DefaultQueueSize,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.queue = make(chan feed.Notification, p.queueSize)
	return p
}

// Kind returns the step kind the pool executes.
func (p *Pool) Kind() step.Kind { return p.executor.Worker().Kind() }

// Start launches the worker goroutines. It returns immediately. A pool
// cannot be restarted after Stop.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running || p.stopped {
		return nil
	}
	p.running = true
	p.ctx, p.cancel = context.WithCancel(context.Background())

	p.logger.Info("worker pool starting",
		slog.String("step", p.Kind().String()),
		slog.Int("concurrency", p.concurrency),
		slog.Int("queue_size", p.queueSize),
	)

	for range p.concurrency {
		p.wg.Add(1)
		go p.loop()
	}
	return nil
}

// Submit enqueues n without blocking. It returns false when the queue is
// full or the pool is not running.
func (p *Pool) Submit(n feed.Notification) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running {
		return false
	}
	select {
	case p.queue <- n:
		p.submitted.Add(1)
		return true
	default:
		p.dropped.Add(1)
		p.logger.Warn("step queue full, notification dropped",
			slog.String("step", p.Kind().String()),
			slog.String("slip_id", n.ID),
		)
		p.extensions.EmitNotificationDropped(p.ctx, p.Kind(), n)
		return false
	}
}

// Stop closes the queue and waits for queued notifications to drain.
// If ctx ends first, in-flight invocations are cancelled and the rest of
// the queue is discarded.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("step", p.Kind().String()))

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully", slog.String("step", p.Kind().String()))
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active steps",
			slog.String("step", p.Kind().String()),
		)
		p.cancel()
		<-done
	}
	p.cancel()
	return nil
}

// loop is run by each worker goroutine until the queue is closed.
func (p *Pool) loop() {
	defer p.wg.Done()

	for n := range p.queue {
		if p.ctx.Err() != nil {
			continue
		}
		out, err := p.executor.Execute(p.ctx, n)
		p.outcomes[out].Add(1)
		if err != nil {
			p.logger.Debug("step reaction failed",
				slog.String("step", p.Kind().String()),
				slog.String("slip_id", n.ID),
				slog.String("outcome", out.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}

// PoolStats contains pool counters.
type PoolStats struct {
	Kind      step.Kind        `json:"kind"`
	Queued    int              `json:"queued"`
	Submitted int64            `json:"submitted"`
	Dropped   int64            `json:"dropped"`
	Outcomes  map[string]int64 `json:"outcomes"`
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() PoolStats {
	st := PoolStats{
		Kind:      p.Kind(),
		Queued:    len(p.queue),
		Submitted: p.submitted.Load(),
		Dropped:   p.dropped.Load(),
		Outcomes:  make(map[string]int64, len(outcomeNames)),
	}
	for i := range p.outcomes {
		if v := p.outcomes[i].Load(); v > 0 {
			st.Outcomes[Outcome(i).String()] = v
		}
	}
	return st
}

// Outcomes returns how many reactions ended with o.
func (p *Pool) Outcomes(o Outcome) int64 {
	if o < 0 || int(o) >= len(p.outcomes) {
		return 0
	}
	return p.outcomes[o].Load()
}
