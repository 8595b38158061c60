package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/choreo"
	"github.com/xraph/choreo/backoff"
	"github.com/xraph/choreo/ext"
	"github.com/xraph/choreo/feed"
	"github.com/xraph/choreo/guard"
	"github.com/xraph/choreo/id"
	mw "github.com/xraph/choreo/middleware"
	"github.com/xraph/choreo/observability"
	"github.com/xraph/choreo/reaper"
	"github.com/xraph/choreo/step"
	"github.com/xraph/choreo/store"
	"github.com/xraph/choreo/throttle"
	"github.com/xraph/choreo/worker"
)

// Backend is a store that also publishes its change feed.
type Backend interface {
	store.Store
	feed.Feed
}

// Engine runs the choreographed pipeline for a set of step kinds.
type Engine struct {
	backend    Backend
	extensions *ext.Registry
	logger     *slog.Logger
	workerID   string

	kinds           []step.Kind
	concurrency     int
	queueSize       int
	guard           guard.Guard
	stepTimeout     time.Duration
	shutdownTimeout time.Duration
	resubscribe     *backoff.Policy
	mws             []mw.Middleware
	pendingExt      []ext.Extension

	reaperEnabled bool
	reaperOpts    []reaper.Option

	cell       *throttle.Cell
	controller *throttle.Controller
	reaper     *reaper.Reaper
	pools      []*worker.Pool

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan error
	stopMu  sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithKinds sets the step kinds served by this engine.
func WithKinds(kinds ...step.Kind) Option {
	return func(eng *Engine) { eng.kinds = kinds }
}

// WithConcurrency sets the number of goroutines per step kind.
func WithConcurrency(n int) Option {
	return func(eng *Engine) { eng.concurrency = n }
}

// WithQueueSize sets the per-kind notification queue capacity.
func WithQueueSize(n int) Option {
	return func(eng *Engine) { eng.queueSize = n }
}

// WithGuard sets the slip write concurrency control for workers and the
// reaper.
func WithGuard(g guard.Guard) Option {
	return func(eng *Engine) { eng.guard = g }
}

// WithStepTimeout bounds every step invocation.
func WithStepTimeout(d time.Duration) Option {
	return func(eng *Engine) { eng.stepTimeout = d }
}

// WithShutdownTimeout bounds how long Run waits for queued steps after
// its context is cancelled.
func WithShutdownTimeout(d time.Duration) Option {
	return func(eng *Engine) { eng.shutdownTimeout = d }
}

// WithResubscribe re-establishes feed subscriptions that ended, waiting
// according to p between attempts. Without it an ended feed stops the
// engine.
func WithResubscribe(p backoff.Policy) Option {
	return func(eng *Engine) { eng.resubscribe = &p }
}

// WithReaper configures the stuck-slip reaper.
func WithReaper(opts ...reaper.Option) Option {
	return func(eng *Engine) {
		eng.reaperEnabled = true
		eng.reaperOpts = append(eng.reaperOpts, opts...)
	}
}

// WithoutReaper disables the stuck-slip reaper in this process.
func WithoutReaper() Option {
	return func(eng *Engine) { eng.reaperEnabled = false }
}

// WithThrottleCell shares an existing throttle cell with the engine.
func WithThrottleCell(c *throttle.Cell) Option {
	return func(eng *Engine) { eng.cell = c }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = l }
}

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) { eng.pendingExt = append(eng.pendingExt, e) }
}

// WithMiddleware adds middleware to the invocation chain, inside the
// built-in recover, tracing, metrics, logging and timeout middleware.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) { eng.mws = append(eng.mws, m) }
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider for the metrics
// middleware and the observability extension.
// If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}

// Build creates an Engine over backend.
func Build(backend Backend, opts ...Option) (*Engine, error) {
	if backend == nil {
		return nil, errors.New("engine: nil backend")
	}
	eng := &Engine{
		backend:         backend,
		logger:          slog.Default(),
		workerID:        id.NewWorkerID(),
		kinds:           step.Kinds(),
		concurrency:     worker.DefaultConcurrency,
		queueSize:       worker.DefaultQueueSize,
		guard:           guard.Revision{},
		shutdownTimeout: 30 * time.Second,
		reaperEnabled:   true,
	}
	for _, opt := range opts {
		opt(eng)
	}
	if len(eng.kinds) == 0 {
		return nil, choreo.ErrNoKinds
	}
	if eng.cell == nil {
		eng.cell = throttle.NewCell(0)
	}
	eng.logger = eng.logger.With(slog.String("worker_id", eng.workerID))

	// Register the observability metrics extension first.
	eng.extensions = ext.NewRegistry(eng.logger)
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/xraph/choreo/observability")
		eng.extensions.Register(observability.NewMetricsExtensionWithMeter(meter))
	} else {
		eng.extensions.Register(observability.NewMetricsExtension())
	}
	for _, e := range eng.pendingExt {
		eng.extensions.Register(e)
	}

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer("github.com/xraph/choreo"))
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter("github.com/xraph/choreo"))
	} else {
		metricsMw = mw.Metrics()
	}

	// Default middleware stack: recover → tracing → metrics → logging → timeout.
	defaultMws := []mw.Middleware{
		mw.Recover(eng.logger),
		tracingMw,
		metricsMw,
		mw.Logging(eng.logger),
		mw.Timeout(eng.logger),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	seen := make(map[step.Kind]struct{}, len(eng.kinds))
	for _, kind := range eng.kinds {
		if _, dup := seen[kind]; dup {
			continue
		}
		seen[kind] = struct{}{}

		w, err := worker.New(kind, backend,
			worker.WithGuard(eng.guard),
			worker.WithThrottle(eng.cell),
			worker.WithExtensions(eng.extensions),
			worker.WithLogger(eng.logger),
		)
		if err != nil {
			return nil, err
		}
		executor := worker.NewExecutor(w, eng.stepTimeout, eng.logger, allMws...)
		eng.pools = append(eng.pools, worker.NewPool(executor, eng.extensions, eng.logger,
			worker.WithPoolConcurrency(eng.concurrency),
			worker.WithQueueSize(eng.queueSize),
		))
	}

	eng.controller = throttle.NewController(backend, backend, eng.cell,
		throttle.WithLogger(eng.logger),
		throttle.WithEmitter(eng.extensions),
		throttle.WithSubscribeOptions(eng.feedOptions("throttle")...),
	)

	if eng.reaperEnabled {
		ropts := []reaper.Option{
			reaper.WithGuard(eng.guard),
			reaper.WithEmitter(eng.extensions),
			reaper.WithLogger(eng.logger),
		}
		r, err := reaper.New(backend, append(ropts, eng.reaperOpts...)...)
		if err != nil {
			return nil, err
		}
		eng.reaper = r
	}

	return eng, nil
}

// Run starts every component and blocks until ctx is cancelled or a
// component fails. On return the pools have been drained (bounded by the
// shutdown timeout) and the Shutdown hook has fired. A cancelled ctx is a
// clean shutdown and yields nil.
func (eng *Engine) Run(ctx context.Context) error {
	if !eng.running.CompareAndSwap(false, true) {
		return choreo.ErrAlreadyRunning
	}

	eng.logger.Info("engine starting",
		slog.Any("kinds", step.Names(eng.kinds)),
		slog.String("guard", eng.guard.Name()),
		slog.Bool("reaper", eng.reaper != nil),
	)

	for _, p := range eng.pools {
		if err := p.Start(ctx); err != nil {
			return fmt.Errorf("engine: start pool %s: %w", p.Kind(), err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.supervise(gctx, "throttle controller", eng.controller.Run)
	})
	g.Go(func() error {
		return eng.supervise(gctx, "slip feed", eng.pump)
	})
	if eng.reaper != nil {
		g.Go(func() error { return eng.reaper.Run(gctx) })
	}
	err := g.Wait()

	// Subscriptions are closed by now; drain the queues.
	stopCtx, cancel := context.WithTimeout(context.Background(), eng.shutdownTimeout)
	defer cancel()
	for _, p := range eng.pools {
		if stopErr := p.Stop(stopCtx); stopErr != nil {
			eng.logger.Error("pool stop error",
				slog.String("step", p.Kind().String()),
				slog.String("error", stopErr.Error()),
			)
		}
	}
	eng.extensions.EmitShutdown(stopCtx)

	if err != nil {
		eng.logger.Error("engine stopped", slog.String("error", err.Error()))
		return err
	}
	eng.logger.Info("engine stopped")
	return nil
}

// Start runs the engine in the background. Use Stop to shut it down.
func (eng *Engine) Start(ctx context.Context) error {
	eng.stopMu.Lock()
	defer eng.stopMu.Unlock()
	if eng.cancel != nil {
		return choreo.ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	eng.cancel = cancel
	eng.done = make(chan error, 1)
	go func() { eng.done <- eng.Run(runCtx) }()
	return nil
}

// Stop cancels a started engine and waits for Run to return or ctx to end.
func (eng *Engine) Stop(ctx context.Context) error {
	eng.stopMu.Lock()
	cancel, done := eng.cancel, eng.done
	eng.stopMu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pump subscribes to every routing slip and fans notifications out to the
// pools. It returns when ctx ends or the feed ends.
func (eng *Engine) pump(ctx context.Context) error {
	sub, err := eng.backend.Subscribe(ctx, feed.ForPrefix(string(id.PrefixRouting)), eng.feedOptions("slips")...)
	if err != nil {
		return fmt.Errorf("engine: subscribe: %w", err)
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-sub.C():
			if !ok {
				return fmt.Errorf("%w: %w", choreo.ErrFeedEnded, sub.Err())
			}
			for _, p := range eng.pools {
				p.Submit(n)
			}
		}
	}
}

// supervise runs fn and, when a resubscribe policy is configured, runs it
// again after it ends for any reason other than ctx ending.
func (eng *Engine) supervise(ctx context.Context, name string, fn func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = choreo.ErrFeedEnded
		}
		if eng.resubscribe == nil {
			return fmt.Errorf("engine: %s: %w", name, err)
		}
		eng.logger.Warn("subscription ended, resubscribing",
			slog.String("component", name),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		if waitErr := eng.resubscribe.Wait(ctx, attempt); waitErr != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("engine: %s: %w: %w", name, waitErr, err)
		}
	}
}

func (eng *Engine) feedOptions(name string) []feed.Option {
	return []feed.Option{
		feed.WithErrorHandler(func(err error) {
			eng.logger.Warn("feed error",
				slog.String("subscription", name),
				slog.String("error", err.Error()),
			)
		}),
		feed.WithStateHandler(func(st feed.State) {
			eng.logger.Info("feed state changed",
				slog.String("subscription", name),
				slog.String("state", st.String()),
			)
		}),
	}
}

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Backend returns the store and feed the engine runs on.
func (eng *Engine) Backend() Backend { return eng.backend }

// Throttle returns the shared throttle cell.
func (eng *Engine) Throttle() *throttle.Cell { return eng.cell }

// Reaper returns the reaper, or nil if disabled.
func (eng *Engine) Reaper() *reaper.Reaper { return eng.reaper }

// Pools returns the per-kind worker pools.
func (eng *Engine) Pools() []*worker.Pool { return eng.pools }

// WorkerID returns the process identifier used in logs.
func (eng *Engine) WorkerID() string { return eng.workerID }
