package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/choreo/feed"
	"github.com/xraph/choreo/middleware"
)

// Executor runs a worker's reaction through the middleware chain.
type Executor struct {
	worker  *Worker
	mw      middleware.Middleware
	timeout time.Duration
	logger  *slog.Logger
}

// NewExecutor creates an Executor for w. A non-zero timeout is attached to
// every invocation for the Timeout middleware to enforce.
func NewExecutor(w *Worker, timeout time.Duration, logger *slog.Logger, mws ...middleware.Middleware) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		worker:  w,
		mw:      middleware.Chain(mws...),
		timeout: timeout,
		logger:  logger,
	}
}

// Worker returns the wrapped worker.
func (e *Executor) Worker() *Worker { return e.worker }

// Execute runs one notification through middleware and Worker.React. If
// the chain fails before React returns (a recovered panic, a middleware
// short-circuit) the outcome is OutcomeFailed.
func (e *Executor) Execute(ctx context.Context, n feed.Notification) (Outcome, error) {
	inv := &middleware.Invocation{
		Kind:     e.worker.Kind(),
		SlipID:   n.ID,
		Revision: n.Revision,
		Timeout:  e.timeout,
	}

	out := OutcomeFailed
	err := e.mw(ctx, inv, func(ctx context.Context) error {
		var reactErr error
		out, reactErr = e.worker.React(ctx, n)
		inv.Outcome = out.String()
		return reactErr
	})
	return out, err
}
