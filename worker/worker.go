// Package worker provides the step execution engine: a Worker that reacts
// to routing slip notifications for one step kind, an Executor that runs
// reactions through middleware, and a Pool that feeds a bounded queue to a
// fixed set of goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/choreo"
	"github.com/xraph/choreo/ext"
	"github.com/xraph/choreo/feed"
	"github.com/xraph/choreo/guard"
	"github.com/xraph/choreo/id"
	"github.com/xraph/choreo/slip"
	"github.com/xraph/choreo/step"
	"github.com/xraph/choreo/store"
	"github.com/xraph/choreo/task"
	"github.com/xraph/choreo/throttle"
)

// Outcome classifies how a worker reacted to a notification.
type Outcome int

const (
	// OutcomeFailed means the reaction did not complete, for example
	// because the handler panicked or the write failed.
	OutcomeFailed Outcome = iota

	// OutcomeIgnored means the notification was not a slip write.
	OutcomeIgnored

	// OutcomeSkipped means a referenced document was missing or unreadable.
	OutcomeSkipped

	// OutcomeIneligible means the slip's head step belongs to another kind
	// or the slip is terminal.
	OutcomeIneligible

	// OutcomeAdvanced means the step was applied and the slip persisted.
	OutcomeAdvanced

	// OutcomeCompleted is OutcomeAdvanced where the slip became terminal.
	OutcomeCompleted

	// OutcomeConflict means a guarded write lost a race; the result was
	// discarded.
	OutcomeConflict
)

var outcomeNames = [...]string{
	OutcomeFailed:     "failed",
	OutcomeIgnored:    "ignored",
	OutcomeSkipped:    "skipped",
	OutcomeIneligible: "ineligible",
	OutcomeAdvanced:   "advanced",
	OutcomeCompleted:  "completed",
	OutcomeConflict:   "conflict",
}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return fmt.Sprintf("outcome(%d)", int(o))
	}
	return outcomeNames[o]
}

// Store is the persistence a worker reads slips and tasks from and writes
// slips to.
type Store interface {
	store.Reader
	store.Writer
}

// Option configures a Worker.
type Option func(*Worker)

// WithGuard sets the concurrency control for slip writes.
func WithGuard(g guard.Guard) Option {
	return func(w *Worker) { w.guard = g }
}

// WithThrottle sets the shared throttle cell consulted before each step.
func WithThrottle(c *throttle.Cell) Option {
	return func(w *Worker) { w.cell = c }
}

// WithExtensions sets the hook registry.
func WithExtensions(r *ext.Registry) Option {
	return func(w *Worker) { w.extensions = r }
}

// WithLogger sets the worker logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// WithClock overrides the time source used to stamp slips.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

// Worker applies one step kind to every routing slip whose head names it.
type Worker struct {
	kind       step.Kind
	store      Store
	guard      guard.Guard
	cell       *throttle.Cell
	extensions *ext.Registry
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a worker for kind.
func New(kind step.Kind, s Store, opts ...Option) (*Worker, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("worker: %w: %q", choreo.ErrUnknownStep, kind)
	}
	w := &Worker{
		kind:   kind,
		store:  s,
		guard:  guard.Revision{},
		cell:   throttle.NewCell(0),
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.extensions == nil {
		w.extensions = ext.NewRegistry(w.logger)
	}
	return w, nil
}

// Kind returns the step kind this worker applies.
func (w *Worker) Kind() step.Kind { return w.kind }

// Guard returns the configured write guard.
func (w *Worker) Guard() guard.Guard { return w.guard }

// React handles one change notification. Eligibility is decided from the
// slip as loaded; under guard.None two workers that load the same revision
// both apply the step.
func (w *Worker) React(ctx context.Context, n feed.Notification) (Outcome, error) {
	if n.Kind != feed.Written || !id.IsSlip(n.ID) {
		return OutcomeIgnored, nil
	}

	sl, rev, err := store.Load[slip.Slip](ctx, w.store, n.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = fmt.Errorf("%w: %s", choreo.ErrSlipNotFound, n.ID)
		}
		w.extensions.EmitStepSkipped(ctx, n.ID, w.kind, err)
		return OutcomeSkipped, err
	}
	if !sl.Eligible(w.kind) {
		return OutcomeIneligible, nil
	}

	t, _, err := store.Load[task.Task](ctx, w.store, sl.TaskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = fmt.Errorf("%w: %s", choreo.ErrTaskNotFound, sl.TaskID)
		}
		w.extensions.EmitStepSkipped(ctx, n.ID, w.kind, err)
		return OutcomeSkipped, err
	}
	operand, err := t.Operand(w.kind)
	if err != nil {
		return OutcomeSkipped, err
	}

	start := time.Now()
	if err := w.cell.Wait(ctx); err != nil {
		return OutcomeFailed, fmt.Errorf("worker %s: throttle wait: %w", w.kind, err)
	}
	result, err := w.kind.Apply(operand)
	if err != nil {
		return OutcomeFailed, err
	}
	if err := sl.Advance(w.kind, result, w.now()); err != nil {
		return OutcomeFailed, err
	}

	doc, err := store.Encode(sl.ID, sl, rev)
	if err != nil {
		return OutcomeFailed, err
	}
	if _, err := w.guard.Save(ctx, w.store, doc); err != nil {
		if errors.Is(err, store.ErrConflict) {
			w.logger.Debug("slip write lost race",
				slog.String("step", w.kind.String()),
				slog.String("slip_id", sl.ID),
				slog.Int64("revision", rev),
			)
			w.extensions.EmitWriteConflict(ctx, sl.ID, w.kind)
			return OutcomeConflict, nil
		}
		return OutcomeFailed, fmt.Errorf("worker %s: save %s: %w", w.kind, sl.ID, err)
	}

	w.extensions.EmitStepCompleted(ctx, &sl, w.kind, result, time.Since(start))
	if sl.Terminal() {
		w.logger.Info("pipeline completed",
			slog.String("slip_id", sl.ID),
			slog.Any("results", sl.Results),
		)
		w.extensions.EmitPipelineCompleted(ctx, &sl)
		return OutcomeCompleted, nil
	}
	return OutcomeAdvanced, nil
}
