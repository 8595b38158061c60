// Package reaper keeps routing slips moving when their notifications were
// lost. A periodic sweep scans every slip; a non-terminal slip that has not
// been written within the freshness window is touched and saved, which
// re-enters it into the change feed as a fresh "written" notification.
//
// Sweeps never overlap: the next one is scheduled only after the previous
// one returned. There is no retry cap and no dead letter; a slip that can
// never progress is shaken on every sweep.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"github.com/xraph/choreo/guard"
	"github.com/xraph/choreo/id"
	"github.com/xraph/choreo/slip"
	"github.com/xraph/choreo/store"
)

const (
	// DefaultSchedule is the sweep schedule.
	DefaultSchedule = "@every 5s"

	// DefaultFreshnessWindow is how long a slip may go untouched.
	DefaultFreshnessWindow = 10 * time.Second
)

// cronParser supports standard 5-field cron and descriptors like "@every 5s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	s, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("reaper: parse schedule %q: %w", expr, err)
	}
	return s, nil
}

// Store is the persistence the reaper scans and writes.
type Store interface {
	store.Reader
	store.Writer
}

// Emitter receives shaken slips. *ext.Registry satisfies it.
type Emitter interface {
	EmitSlipShaken(ctx context.Context, s *slip.Slip)
}

// Report summarizes one sweep.
type Report struct {
	Scanned   int           `json:"scanned"`
	Healthy   int           `json:"healthy"`
	Shaken    int           `json:"shaken"`
	Conflicts int           `json:"conflicts"`
	Failed    int           `json:"failed"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Option configures a Reaper.
type Option func(*Reaper)

// WithSchedule sets the sweep schedule as a cron expression.
func WithSchedule(expr string) Option {
	return func(r *Reaper) { r.scheduleExpr = expr }
}

// WithCronSchedule sets an already parsed schedule.
func WithCronSchedule(s cronlib.Schedule) Option {
	return func(r *Reaper) { r.schedule = s }
}

// WithFreshnessWindow sets how long a non-terminal slip may go untouched.
func WithFreshnessWindow(d time.Duration) Option {
	return func(r *Reaper) {
		if d > 0 {
			r.window = d
		}
	}
}

// WithNudgeRate caps slip writes per second during a sweep. Zero means
// unlimited.
func WithNudgeRate(perSecond float64) Option {
	return func(r *Reaper) {
		if perSecond > 0 {
			r.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithGuard sets the concurrency control for nudge writes.
func WithGuard(g guard.Guard) Option {
	return func(r *Reaper) { r.guard = g }
}

// WithEmitter sets the hook emitter notified for every shaken slip.
func WithEmitter(e Emitter) Option {
	return func(r *Reaper) { r.emitter = e }
}

// WithLogger sets the reaper logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reaper) { r.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Reaper) { r.now = now }
}

// Reaper sweeps routing slips and shakes the stale ones.
type Reaper struct {
	store        Store
	scheduleExpr string
	schedule     cronlib.Schedule
	window       time.Duration
	limiter      *rate.Limiter
	guard        guard.Guard
	emitter      Emitter
	logger       *slog.Logger
	now          func() time.Time

	mu     sync.Mutex
	last   Report
	sweeps int64
}

// New creates a reaper over s.
func New(s Store, opts ...Option) (*Reaper, error) {
	r := &Reaper{
		store:        s,
		scheduleExpr: DefaultSchedule,
		window:       DefaultFreshnessWindow,
		guard:        guard.Revision{},
		logger:       slog.Default(),
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.schedule == nil {
		sched, err := ParseSchedule(r.scheduleExpr)
		if err != nil {
			return nil, err
		}
		r.schedule = sched
	}
	return r, nil
}

// Sweep scans every routing slip once. Per-slip failures are logged and
// counted; only a failing scan or a cancelled context aborts the sweep.
func (r *Reaper) Sweep(ctx context.Context) (rep Report, err error) {
	start := time.Now()
	defer func() { rep.Elapsed = time.Since(start) }()

	for doc, err := range r.store.Scan(ctx, string(id.PrefixRouting)) {
		if err != nil {
			return rep, fmt.Errorf("reaper: scan: %w", err)
		}
		rep.Scanned++

		sl, err := store.Decode[slip.Slip](doc)
		if err != nil {
			rep.Failed++
			r.logger.Warn("reaper: undecodable slip",
				slog.String("slip_id", doc.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !sl.Stale(r.now(), r.window) {
			rep.Healthy++
			continue
		}

		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return rep, fmt.Errorf("reaper: nudge limit: %w", err)
			}
		}
		if err := r.shake(ctx, &sl, doc.Revision); err != nil {
			if errors.Is(err, store.ErrConflict) {
				// Written since the scan, so it is moving.
				rep.Conflicts++
				continue
			}
			rep.Failed++
			r.logger.Warn("reaper: shake failed",
				slog.String("slip_id", sl.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		rep.Shaken++
	}
	return rep, nil
}

func (r *Reaper) shake(ctx context.Context, sl *slip.Slip, rev int64) error {
	if !sl.Touch(r.now()) {
		return nil
	}
	doc, err := store.Encode(sl.ID, sl, rev)
	if err != nil {
		return err
	}
	if _, err := r.guard.Save(ctx, r.store, doc); err != nil {
		return err
	}
	r.logger.Info("shook stale slip",
		slog.String("slip_id", sl.ID),
		slog.Any("pending", sl.Steps),
	)
	if r.emitter != nil {
		r.emitter.EmitSlipShaken(ctx, sl)
	}
	return nil
}

// Run sweeps on the configured schedule until ctx is done. The next sweep
// time is computed after the previous sweep finished; errors and panics
// are logged and the loop always re-arms.
func (r *Reaper) Run(ctx context.Context) error {
	r.logger.Info("reaper started",
		slog.String("schedule", r.scheduleExpr),
		slog.Duration("freshness_window", r.window),
	)
	for {
		now := r.now()
		wait := r.schedule.Next(now).Sub(now)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.logger.Info("reaper stopped")
			return nil
		case <-timer.C:
		}
		r.sweepSafely(ctx)
	}
}

func (r *Reaper) sweepSafely(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("reaper: sweep panicked",
				slog.Any("panic", p),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	rep, err := r.Sweep(ctx)
	r.mu.Lock()
	r.last = rep
	r.sweeps++
	r.mu.Unlock()

	if err != nil && ctx.Err() == nil {
		r.logger.Error("reaper: sweep failed", slog.String("error", err.Error()))
		return
	}
	if rep.Shaken > 0 || rep.Failed > 0 {
		r.logger.Info("reaper sweep",
			slog.Int("scanned", rep.Scanned),
			slog.Int("shaken", rep.Shaken),
			slog.Int("conflicts", rep.Conflicts),
			slog.Int("failed", rep.Failed),
			slog.Duration("elapsed", rep.Elapsed),
		)
	}
}

// Last returns the report of the most recent scheduled sweep and how many
// scheduled sweeps have run.
func (r *Reaper) Last() (Report, int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.sweeps
}
