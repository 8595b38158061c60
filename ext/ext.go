// Package ext defines the extension system for choreo.
// Extensions are notified of pipeline lifecycle events (step completed,
// pipeline completed, slip shaken, etc.) and can react to them: logging,
// metrics or auditing.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about. Hooks are local to the process that
// observed the event; they never write to the store or the feed.
package ext

import (
	"context"
	"time"

	"github.com/xraph/choreo/feed"
	"github.com/xraph/choreo/slip"
	"github.com/xraph/choreo/step"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Step lifecycle hooks
// ──────────────────────────────────────────────────

// StepCompleted is called after a worker advanced and persisted a slip.
type StepCompleted interface {
	OnStepCompleted(ctx context.Context, s *slip.Slip, kind step.Kind, result int64, elapsed time.Duration) error
}

// PipelineCompleted is called by the worker whose write consumed the last
// step of a slip.
type PipelineCompleted interface {
	OnPipelineCompleted(ctx context.Context, s *slip.Slip) error
}

// StepSkipped is called when a notification could not be processed
// because a referenced document was missing or unreadable.
type StepSkipped interface {
	OnStepSkipped(ctx context.Context, slipID string, kind step.Kind, reason error) error
}

// WriteConflict is called when a guarded slip write lost a race.
type WriteConflict interface {
	OnWriteConflict(ctx context.Context, slipID string, kind step.Kind) error
}

// NotificationDropped is called when a step queue was full and a
// notification was discarded.
type NotificationDropped interface {
	OnNotificationDropped(ctx context.Context, kind step.Kind, n feed.Notification) error
}

// ──────────────────────────────────────────────────
// Liveness and configuration hooks
// ──────────────────────────────────────────────────

// SlipShaken is called after the reaper refreshed a stale slip.
type SlipShaken interface {
	OnSlipShaken(ctx context.Context, s *slip.Slip) error
}

// ThrottleChanged is called when the shared throttle delay changes.
type ThrottleChanged interface {
	OnThrottleChanged(ctx context.Context, previous, current time.Duration) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
