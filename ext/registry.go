package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/choreo/feed"
	"github.com/xraph/choreo/slip"
	"github.com/xraph/choreo/step"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type stepCompletedEntry struct {
	name string
	hook StepCompleted
}

type pipelineCompletedEntry struct {
	name string
	hook PipelineCompleted
}

type stepSkippedEntry struct {
	name string
	hook StepSkipped
}

type writeConflictEntry struct {
	name string
	hook WriteConflict
}

type notificationDroppedEntry struct {
	name string
	hook NotificationDropped
}

type slipShakenEntry struct {
	name string
	hook SlipShaken
}

type throttleChangedEntry struct {
	name string
	hook ThrottleChanged
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
//
// Register all extensions before the pipeline starts; emits are safe for
// concurrent use, Register is not.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	stepCompleted       []stepCompletedEntry
	pipelineCompleted   []pipelineCompletedEntry
	stepSkipped         []stepSkippedEntry
	writeConflict       []writeConflictEntry
	notificationDropped []notificationDroppedEntry
	slipShaken          []slipShakenEntry
	throttleChanged     []throttleChangedEntry
	shutdown            []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(StepCompleted); ok {
		r.stepCompleted = append(r.stepCompleted, stepCompletedEntry{name, h})
	}
	if h, ok := e.(PipelineCompleted); ok {
		r.pipelineCompleted = append(r.pipelineCompleted, pipelineCompletedEntry{name, h})
	}
	if h, ok := e.(StepSkipped); ok {
		r.stepSkipped = append(r.stepSkipped, stepSkippedEntry{name, h})
	}
	if h, ok := e.(WriteConflict); ok {
		r.writeConflict = append(r.writeConflict, writeConflictEntry{name, h})
	}
	if h, ok := e.(NotificationDropped); ok {
		r.notificationDropped = append(r.notificationDropped, notificationDroppedEntry{name, h})
	}
	if h, ok := e.(SlipShaken); ok {
		r.slipShaken = append(r.slipShaken, slipShakenEntry{name, h})
	}
	if h, ok := e.(ThrottleChanged); ok {
		r.throttleChanged = append(r.throttleChanged, throttleChangedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Step event emitters
// ──────────────────────────────────────────────────

// EmitStepCompleted notifies all extensions that implement StepCompleted.
func (r *Registry) EmitStepCompleted(ctx context.Context, s *slip.Slip, kind step.Kind, result int64, elapsed time.Duration) {
	for _, e := range r.stepCompleted {
		if err := e.hook.OnStepCompleted(ctx, s, kind, result, elapsed); err != nil {
			r.logHookError("OnStepCompleted", e.name, err)
		}
	}
}

// EmitPipelineCompleted notifies all extensions that implement PipelineCompleted.
func (r *Registry) EmitPipelineCompleted(ctx context.Context, s *slip.Slip) {
	for _, e := range r.pipelineCompleted {
		if err := e.hook.OnPipelineCompleted(ctx, s); err != nil {
			r.logHookError("OnPipelineCompleted", e.name, err)
		}
	}
}

// EmitStepSkipped notifies all extensions that implement StepSkipped.
func (r *Registry) EmitStepSkipped(ctx context.Context, slipID string, kind step.Kind, reason error) {
	for _, e := range r.stepSkipped {
		if err := e.hook.OnStepSkipped(ctx, slipID, kind, reason); err != nil {
			r.logHookError("OnStepSkipped", e.name, err)
		}
	}
}

// EmitWriteConflict notifies all extensions that implement WriteConflict.
func (r *Registry) EmitWriteConflict(ctx context.Context, slipID string, kind step.Kind) {
	for _, e := range r.writeConflict {
		if err := e.hook.OnWriteConflict(ctx, slipID, kind); err != nil {
			r.logHookError("OnWriteConflict", e.name, err)
		}
	}
}

// EmitNotificationDropped notifies all extensions that implement NotificationDropped.
func (r *Registry) EmitNotificationDropped(ctx context.Context, kind step.Kind, n feed.Notification) {
	for _, e := range r.notificationDropped {
		if err := e.hook.OnNotificationDropped(ctx, kind, n); err != nil {
			r.logHookError("OnNotificationDropped", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitSlipShaken notifies all extensions that implement SlipShaken.
func (r *Registry) EmitSlipShaken(ctx context.Context, s *slip.Slip) {
	for _, e := range r.slipShaken {
		if err := e.hook.OnSlipShaken(ctx, s); err != nil {
			r.logHookError("OnSlipShaken", e.name, err)
		}
	}
}

// EmitThrottleChanged notifies all extensions that implement ThrottleChanged.
func (r *Registry) EmitThrottleChanged(ctx context.Context, previous, current time.Duration) {
	for _, e := range r.throttleChanged {
		if err := e.hook.OnThrottleChanged(ctx, previous, current); err != nil {
			r.logHookError("OnThrottleChanged", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated to the pipeline.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
