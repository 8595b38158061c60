package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/choreo/ext"
	"github.com/xraph/choreo/feed"
	"github.com/xraph/choreo/id"
	"github.com/xraph/choreo/slip"
	"github.com/xraph/choreo/step"
)

// Compile-time interface checks.
var (
	_ ext.Extension           = (*Extension)(nil)
	_ ext.StepCompleted       = (*Extension)(nil)
	_ ext.StepSkipped         = (*Extension)(nil)
	_ ext.WriteConflict       = (*Extension)(nil)
	_ ext.PipelineCompleted   = (*Extension)(nil)
	_ ext.NotificationDropped = (*Extension)(nil)
	_ ext.SlipShaken          = (*Extension)(nil)
	_ ext.ThrottleChanged     = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one entry of the audit trail.
type AuditEvent struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
	At         time.Time      `json:"at"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severity constants.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges choreo lifecycle events to an audit trail backend.
// Each lifecycle hook emits a structured audit event through the [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Step hooks ──────────────────────────────────────

// OnStepCompleted implements ext.StepCompleted.
func (e *Extension) OnStepCompleted(ctx context.Context, s *slip.Slip, kind step.Kind, result int64, elapsed time.Duration) error {
	return e.record(ctx, ActionStepCompleted, SeverityInfo, OutcomeSuccess,
		ResourceSlip, s.ID, CategoryStep, nil,
		"step", kind.String(),
		"result", result,
		"elapsed_ms", elapsed.Milliseconds(),
		"remaining", len(s.Steps),
	)
}

// OnStepSkipped implements ext.StepSkipped.
func (e *Extension) OnStepSkipped(ctx context.Context, slipID string, kind step.Kind, reason error) error {
	return e.record(ctx, ActionStepSkipped, SeverityWarning, OutcomeFailure,
		ResourceSlip, slipID, CategoryStep, reason,
		"step", kind.String(),
	)
}

// OnWriteConflict implements ext.WriteConflict.
func (e *Extension) OnWriteConflict(ctx context.Context, slipID string, kind step.Kind) error {
	return e.record(ctx, ActionStepConflict, SeverityWarning, OutcomeFailure,
		ResourceSlip, slipID, CategoryStep, nil,
		"step", kind.String(),
	)
}

// ── Pipeline hooks ──────────────────────────────────

// OnPipelineCompleted implements ext.PipelineCompleted.
func (e *Extension) OnPipelineCompleted(ctx context.Context, s *slip.Slip) error {
	results := make(map[string]int64, len(s.Results))
	for k, v := range s.Results {
		results[k] = v
	}
	return e.record(ctx, ActionPipelineCompleted, SeverityInfo, OutcomeSuccess,
		ResourceSlip, s.ID, CategoryPipeline, nil,
		"task_id", s.TaskID,
		"completed", step.Names(s.Completed),
		"results", results,
	)
}

// OnNotificationDropped implements ext.NotificationDropped.
func (e *Extension) OnNotificationDropped(ctx context.Context, kind step.Kind, n feed.Notification) error {
	return e.record(ctx, ActionNotificationDropped, SeverityWarning, OutcomeFailure,
		ResourceSlip, n.ID, CategoryFeed, nil,
		"step", kind.String(),
		"revision", n.Revision,
	)
}

// OnSlipShaken implements ext.SlipShaken.
func (e *Extension) OnSlipShaken(ctx context.Context, s *slip.Slip) error {
	return e.record(ctx, ActionSlipShaken, SeverityWarning, OutcomeSuccess,
		ResourceSlip, s.ID, CategoryReaper, nil,
		"pending", step.Names(s.Steps),
	)
}

// ── Throttle hooks ──────────────────────────────────

// OnThrottleChanged implements ext.ThrottleChanged.
func (e *Extension) OnThrottleChanged(ctx context.Context, previous, current time.Duration) error {
	return e.record(ctx, ActionThrottleChanged, SeverityInfo, OutcomeSuccess,
		ResourceThrottle, id.ConfigID, CategoryThrottle, nil,
		"previous_ms", previous.Milliseconds(),
		"current_ms", current.Milliseconds(),
	)
}

// ── Internal helpers ────────────────────────────────

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
		At:         time.Now().UTC(),
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
