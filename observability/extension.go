package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/choreo/ext"
	"github.com/xraph/choreo/feed"
	"github.com/xraph/choreo/slip"
	"github.com/xraph/choreo/step"
)

// meterName is the instrumentation scope name for choreo lifecycle metrics.
const meterName = "github.com/xraph/choreo/observability"

// Compile-time interface checks.
var (
	_ ext.Extension           = (*MetricsExtension)(nil)
	_ ext.StepCompleted       = (*MetricsExtension)(nil)
	_ ext.PipelineCompleted   = (*MetricsExtension)(nil)
	_ ext.StepSkipped         = (*MetricsExtension)(nil)
	_ ext.WriteConflict       = (*MetricsExtension)(nil)
	_ ext.NotificationDropped = (*MetricsExtension)(nil)
	_ ext.SlipShaken          = (*MetricsExtension)(nil)
	_ ext.ThrottleChanged     = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle metrics through an OTel
// meter. Register it as a choreo extension to track step throughput,
// conflicts, drops and reaper activity.
type MetricsExtension struct {
	StepCompleted       metric.Int64Counter
	PipelineCompleted   metric.Int64Counter
	StepSkipped         metric.Int64Counter
	WriteConflict       metric.Int64Counter
	NotificationDropped metric.Int64Counter
	SlipShaken          metric.Int64Counter
	ThrottleChanged     metric.Int64Counter
	ThrottleDelay       metric.Int64Gauge
}

// NewMetricsExtension creates a MetricsExtension using the global MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided
// meter. On instrument errors the OTel API hands back noop instruments.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc))
		return c
	}
	delay, _ := meter.Int64Gauge("choreo.throttle.delay",
		metric.WithDescription("Current throttle delay"),
		metric.WithUnit("ms"),
	)
	return &MetricsExtension{
		StepCompleted:       counter("choreo.step.completed", "Steps applied and persisted"),
		PipelineCompleted:   counter("choreo.pipeline.completed", "Slips whose last step was consumed"),
		StepSkipped:         counter("choreo.step.skipped", "Notifications skipped for missing documents"),
		WriteConflict:       counter("choreo.step.conflicts", "Guarded writes that lost a race"),
		NotificationDropped: counter("choreo.feed.dropped", "Notifications dropped on a full step queue"),
		SlipShaken:          counter("choreo.reaper.shaken", "Stale slips refreshed by the reaper"),
		ThrottleChanged:     counter("choreo.throttle.changes", "Throttle delay changes observed"),
		ThrottleDelay:       delay,
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Step lifecycle hooks ────────────────────────────

// OnStepCompleted implements ext.StepCompleted.
func (m *MetricsExtension) OnStepCompleted(ctx context.Context, _ *slip.Slip, kind step.Kind, _ int64, _ time.Duration) error {
	m.StepCompleted.Add(ctx, 1, kindAttr(kind))
	return nil
}

// OnPipelineCompleted implements ext.PipelineCompleted.
func (m *MetricsExtension) OnPipelineCompleted(ctx context.Context, _ *slip.Slip) error {
	m.PipelineCompleted.Add(ctx, 1)
	return nil
}

// OnStepSkipped implements ext.StepSkipped.
func (m *MetricsExtension) OnStepSkipped(ctx context.Context, _ string, kind step.Kind, _ error) error {
	m.StepSkipped.Add(ctx, 1, kindAttr(kind))
	return nil
}

// OnWriteConflict implements ext.WriteConflict.
func (m *MetricsExtension) OnWriteConflict(ctx context.Context, _ string, kind step.Kind) error {
	m.WriteConflict.Add(ctx, 1, kindAttr(kind))
	return nil
}

// OnNotificationDropped implements ext.NotificationDropped.
func (m *MetricsExtension) OnNotificationDropped(ctx context.Context, kind step.Kind, _ feed.Notification) error {
	m.NotificationDropped.Add(ctx, 1, kindAttr(kind))
	return nil
}

// ── Liveness hooks ──────────────────────────────────

// OnSlipShaken implements ext.SlipShaken.
func (m *MetricsExtension) OnSlipShaken(ctx context.Context, _ *slip.Slip) error {
	m.SlipShaken.Add(ctx, 1)
	return nil
}

// OnThrottleChanged implements ext.ThrottleChanged.
func (m *MetricsExtension) OnThrottleChanged(ctx context.Context, _, current time.Duration) error {
	m.ThrottleChanged.Add(ctx, 1)
	m.ThrottleDelay.Record(ctx, current.Milliseconds())
	return nil
}

func kindAttr(kind step.Kind) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("step", kind.String()))
}
