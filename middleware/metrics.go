package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for choreo metrics.
const meterName = "github.com/xraph/choreo"

// Metrics returns middleware that records per-invocation metrics using
// the global OTel MeterProvider. If no MeterProvider is configured, noop
// instruments are used and this middleware becomes a pass-through.
//
// Instruments:
//   - choreo.step.duration (Float64Histogram): handling time in seconds,
//     with attributes: step, status ("ok" or "error")
//   - choreo.step.invocations (Int64Counter): total invocations,
//     with attributes: step, status, outcome ("unknown" if the worker
//     never reacted)
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// On error the API returns noop instruments.
	duration, _ := meter.Float64Histogram(
		"choreo.step.duration",
		metric.WithDescription("Duration of step invocations in seconds"),
		metric.WithUnit("s"),
	)
	invocations, _ := meter.Int64Counter(
		"choreo.step.invocations",
		metric.WithDescription("Total number of step invocations"),
		metric.WithUnit("{invocation}"),
	)

	return func(ctx context.Context, inv *Invocation, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}

		outcome := inv.Outcome
		if outcome == "" {
			outcome = "unknown"
		}

		stepAttr := attribute.String("step", inv.Kind.String())
		statusAttr := attribute.String("status", status)
		duration.Record(ctx, elapsed, metric.WithAttributes(stepAttr, statusAttr))
		invocations.Add(ctx, 1, metric.WithAttributes(stepAttr, statusAttr, attribute.String("outcome", outcome)))

		return err
	}
}
