package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for choreo tracing.
const tracerName = "github.com/xraph/choreo"

// Tracing returns middleware that wraps each invocation in an OpenTelemetry
// span. If no TracerProvider is configured globally, the default noop tracer
// is used and this middleware becomes a pass-through.
//
// Span attributes: choreo.step, choreo.slip.id, choreo.slip.revision, and
// choreo.step.outcome once the worker has reacted. On error, the span
// status is set to codes.Error with the error message.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, inv *Invocation, next Handler) error {
		ctx, span := tracer.Start(ctx, "choreo.step.react",
			trace.WithAttributes(
				attribute.String("choreo.step", inv.Kind.String()),
				attribute.String("choreo.slip.id", inv.SlipID),
				attribute.Int64("choreo.slip.revision", inv.Revision),
			),
			trace.WithSpanKind(trace.SpanKindConsumer),
		)
		defer span.End()

		err := next(ctx)
		if inv.Outcome != "" {
			span.SetAttributes(attribute.String("choreo.step.outcome", inv.Outcome))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
