// Package observability provides OpenTelemetry-based metrics for choreo.
// The MetricsExtension implements lifecycle hooks to record system-wide
// counters for completed steps, completed pipelines, write conflicts,
// dropped notifications, skipped notifications, shaken slips and
// throttle changes.
//
// For per-invocation tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
