// Package middleware provides composable middleware for step invocations.
//
// A [Middleware] is a function that wraps the handling of one change
// notification by one step worker. Middleware are composed into a chain
// using [Chain] and applied before each invocation. They are applied
// right-to-left: the first middleware in the slice is the outermost wrapper.
//
//	// logging → recover → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging]: logs step kind, slip id, duration and outcome
//   - [Recover]: catches panics and converts them to errors
//   - [Timeout]: cancels the invocation context after a configured duration
//   - [Tracing]: wraps the invocation in an OpenTelemetry span
//   - [Metrics]: records per-step duration and outcome counters
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, inv *middleware.Invocation, next middleware.Handler) error {
//	        // pre-processing
//	        err := next(ctx)
//	        // post-processing
//	        return err
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting.
package middleware
