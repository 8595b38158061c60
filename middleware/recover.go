package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Recover returns middleware that recovers from panics in the handler chain.
// Panics are converted to errors and logged with a stack trace.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, inv *Invocation, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("step handler panicked",
					slog.String("step", inv.Kind.String()),
					slog.String("slip_id", inv.SlipID),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				retErr = fmt.Errorf("panic in step %s on %s: %v", inv.Kind, inv.SlipID, r)
			}
		}()
		return next(ctx)
	}
}
