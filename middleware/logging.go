package middleware

import (
	"context"
	"log/slog"
	"time"
)

// Logging returns middleware that logs each invocation. Every slip
// notification reaches every step kind, so successful invocations are
// logged at debug level.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, inv *Invocation, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("step failed",
				slog.String("step", inv.Kind.String()),
				slog.String("slip_id", inv.SlipID),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Debug("step handled",
				slog.String("step", inv.Kind.String()),
				slog.String("slip_id", inv.SlipID),
				slog.String("outcome", inv.Outcome),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
