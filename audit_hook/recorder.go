package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/choreo/id"
	"github.com/xraph/choreo/store"
)

// LogRecorder writes each audit event as one structured log line.
func LogRecorder(logger *slog.Logger) Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return RecorderFunc(func(ctx context.Context, evt *AuditEvent) error {
		level := slog.LevelInfo
		if evt.Severity == SeverityWarning {
			level = slog.LevelWarn
		}
		attrs := []slog.Attr{
			slog.String("action", evt.Action),
			slog.String("resource", evt.Resource),
			slog.String("resource_id", evt.ResourceID),
			slog.String("outcome", evt.Outcome),
			slog.Any("metadata", evt.Metadata),
		}
		if evt.Reason != "" {
			attrs = append(attrs, slog.String("reason", evt.Reason))
		}
		logger.LogAttrs(ctx, level, "audit", attrs...)
		return nil
	})
}

// StoreRecorder persists each audit event as its own document under the
// "audit/" prefix. Identifiers are time-ordered, so a prefix scan returns
// the trail in order.
func StoreRecorder(w store.Writer) Recorder {
	return RecorderFunc(func(ctx context.Context, evt *AuditEvent) error {
		if _, err := store.Save(ctx, w, id.NewAuditID(), evt); err != nil {
			return fmt.Errorf("audit_hook: persist %s: %w", evt.Action, err)
		}
		return nil
	})
}
