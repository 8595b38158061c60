// Package control interprets the line-oriented operator input of a worker
// process: the first empty line toggles the shared throttle, a second empty
// line or end of input requests shutdown. Non-empty lines are ignored.
package control

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ToggleFunc flips the throttle and returns the value written.
type ToggleFunc func(ctx context.Context) (int64, error)

// Run reads r until shutdown is requested, ctx is done, or r is exhausted.
// It returns nil on a requested shutdown or end of input, and the toggle
// error if the throttle write fails.
func Run(ctx context.Context, r io.Reader, toggle ToggleFunc, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	toggled := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				var err error
				select {
				case err = <-readErr:
				default:
				}
				if err != nil {
					logger.Warn("control input failed", "error", err)
				}
				logger.Info("control input closed, shutting down")
				return nil
			}
			if strings.TrimSpace(line) != "" {
				logger.Debug("control input ignored", "line", line)
				continue
			}
			if toggled {
				logger.Info("shutdown requested")
				return nil
			}
			ms, err := toggle(ctx)
			if err != nil {
				return fmt.Errorf("control: toggle throttle: %w", err)
			}
			toggled = true
			logger.Info("throttle toggled", "throttle_ms", ms)
		}
	}
}
