package engine

import (
	"github.com/xraph/choreo"
	"github.com/xraph/choreo/backoff"
	"github.com/xraph/choreo/guard"
	"github.com/xraph/choreo/reaper"
)

// ConfigOptions translates a process configuration into engine options.
func ConfigOptions(cfg choreo.Config) ([]Option, error) {
	g, err := guard.Parse(cfg.Guard)
	if err != nil {
		return nil, err
	}
	opts := []Option{
		WithGuard(g),
		WithConcurrency(cfg.Concurrency),
		WithQueueSize(cfg.QueueSize),
		WithStepTimeout(cfg.StepTimeout),
	}
	if cfg.ShutdownTimeout > 0 {
		opts = append(opts, WithShutdownTimeout(cfg.ShutdownTimeout))
	}

	var ropts []reaper.Option
	if cfg.ReapSchedule != "" {
		// Parse here so a bad expression fails before Build.
		if _, err := reaper.ParseSchedule(cfg.ReapSchedule); err != nil {
			return nil, err
		}
		ropts = append(ropts, reaper.WithSchedule(cfg.ReapSchedule))
	}
	ropts = append(ropts,
		reaper.WithFreshnessWindow(cfg.FreshnessWindow),
		reaper.WithNudgeRate(cfg.NudgeRate),
	)
	opts = append(opts, WithReaper(ropts...))

	if cfg.Resubscribe {
		opts = append(opts, WithResubscribe(backoff.DefaultPolicy()))
	}
	return opts, nil
}
