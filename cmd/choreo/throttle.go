package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/xraph/choreo/throttle"
)

func newThrottleCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "throttle <ms>",
		Short: "Set the shared per-step delay",
		Long: `Write the throttle configuration document. Every running worker picks up
the new delay on its next step.

Example:
  choreo throttle 1000 --backend redis
  choreo throttle 0 --backend redis`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ms, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid delay %q: %w", args[0], err)
			}

			ctx := cmd.Context()
			backend, closeBackend, err := openBackend(ctx, opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer closeBackend() //nolint:errcheck // best-effort on exit

			if err := throttle.Publish(ctx, backend, ms); err != nil {
				return err
			}
			opts.logger.Info("throttle published", "throttle_ms", ms)
			return nil
		},
	}
}
