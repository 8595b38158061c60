package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	audithook "github.com/xraph/choreo/audit_hook"
	"github.com/xraph/choreo/control"
	"github.com/xraph/choreo/engine"
	"github.com/xraph/choreo/producer"
	"github.com/xraph/choreo/step"
	"github.com/xraph/choreo/throttle"
)

type workerOptions struct {
	*rootOptions
	NoControl bool
	Seed      []int64
}

func newWorkerCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &workerOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "worker [square|cube|quad]",
		Short: "Run a step worker",
		Long: `Run the worker for one step kind, together with the stuck-slip reaper
and the throttle controller.

Control input is read from stdin: the first empty line toggles the shared
throttle between 0 and toggle_ms, a second empty line or end of input shuts
the worker down. SIGINT and SIGTERM also shut it down.

Example:
  choreo worker cube --backend redis
  choreo worker square --seed 3 --seed 4`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd, opts, args)
		},
	}

	cmd.Flags().BoolVar(&opts.NoControl, "no-control", false, "ignore stdin and run until signalled")
	cmd.Flags().Int64SliceVar(&opts.Seed, "seed", nil, "submit a task with this operand on startup (repeatable)")

	return cmd
}

func runWorker(cmd *cobra.Command, opts *workerOptions, args []string) error {
	logger := opts.logger

	kind := step.Square
	if len(args) == 1 {
		k, err := step.Parse(args[0])
		if err != nil {
			logger.Warn("unrecognized step kind, defaulting to square", "kind", args[0])
		} else {
			kind = k
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, closeBackend, err := openBackend(ctx, opts.cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackend() //nolint:errcheck // best-effort on exit

	engOpts, err := engine.ConfigOptions(opts.cfg)
	if err != nil {
		return err
	}
	engOpts = append(engOpts, engine.WithKinds(kind), engine.WithLogger(logger))

	switch opts.cfg.Audit {
	case "":
	case "log":
		engOpts = append(engOpts, engine.WithExtension(audithook.New(audithook.LogRecorder(logger), audithook.WithLogger(logger))))
	case "store":
		engOpts = append(engOpts, engine.WithExtension(audithook.New(audithook.StoreRecorder(backend), audithook.WithLogger(logger))))
	default:
		return fmt.Errorf("unknown audit mode %q: must be one of log, store", opts.cfg.Audit)
	}

	eng, err := engine.Build(backend, engOpts...)
	if err != nil {
		return err
	}

	for _, operand := range opts.Seed {
		t, sl, err := producer.Submit(ctx, backend, operand, producer.DefaultPlan())
		if err != nil {
			return err
		}
		logger.Info("task submitted", "task_id", t.ID, "slip_id", sl.ID, "operand", operand)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx) })
	if !opts.NoControl {
		g.Go(func() error {
			defer cancel()
			return control.Run(gctx, cmd.InOrStdin(), func(ctx context.Context) (int64, error) {
				return throttle.Toggle(ctx, backend, eng.Throttle(), opts.cfg.ToggleMs)
			}, logger)
		})
	}
	return g.Wait()
}
