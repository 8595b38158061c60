package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/xraph/choreo/producer"
	"github.com/xraph/choreo/step"
)

type submitOptions struct {
	*rootOptions
	Plan []string
}

func newSubmitCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &submitOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "submit <n>",
		Short: "Create a task and its routing slip",
		Long: `Create a task whose operands are all n, together with its routing slip,
in one atomic write.

Example:
  choreo submit 5 --backend redis
  choreo submit 3 --plan square,cube`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			operand, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid operand %q: %w", args[0], err)
			}
			plan, err := step.ParsePlan(opts.Plan)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if opts.cfg.Backend == "" || opts.cfg.Backend == "memory" {
				opts.logger.Warn("memory backend is process-local; no worker will see this task")
			}
			backend, closeBackend, err := openBackend(ctx, opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer closeBackend() //nolint:errcheck // best-effort on exit

			t, sl, err := producer.Submit(ctx, backend, operand, plan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", t.ID, sl.ID)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&opts.Plan, "plan", step.Names(producer.DefaultPlan()), "ordered step kinds")

	return cmd
}
