package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xraph/choreo/producer"
	"github.com/xraph/choreo/slip"
	"github.com/xraph/choreo/step"
)

type statusOptions struct {
	*rootOptions
	JSON bool
}

func newStatusCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &statusOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status <taskId>",
		Short: "Show the routing slip of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			backend, closeBackend, err := openBackend(ctx, opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer closeBackend() //nolint:errcheck // best-effort on exit

			sl, rev, err := producer.Status(ctx, backend, args[0])
			if err != nil {
				return err
			}
			if opts.JSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(sl)
			}
			printSlip(cmd.OutOrStdout(), sl, rev)
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print the slip document as JSON")

	return cmd
}

func printSlip(w io.Writer, sl *slip.Slip, rev int64) {
	state := "pending"
	if sl.Terminal() {
		state = "complete"
	}
	fmt.Fprintf(w, "slip:      %s (revision %d)\n", sl.ID, rev)
	fmt.Fprintf(w, "task:      %s\n", sl.TaskID)
	fmt.Fprintf(w, "state:     %s\n", state)
	fmt.Fprintf(w, "completed: %s\n", strings.Join(step.Names(sl.Completed), ", "))
	fmt.Fprintf(w, "pending:   %s\n", strings.Join(step.Names(sl.Steps), ", "))
	for _, k := range sl.Completed {
		fmt.Fprintf(w, "  %-6s = %d\n", k, sl.Results[k.String()])
	}
	fmt.Fprintf(w, "updated:   %s\n", sl.Updated.Format("2006-01-02T15:04:05.000Z07:00"))
}
