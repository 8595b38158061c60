// Package producer creates pipeline work and inspects its progress. A task
// and its routing slip are written in a single commit, so the slip's first
// "written" notification always finds the task it routes.
package producer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/choreo"
	"github.com/xraph/choreo/id"
	"github.com/xraph/choreo/slip"
	"github.com/xraph/choreo/step"
	"github.com/xraph/choreo/store"
	"github.com/xraph/choreo/task"
)

// DefaultPlan returns the canonical plan: square, cube, quad.
func DefaultPlan() []step.Kind { return step.Kinds() }

// Submit creates a task whose operands all equal operand and routes it
// through plan. A nil plan means DefaultPlan.
func Submit(ctx context.Context, w store.Writer, operand int64, plan []step.Kind) (*task.Task, *slip.Slip, error) {
	t := task.New(id.NewTaskID(), operand)
	sl, err := SubmitTask(ctx, w, t, plan)
	if err != nil {
		return nil, nil, err
	}
	return t, sl, nil
}

// SubmitTask writes t together with a fresh routing slip for plan.
func SubmitTask(ctx context.Context, w store.Writer, t *task.Task, plan []step.Kind) (*slip.Slip, error) {
	if plan == nil {
		plan = DefaultPlan()
	}
	sl, err := slip.New(t.ID, plan, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	taskDoc, err := store.Encode(t.ID, t, 0)
	if err != nil {
		return nil, err
	}
	slipDoc, err := store.Encode(sl.ID, sl, 0)
	if err != nil {
		return nil, err
	}
	if err := w.Commit(ctx, taskDoc, slipDoc); err != nil {
		return nil, fmt.Errorf("producer: commit %s: %w", t.ID, err)
	}
	return sl, nil
}

// Status loads the routing slip of a task. taskID may be given with or
// without its collection prefix.
func Status(ctx context.Context, r store.Reader, taskID string) (*slip.Slip, int64, error) {
	if !strings.HasPrefix(taskID, string(id.PrefixTask)) {
		taskID = string(id.PrefixTask) + taskID
	}
	sl, rev, err := store.Load[slip.Slip](ctx, r, id.SlipID(taskID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, 0, fmt.Errorf("%w: %s", choreo.ErrSlipNotFound, taskID)
	}
	if err != nil {
		return nil, 0, err
	}
	return &sl, rev, nil
}
