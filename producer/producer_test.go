package producer_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/xraph/choreo"
	"github.com/xraph/choreo/feed"
	"github.com/xraph/choreo/id"
	"github.com/xraph/choreo/producer"
	"github.com/xraph/choreo/step"
	"github.com/xraph/choreo/store"
	"github.com/xraph/choreo/store/memory"
	"github.com/xraph/choreo/task"
)

func TestSubmit(t *testing.T) {
	t.Parallel()
	s := memory.New()
	ctx := context.Background()

	sub, err := s.Subscribe(ctx, feed.ForPrefix(string(id.PrefixRouting)))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	tk, sl, err := producer.Submit(ctx, s, 7, nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !strings.HasPrefix(tk.ID, "tasks/") || sl.ID != id.SlipID(tk.ID) {
		t.Fatalf("ids: task=%q slip=%q", tk.ID, sl.ID)
	}
	if len(sl.Steps) != 3 || sl.Steps[0] != step.Square || sl.Steps[2] != step.Quad {
		t.Fatalf("plan = %v", sl.Steps)
	}

	stored, _, err := store.Load[task.Task](ctx, s, tk.ID)
	if err != nil {
		t.Fatalf("Load task: %v", err)
	}
	if stored.OperandSquare != 7 || stored.OperandCube != 7 || stored.OperandQuad != 7 {
		t.Fatalf("task = %+v", stored)
	}

	n := <-sub.C()
	if n.ID != sl.ID || n.Kind != feed.Written {
		t.Fatalf("notification = %+v", n)
	}
}

func TestSubmit_InvalidPlan(t *testing.T) {
	t.Parallel()
	s := memory.New()
	_, _, err := producer.Submit(context.Background(), s, 1, []step.Kind{step.Cube, step.Cube})
	if !errors.Is(err, choreo.ErrInvalidPlan) {
		t.Fatalf("expected ErrInvalidPlan, got %v", err)
	}
	if s.Writes() != 0 {
		t.Fatalf("writes = %d, want nothing committed", s.Writes())
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()
	s := memory.New()
	ctx := context.Background()
	tk, _, err := producer.Submit(ctx, s, 2, []step.Kind{step.Quad})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	for _, ref := range []string{tk.ID, strings.TrimPrefix(tk.ID, "tasks/")} {
		sl, rev, err := producer.Status(ctx, s, ref)
		if err != nil {
			t.Fatalf("Status(%q): %v", ref, err)
		}
		if rev != 1 || sl.TaskID != tk.ID {
			t.Fatalf("Status(%q) = %+v rev %d", ref, sl, rev)
		}
	}

	if _, _, err := producer.Status(ctx, s, "missing"); !errors.Is(err, choreo.ErrSlipNotFound) {
		t.Fatalf("expected ErrSlipNotFound, got %v", err)
	}
}
