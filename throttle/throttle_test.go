package throttle_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/choreo"
	"github.com/xraph/choreo/feed"
	"github.com/xraph/choreo/id"
	"github.com/xraph/choreo/store/memory"
	"github.com/xraph/choreo/throttle"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestCell(t *testing.T) {
	t.Parallel()
	var c throttle.Cell
	if c.Load() != 0 || c.Delay() != 0 {
		t.Fatalf("zero cell = %d", c.Load())
	}
	if prev := c.Store(250); prev != 0 {
		t.Fatalf("prev = %d, want 0", prev)
	}
	if c.Delay() != 250*time.Millisecond {
		t.Fatalf("delay = %v", c.Delay())
	}
	if prev := c.Store(-5); prev != 250 {
		t.Fatalf("prev = %d, want 250", prev)
	}
	if c.Load() != 0 {
		t.Fatalf("negative not clamped: %d", c.Load())
	}
}

func TestCellWait(t *testing.T) {
	t.Parallel()

	t.Run("zero delay returns immediately", func(t *testing.T) {
		c := throttle.NewCell(0)
		if err := c.Wait(context.Background()); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	})

	t.Run("sleeps for the delay", func(t *testing.T) {
		c := throttle.NewCell(20)
		start := time.Now()
		if err := c.Wait(context.Background()); err != nil {
			t.Fatalf("Wait: %v", err)
		}
		if time.Since(start) < 20*time.Millisecond {
			t.Fatal("returned before the delay elapsed")
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		c := throttle.NewCell(int64(time.Hour / time.Millisecond))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := c.Wait(ctx); !errors.Is(err, context.Canceled) {
			t.Fatalf("Wait = %v, want context.Canceled", err)
		}
	})
}

func TestPublishLoad(t *testing.T) {
	t.Parallel()
	s := memory.New()
	ctx := context.Background()

	ms, err := throttle.Load(ctx, s)
	if err != nil || ms != 0 {
		t.Fatalf("Load on empty store = %d, %v", ms, err)
	}
	if err := throttle.Publish(ctx, s, 1000); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := throttle.Publish(ctx, s, -1); err == nil {
		t.Fatal("expected error for negative delay")
	}
	ms, err = throttle.Load(ctx, s)
	if err != nil || ms != 1000 {
		t.Fatalf("Load = %d, %v", ms, err)
	}
	doc, err := s.Get(ctx, id.ConfigID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Revision != 1 {
		t.Fatalf("revision = %d, want 1", doc.Revision)
	}
}

func TestToggle(t *testing.T) {
	t.Parallel()
	s := memory.New()
	ctx := context.Background()
	cell := throttle.NewCell(0)

	got, err := throttle.Toggle(ctx, s, cell, 0)
	if err != nil || got != throttle.DefaultToggleMs {
		t.Fatalf("Toggle from 0 = %d, %v", got, err)
	}
	cell.Store(got)
	got, err = throttle.Toggle(ctx, s, cell, 500)
	if err != nil || got != 0 {
		t.Fatalf("Toggle from on = %d, %v", got, err)
	}
	if ms, _ := throttle.Load(ctx, s); ms != 0 {
		t.Fatalf("published = %d, want 0", ms)
	}
}

type recordingEmitter struct {
	mu      sync.Mutex
	changes [][2]time.Duration
}

func (r *recordingEmitter) EmitThrottleChanged(_ context.Context, prev, cur time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, [2]time.Duration{prev, cur})
}

func (r *recordingEmitter) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changes)
}

func TestController_ObservesWrite(t *testing.T) {
	t.Parallel()
	s := memory.New()
	cell := throttle.NewCell(0)
	em := &recordingEmitter{}
	c := throttle.NewController(s, s, cell, throttle.WithEmitter(em))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	if err := throttle.Publish(context.Background(), s, 1000); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return cell.Load() == 1000 })
	waitFor(t, time.Second, func() bool { return em.len() == 1 })

	if em.changes[0] != [2]time.Duration{0, time.Second} {
		t.Fatalf("change = %v", em.changes[0])
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestController_InitialLoad(t *testing.T) {
	t.Parallel()
	s := memory.New()
	if err := throttle.Publish(context.Background(), s, 300); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	cell := throttle.NewCell(0)
	c := throttle.NewController(s, s, cell)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool { return cell.Load() == 300 })
}

func TestController_HandleIgnoresOtherDocuments(t *testing.T) {
	t.Parallel()
	s := memory.New()
	if err := throttle.Publish(context.Background(), s, 700); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	cell := throttle.NewCell(0)
	c := throttle.NewController(s, s, cell)

	_ = c.Handle(context.Background(), feed.Notification{ID: "routing/x", Kind: feed.Written})
	_ = c.Handle(context.Background(), feed.Notification{ID: id.ConfigID, Kind: feed.Deleted})
	if cell.Load() != 0 {
		t.Fatalf("cell = %d, want untouched", cell.Load())
	}
	_ = c.Handle(context.Background(), feed.Notification{ID: id.ConfigID, Kind: feed.Written})
	if cell.Load() != 700 {
		t.Fatalf("cell = %d, want 700", cell.Load())
	}
}

func TestController_FeedEnd(t *testing.T) {
	t.Parallel()
	s := memory.New()
	c := throttle.NewController(s, s, throttle.NewCell(0))

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	waitFor(t, 2*time.Second, func() bool { return s.FeedStats().Subscriptions == 1 })
	s.EndFeed(errors.New("connection reset"))

	select {
	case err := <-done:
		if !errors.Is(err, choreo.ErrFeedEnded) {
			t.Fatalf("Run = %v, want ErrFeedEnded", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the feed ended")
	}
}
