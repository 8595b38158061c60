package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/choreo/feed"
	"github.com/xraph/choreo/store"
)

// ──────────────────────────────────────────────────
// Lifecycle tests
// ──────────────────────────────────────────────────

func TestLifecycle(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Ping(ctx); !errors.Is(err, store.ErrClosed) {
		t.Fatalf("Ping after close = %v", err)
	}
	if _, err := s.Get(ctx, "x"); !errors.Is(err, store.ErrClosed) {
		t.Fatalf("Get after close = %v", err)
	}
}

// ──────────────────────────────────────────────────
// Store tests
// ──────────────────────────────────────────────────

func doc(id, body string, rev int64) store.Document {
	return store.Document{ID: id, Body: []byte(body), Revision: rev}
}

func TestPutGet(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	if _, err := s.Get(ctx, "tasks/1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	first, err := s.Put(ctx, doc("tasks/1", `{"a":1}`, 0))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if first.Revision != 1 {
		t.Fatalf("revision = %d, want 1", first.Revision)
	}

	second, err := s.Put(ctx, doc("tasks/1", `{"a":2}`, 0))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if second.Revision != 2 {
		t.Fatalf("revision = %d, want 2", second.Revision)
	}

	got, err := s.Get(ctx, "tasks/1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got.Body) != `{"a":2}` || got.Revision != 2 {
		t.Fatalf("got %s@%d", got.Body, got.Revision)
	}

	// Returned documents are copies.
	got.Body[0] = 'X'
	again, _ := s.Get(ctx, "tasks/1")
	if string(again.Body) != `{"a":2}` {
		t.Fatal("Get returned an aliased body")
	}
}

func TestPutIf(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	tests := []struct {
		name    string
		rev     int64
		wantErr error
		wantRev int64
	}{
		{"create when absent", 0, nil, 1},
		{"create again conflicts", 0, store.ErrConflict, 0},
		{"update at current revision", 1, nil, 2},
		{"stale revision conflicts", 1, store.ErrConflict, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.PutIf(ctx, doc("routing/1", `{}`, tt.rev))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got error %v, want %v", err, tt.wantErr)
			}
			if err == nil && got.Revision != tt.wantRev {
				t.Fatalf("revision = %d, want %d", got.Revision, tt.wantRev)
			}
		})
	}
}

func TestCommitAndScan(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	err := s.Commit(ctx,
		doc("tasks/1", `{}`, 0),
		doc("routing/tasks/2", `{}`, 0),
		doc("routing/tasks/1", `{}`, 0),
		doc("admin/config", `{}`, 0),
	)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	var ids []string
	for d, err := range s.Scan(ctx, "routing/") {
		if err != nil {
			t.Fatalf("Scan: %v", err)
		}
		ids = append(ids, d.ID)
	}
	if len(ids) != 2 || ids[0] != "routing/tasks/1" || ids[1] != "routing/tasks/2" {
		t.Fatalf("scan = %v", ids)
	}

	count := 0
	for range s.Scan(ctx, "") {
		count++
	}
	if count != 4 {
		t.Fatalf("full scan = %d docs", count)
	}
}

func TestScanStopsOnCancel(t *testing.T) {
	t.Parallel()
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	_ = s.Commit(ctx, doc("routing/a", `{}`, 0), doc("routing/b", `{}`, 0))
	cancel()

	var gotErr error
	for _, err := range s.Scan(ctx, "routing/") {
		if err != nil {
			gotErr = err
			break
		}
	}
	if !errors.Is(gotErr, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", gotErr)
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	if err := s.Delete(ctx, "tasks/1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_, _ = s.Put(ctx, doc("tasks/1", `{}`, 0))
	if err := s.Delete(ctx, "tasks/1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "tasks/1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// Feed tests
// ──────────────────────────────────────────────────

func recv(t *testing.T, sub *feed.Subscription) feed.Notification {
	t.Helper()
	select {
	case n, ok := <-sub.C():
		if !ok {
			t.Fatal("subscription closed")
		}
		return n
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
	}
	return feed.Notification{}
}

func TestFeedWrittenAndDeleted(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	sub, err := s.Subscribe(ctx, feed.ForPrefix("routing/"))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if sub.State() != feed.Connected {
		t.Fatalf("state = %v", sub.State())
	}

	_, _ = s.Put(ctx, doc("tasks/1", `{}`, 0))
	_, _ = s.Put(ctx, doc("routing/tasks/1", `{}`, 0))
	_ = s.Delete(ctx, "routing/tasks/1")

	n := recv(t, sub)
	if n.ID != "routing/tasks/1" || n.Kind != feed.Written || n.Revision != 1 {
		t.Fatalf("first = %+v", n)
	}
	n = recv(t, sub)
	if n.Kind != feed.Deleted {
		t.Fatalf("second = %+v", n)
	}
}

func TestFeedExactDocument(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	sub, _ := s.Subscribe(ctx, feed.ForDocument("admin/config"))
	_, _ = s.Put(ctx, doc("admin/configuration", `{}`, 0))
	_, _ = s.Put(ctx, doc("admin/config", `{}`, 0))

	if n := recv(t, sub); n.ID != "admin/config" {
		t.Fatalf("got %q", n.ID)
	}
}

func TestFeedLosesNotificationsWhileDisconnected(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	var states []feed.State
	sub, _ := s.Subscribe(ctx, feed.ForPrefix(""),
		feed.WithStateHandler(func(st feed.State) { states = append(states, st) }),
	)

	s.Disconnect()
	_, _ = s.Put(ctx, doc("routing/lost", `{}`, 0))
	s.Reconnect()
	_, _ = s.Put(ctx, doc("routing/seen", `{}`, 0))

	if n := recv(t, sub); n.ID != "routing/seen" {
		t.Fatalf("got %q, lost notification was replayed", n.ID)
	}
	// Subscribe reports the initial connect, then the outage and recovery.
	if len(states) != 3 || states[0] != feed.Connected || states[1] != feed.Disconnected || states[2] != feed.Connected {
		t.Fatalf("states = %v", states)
	}

	// The write itself was not lost.
	if _, err := s.Get(ctx, "routing/lost"); err != nil {
		t.Fatalf("Get: %v", err)
	}
}

func TestEndFeed(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	sub, _ := s.Subscribe(ctx, feed.ForPrefix(""))
	boom := errors.New("stream reset")
	s.EndFeed(boom)

	if _, open := <-sub.C(); open {
		t.Fatal("channel still open")
	}
	if !errors.Is(sub.Err(), boom) {
		t.Fatalf("Err = %v", sub.Err())
	}

	// Store keeps working; a fresh subscription receives new writes.
	sub2, _ := s.Subscribe(ctx, feed.ForPrefix(""))
	_, _ = s.Put(ctx, doc("routing/x", `{}`, 0))
	if n := recv(t, sub2); n.ID != "routing/x" {
		t.Fatalf("got %q", n.ID)
	}
}
