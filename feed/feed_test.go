package feed_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/choreo/feed"
)

func note(id string) feed.Notification {
	return feed.Notification{ID: id, Kind: feed.Written, At: time.Now()}
}

func TestFilterMatch(t *testing.T) {
	tests := []struct {
		name   string
		filter feed.Filter
		docID  string
		want   bool
	}{
		{"exact hit", feed.ForDocument("admin/config"), "admin/config", true},
		{"exact miss", feed.ForDocument("admin/config"), "admin/config2", false},
		{"prefix hit", feed.ForPrefix("routing/"), "routing/tasks/1", true},
		{"prefix miss", feed.ForPrefix("routing/"), "tasks/1", false},
		{"empty prefix matches all", feed.ForPrefix(""), "anything", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Match(tt.docID); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.docID, got, tt.want)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	if feed.ParseKind("written") != feed.Written {
		t.Error("written")
	}
	if feed.ParseKind("deleted") != feed.Deleted {
		t.Error("deleted")
	}
	if feed.ParseKind("patched") != feed.Other {
		t.Error("unknown kinds must map to other")
	}
}

func TestSubscriptionDropsWhenFull(t *testing.T) {
	sub := feed.NewSubscription(feed.ForPrefix("routing/"), feed.WithBufferSize(2))

	for i := range 3 {
		ok := sub.Deliver(note("routing/x"))
		if want := i < 2; ok != want {
			t.Fatalf("delivery %d = %v, want %v", i, ok, want)
		}
	}
	if sub.Delivered() != 2 || sub.Dropped() != 1 {
		t.Fatalf("delivered=%d dropped=%d", sub.Delivered(), sub.Dropped())
	}
}

func TestSubscriptionIgnoresNonMatching(t *testing.T) {
	sub := feed.NewSubscription(feed.ForDocument("admin/config"))
	if sub.Deliver(note("routing/x")) {
		t.Fatal("delivered non-matching notification")
	}
	if sub.Dropped() != 0 {
		t.Fatal("filter mismatch counted as drop")
	}
}

func TestSubscriptionCloseRunsReleaseOnce(t *testing.T) {
	sub := feed.NewSubscription(feed.ForPrefix(""))
	calls := 0
	sub.OnRelease(func() { calls++ })

	if err := sub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if calls != 1 {
		t.Fatalf("release called %d times", calls)
	}
	if !errors.Is(sub.Err(), feed.ErrClosed) {
		t.Fatalf("Err = %v, want ErrClosed", sub.Err())
	}
	if _, open := <-sub.C(); open {
		t.Fatal("channel still open")
	}
	if sub.Deliver(note("x")) {
		t.Fatal("delivered after close")
	}
}

func TestSubscriptionEndKeepsFirstError(t *testing.T) {
	sub := feed.NewSubscription(feed.ForPrefix(""))
	boom := errors.New("connection reset")
	sub.End(boom)
	sub.End(errors.New("later"))
	if !errors.Is(sub.Err(), boom) {
		t.Fatalf("Err = %v", sub.Err())
	}
	if !sub.Done() {
		t.Fatal("Done = false after End")
	}
}

func TestSubscriptionStateHandler(t *testing.T) {
	var got []feed.State
	sub := feed.NewSubscription(feed.ForPrefix(""),
		feed.WithStateHandler(func(s feed.State) { got = append(got, s) }),
	)

	sub.SetState(feed.Connected)
	sub.SetState(feed.Connected)
	sub.SetState(feed.Disconnected)

	if len(got) != 2 || got[0] != feed.Connected || got[1] != feed.Disconnected {
		t.Fatalf("state transitions = %v", got)
	}
	if sub.State() != feed.Disconnected {
		t.Fatalf("State = %v", sub.State())
	}
}

func TestSubscriptionErrorHandler(t *testing.T) {
	var got error
	sub := feed.NewSubscription(feed.ForPrefix(""),
		feed.WithErrorHandler(func(err error) { got = err }),
	)
	boom := errors.New("boom")
	sub.Fail(boom)
	if !errors.Is(got, boom) {
		t.Fatalf("handler got %v", got)
	}
	if sub.Done() {
		t.Fatal("Fail must not end the subscription")
	}
}

func TestHubPublish(t *testing.T) {
	h := feed.NewHub()
	slips := feed.NewSubscription(feed.ForPrefix("routing/"))
	cfg := feed.NewSubscription(feed.ForDocument("admin/config"))
	h.Add(slips)
	h.Add(cfg)

	if n := h.Publish(note("routing/tasks/1")); n != 1 {
		t.Fatalf("routing delivered to %d", n)
	}
	if n := h.Publish(note("admin/config")); n != 1 {
		t.Fatalf("config delivered to %d", n)
	}
	if n := h.Publish(note("tasks/1")); n != 0 {
		t.Fatalf("task delivered to %d", n)
	}

	got := <-slips.C()
	if got.ID != "routing/tasks/1" {
		t.Errorf("slip sub got %q", got.ID)
	}

	_ = slips.Close()
	if h.Len() != 1 {
		t.Fatalf("closed subscription still registered, len=%d", h.Len())
	}

	stats := h.Stats()
	if stats.Published != 2 || stats.Subscriptions != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestHubEndAll(t *testing.T) {
	h := feed.NewHub()
	a := feed.NewSubscription(feed.ForPrefix(""))
	b := feed.NewSubscription(feed.ForPrefix(""))
	h.Add(a)
	h.Add(b)

	boom := errors.New("server gone")
	h.EndAll(boom)

	for _, s := range []*feed.Subscription{a, b} {
		if !errors.Is(s.Err(), boom) {
			t.Errorf("%s Err = %v", s.ID(), s.Err())
		}
	}
	if h.Len() != 0 {
		t.Fatalf("len = %d", h.Len())
	}
}

func TestDeliverConcurrentWithEnd(t *testing.T) {
	sub := feed.NewSubscription(feed.ForPrefix(""), feed.WithBufferSize(1024))
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				sub.Deliver(note("x"))
			}
		}()
	}
	sub.End(nil)
	wg.Wait()
}
