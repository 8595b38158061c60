//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xraph/choreo/feed"
	"github.com/xraph/choreo/store"
	"github.com/xraph/choreo/store/postgres"
)

// setupTestStore creates a Postgres container and returns a migrated Store.
func setupTestStore(t *testing.T) *postgres.Store {
	t.Helper()

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("choreo_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	s, err := postgres.New(ctx, connStr,
		postgres.WithLogger(slog.Default()),
		postgres.WithListenRetry(50*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if migErr := s.Migrate(ctx); migErr != nil {
		t.Fatalf("migrate: %v", migErr)
	}
	// Migrations are idempotent.
	if migErr := s.Migrate(ctx); migErr != nil {
		t.Fatalf("second migrate: %v", migErr)
	}

	return s
}

func doc(id, body string, rev int64) store.Document {
	return store.Document{ID: id, Body: []byte(body), Revision: rev}
}

func recv(t *testing.T, sub *feed.Subscription) feed.Notification {
	t.Helper()
	select {
	case n, ok := <-sub.C():
		if !ok {
			t.Fatal("subscription closed")
		}
		return n
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
	return feed.Notification{}
}

func waitConnected(t *testing.T, sub *feed.Subscription) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for sub.State() != feed.Connected {
		if time.Now().After(deadline) {
			t.Fatal("subscription never connected")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPostgresStore(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := s.Ping(ctx); err != nil {
			t.Fatalf("Ping: %v", err)
		}
	})

	t.Run("PutGet", func(t *testing.T) {
		if _, err := s.Get(ctx, "tasks/pg-1"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		for want := int64(1); want <= 2; want++ {
			got, err := s.Put(ctx, doc("tasks/pg-1", `{"operand_square": 3}`, 0))
			if err != nil {
				t.Fatalf("Put: %v", err)
			}
			if got.Revision != want {
				t.Fatalf("revision = %d, want %d", got.Revision, want)
			}
		}
		got, err := s.Get(ctx, "tasks/pg-1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Revision != 2 || len(got.Body) == 0 {
			t.Fatalf("got %s@%d", got.Body, got.Revision)
		}
	})

	t.Run("PutIf", func(t *testing.T) {
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
			got, err := s.PutIf(ctx, doc("routing/tasks/pg-2", `{}`, tt.rev))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("%s: got error %v, want %v", tt.name, err, tt.wantErr)
			}
			if err == nil && got.Revision != tt.wantRev {
				t.Fatalf("%s: revision = %d, want %d", tt.name, got.Revision, tt.wantRev)
			}
		}
	})

	t.Run("PutIfConcurrentSingleWinner", func(t *testing.T) {
		if _, err := s.Put(ctx, doc("routing/tasks/pg-3", `{}`, 0)); err != nil {
			t.Fatalf("Put: %v", err)
		}
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for range 6 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.PutIf(ctx, doc("routing/tasks/pg-3", `{"w":1}`, 1))
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				} else if !errors.Is(err, store.ErrConflict) {
					t.Errorf("PutIf: %v", err)
				}
			}()
		}
		wg.Wait()
		if wins != 1 {
			t.Fatalf("wins = %d, want 1", wins)
		}
	})

	t.Run("CommitAndScan", func(t *testing.T) {
		err := s.Commit(ctx,
			doc("scan_x/b", `{}`, 0),
			doc("scan_x/a", `{}`, 0),
			doc("scanXx/c", `{}`, 0),
		)
		if err != nil {
			t.Fatalf("Commit: %v", err)
		}
		var ids []string
		for d, err := range s.Scan(ctx, "scan_x/") {
			if err != nil {
				t.Fatalf("Scan: %v", err)
			}
			ids = append(ids, d.ID)
		}
		// The underscore in the prefix is literal, not a LIKE wildcard.
		if len(ids) != 2 || ids[0] != "scan_x/a" || ids[1] != "scan_x/b" {
			t.Fatalf("scan = %v", ids)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := s.Delete(ctx, "tasks/absent"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		_, _ = s.Put(ctx, doc("tasks/pg-del", `{}`, 0))
		if err := s.Delete(ctx, "tasks/pg-del"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := s.Get(ctx, "tasks/pg-del"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Feed", func(t *testing.T) {
		sub, err := s.Subscribe(ctx, feed.ForPrefix("routing/feed/"))
		if err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
		defer sub.Close()
		waitConnected(t, sub)

		_, _ = s.Put(ctx, doc("tasks/feed/1", `{}`, 0))
		if _, err := s.PutIf(ctx, doc("routing/feed/1", `{}`, 5)); !errors.Is(err, store.ErrConflict) {
			t.Fatalf("expected conflict, got %v", err)
		}
		_, _ = s.Put(ctx, doc("routing/feed/1", `{}`, 0))
		_ = s.Delete(ctx, "routing/feed/1")

		n := recv(t, sub)
		if n.ID != "routing/feed/1" || n.Kind != feed.Written || n.Revision != 1 {
			t.Fatalf("first = %+v", n)
		}
		n = recv(t, sub)
		if n.Kind != feed.Deleted {
			t.Fatalf("second = %+v", n)
		}
	})
}
