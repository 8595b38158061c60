package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/choreo/feed"
	"github.com/xraph/choreo/store"
)

// Subscribe registers a subscription for documents matching f. The first
// subscription starts the shared LISTEN loop. Notifications sent while
// the listener is reconnecting are lost; subscriptions observe the outage
// through their state handlers.
func (s *Store) Subscribe(_ context.Context, f feed.Filter, opts ...feed.Option) (*feed.Subscription, error) {
	if s.closed.Load() {
		return nil, store.ErrClosed
	}

	sub := feed.NewSubscription(f, opts...)
	s.hub.Add(sub)
	if s.closed.Load() {
		sub.End(store.ErrClosed)
		return nil, store.ErrClosed
	}
	if s.connected.Load() {
		sub.SetState(feed.Connected)
	}

	s.listenOnce.Do(func() { go s.listen() })
	return sub, nil
}

// listen keeps one LISTEN connection open until the store closes.
func (s *Store) listen() {
	defer close(s.listenDone)

	attempt := 0
	for {
		err := s.receive(s.ctx)
		if s.connected.Swap(false) {
			s.hub.SetState(feed.Disconnected)
			attempt = 0
		}
		if s.ctx.Err() != nil {
			return
		}

		attempt++
		delay := s.retry.Delay(attempt)
		s.logger.Warn("choreo/postgres: listener lost",
			"error", err,
			"attempt", attempt,
			"retry_in", delay,
		)
		s.hub.Fail(err)

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (s *Store) receive(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("choreo/postgres: acquire listener: %w", err)
	}
	// The session carries LISTEN state, so it never returns to the pool.
	raw := conn.Hijack()
	defer raw.Close(context.Background()) //nolint:errcheck // best-effort teardown

	if _, err := raw.Exec(ctx, "LISTEN "+pgx.Identifier{s.channel}.Sanitize()); err != nil {
		return fmt.Errorf("choreo/postgres: listen: %w", err)
	}
	s.connected.Store(true)
	s.hub.SetState(feed.Connected)

	for {
		msg, err := raw.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("choreo/postgres: wait for notification: %w", err)
		}

		var n feed.Notification
		if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
			s.logger.Warn("choreo/postgres: undecodable notification",
				"channel", msg.Channel,
				"error", err,
			)
			continue
		}
		s.hub.Publish(n)
	}
}
