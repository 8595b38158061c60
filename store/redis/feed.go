package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/choreo/feed"
	"github.com/xraph/choreo/store"
)

// encodeNotification marshals the Pub/Sub payload for a change.
func encodeNotification(docID string, kind feed.Kind, rev int64) string {
	data, _ := json.Marshal(feed.Notification{ //nolint:errchkjson // plain struct
		ID:       docID,
		Kind:     kind,
		Revision: rev,
		At:       time.Now().UTC(),
	})
	return string(data)
}

// Subscribe opens a Pub/Sub subscription for documents matching f.
// Notifications published while the connection is down are lost; the
// subscription reports the outage through its state handler.
func (s *Store) Subscribe(ctx context.Context, f feed.Filter, opts ...feed.Option) (*feed.Subscription, error) {
	if s.closed.Load() {
		return nil, store.ErrClosed
	}

	var ps *goredis.PubSub
	if f.ID != "" {
		ps = s.client.Subscribe(ctx, channel(f.ID))
	} else {
		ps = s.client.PSubscribe(ctx, pattern(f.Prefix))
	}

	sub := feed.NewSubscription(f, opts...)
	s.hub.Add(sub)

	rctx, cancel := context.WithCancel(s.ctx)
	sub.OnRelease(func() {
		s.hub.Remove(sub.ID())
		cancel()
	})

	go s.receive(rctx, sub, ps)
	return sub, nil
}

func (s *Store) receive(ctx context.Context, sub *feed.Subscription, ps *goredis.PubSub) {
	// Receive does not observe cancellation while blocked on the socket;
	// closing the PubSub unblocks it.
	stop := context.AfterFunc(ctx, func() { _ = ps.Close() })
	defer func() {
		if stop() {
			_ = ps.Close()
		}
	}()

	attempt := 0
	for {
		msg, err := ps.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, goredis.ErrClosed) {
				sub.End(endReason(ctx))
				return
			}
			// The next Receive reconnects and resubscribes.
			attempt++
			sub.Fail(err)
			sub.SetState(feed.Disconnected)
			select {
			case <-ctx.Done():
				sub.End(endReason(ctx))
				return
			case <-time.After(s.reconnect.Delay(attempt)):
			}
			continue
		}

		switch m := msg.(type) {
		case *goredis.Subscription:
			attempt = 0
			sub.SetState(feed.Connected)
		case *goredis.Message:
			var n feed.Notification
			if err := json.Unmarshal([]byte(m.Payload), &n); err != nil {
				s.logger.Warn("choreo/redis: undecodable notification",
					"channel", m.Channel,
					"error", err,
				)
				continue
			}
			if !sub.Deliver(n) {
				s.logger.Debug("choreo/redis: notification dropped",
					"subscription", sub.ID(),
					"doc_id", n.ID,
				)
			}
		}
	}
}

// endReason reports store.ErrClosed when the store, rather than the
// consumer, ended the subscription.
func endReason(ctx context.Context) error {
	if cause := context.Cause(ctx); errors.Is(cause, store.ErrClosed) {
		return store.ErrClosed
	}
	return ctx.Err()
}
