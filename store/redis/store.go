// Package redis implements store.Store and feed.Feed on Redis.
//
// Documents are Hashes holding the JSON body and the revision; a Sorted
// Set indexes every id for prefix scans. Writes run under WATCH/MULTI and
// PUBLISH the change notification inside the same transaction, so a
// notification is only ever emitted for a committed revision. The feed
// subscribes with SUBSCRIBE (exact id) or PSUBSCRIBE (prefix).
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/choreo/backoff"
	"github.com/xraph/choreo/feed"
	"github.com/xraph/choreo/store"
)

// Compile-time interface checks.
var (
	_ store.Store = (*Store)(nil)
	_ feed.Feed   = (*Store)(nil)
)

const (
	// scanBatch is the page size of prefix scans.
	scanBatch = 100

	// maxTxRetries bounds optimistic retries of unconditional writes.
	maxTxRetries = 16
)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithReconnectBackoff sets the delay strategy between failed receives on
// a feed subscription. The attempt count resets once resubscribed.
func WithReconnectBackoff(b backoff.Strategy) Option {
	return func(s *Store) { s.reconnect = b }
}

// Store implements store.Store and feed.Feed backed by Redis.
type Store struct {
	client goredis.UniversalClient
	logger *slog.Logger
	hub    *feed.Hub
	closed atomic.Bool

	reconnect backoff.Strategy

	// ctx scopes every subscription receive loop; Close cancels it.
	ctx    context.Context
	cancel context.CancelCauseFunc
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client goredis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client:    client,
		logger:    slog.Default(),
		hub:       feed.NewHub(),
		reconnect: backoff.NewExponential(100*time.Millisecond, 5*time.Second),
	}
	s.ctx, s.cancel = context.WithCancelCause(context.Background())
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.UniversalClient { return s.client }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	return s.client.Ping(ctx).Err()
}

// Close ends every open subscription. The caller owns the Redis client.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.cancel(store.ErrClosed)
	s.hub.EndAll(store.ErrClosed)
	return nil
}

// ──────────────────────────────────────────────────
// Reader
// ──────────────────────────────────────────────────

// Get returns the document with the given id.
func (s *Store) Get(ctx context.Context, docID string) (store.Document, error) {
	if s.closed.Load() {
		return store.Document{}, store.ErrClosed
	}
	vals, err := s.client.HMGet(ctx, docKey(docID), fieldBody, fieldRev).Result()
	if err != nil {
		return store.Document{}, fmt.Errorf("choreo/redis: get %s: %w", docID, err)
	}
	return decodeHash(docID, vals)
}

// Scan streams every document whose id starts with prefix, in id order.
func (s *Store) Scan(ctx context.Context, prefix string) iter.Seq2[store.Document, error] {
	return func(yield func(store.Document, error) bool) {
		if s.closed.Load() {
			yield(store.Document{}, store.ErrClosed)
			return
		}
		lo, hi := lexRange(prefix)
		for offset := int64(0); ; offset += scanBatch {
			ids, err := s.client.ZRangeByLex(ctx, indexKey, &goredis.ZRangeBy{
				Min: lo, Max: hi, Offset: offset, Count: scanBatch,
			}).Result()
			if err != nil {
				yield(store.Document{}, fmt.Errorf("choreo/redis: scan %q: %w", prefix, err))
				return
			}
			if len(ids) == 0 {
				return
			}

			pipe := s.client.Pipeline()
			cmds := make([]*goredis.SliceCmd, len(ids))
			for i, docID := range ids {
				cmds[i] = pipe.HMGet(ctx, docKey(docID), fieldBody, fieldRev)
			}
			if _, err := pipe.Exec(ctx); err != nil {
				yield(store.Document{}, fmt.Errorf("choreo/redis: scan %q: %w", prefix, err))
				return
			}
			for i, docID := range ids {
				doc, err := decodeHash(docID, cmds[i].Val())
				if errors.Is(err, store.ErrNotFound) {
					// Deleted since the index read.
					continue
				}
				if !yield(doc, err) || err != nil {
					return
				}
			}
			if len(ids) < scanBatch {
				return
			}
		}
	}
}

// ──────────────────────────────────────────────────
// Writer
// ──────────────────────────────────────────────────

// Put writes doc unconditionally.
func (s *Store) Put(ctx context.Context, doc store.Document) (store.Document, error) {
	return s.write(ctx, doc, false)
}

// PutIf writes doc only if the stored revision equals doc.Revision.
func (s *Store) PutIf(ctx context.Context, doc store.Document) (store.Document, error) {
	return s.write(ctx, doc, true)
}

func (s *Store) write(ctx context.Context, doc store.Document, conditional bool) (store.Document, error) {
	if s.closed.Load() {
		return store.Document{}, store.ErrClosed
	}
	key := docKey(doc.ID)
	var out store.Document

	txf := func(tx *goredis.Tx) error {
		cur, err := currentRevision(ctx, tx, key)
		if err != nil {
			return err
		}
		if conditional && cur != doc.Revision {
			return store.ErrConflict
		}
		next := cur + 1
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			queueWrite(ctx, pipe, doc, next)
			return nil
		})
		if err != nil {
			return err
		}
		out = store.Document{ID: doc.ID, Body: append([]byte(nil), doc.Body...), Revision: next}
		return nil
	}

	for range maxTxRetries {
		err := s.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return out, nil
		case errors.Is(err, store.ErrConflict):
			return store.Document{}, store.ErrConflict
		case errors.Is(err, goredis.TxFailedErr):
			if conditional {
				// Someone else committed between our read and EXEC.
				return store.Document{}, store.ErrConflict
			}
		default:
			return store.Document{}, fmt.Errorf("choreo/redis: put %s: %w", doc.ID, err)
		}
	}
	return store.Document{}, fmt.Errorf("choreo/redis: put %s: %w", doc.ID, goredis.TxFailedErr)
}

// Commit writes all docs atomically and unconditionally.
func (s *Store) Commit(ctx context.Context, docs ...store.Document) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	if len(docs) == 0 {
		return nil
	}
	keys := make([]string, len(docs))
	for i, d := range docs {
		keys[i] = docKey(d.ID)
	}

	txf := func(tx *goredis.Tx) error {
		revs := make([]int64, len(docs))
		for i, k := range keys {
			cur, err := currentRevision(ctx, tx, k)
			if err != nil {
				return err
			}
			revs[i] = cur + 1
		}
		_, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			for i, d := range docs {
				queueWrite(ctx, pipe, d, revs[i])
			}
			return nil
		})
		return err
	}

	for range maxTxRetries {
		err := s.client.Watch(ctx, txf, keys...)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("choreo/redis: commit: %w", err)
		}
		return nil
	}
	return fmt.Errorf("choreo/redis: commit: %w", goredis.TxFailedErr)
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, docID string) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	key := docKey(docID)
	txf := func(tx *goredis.Tx) error {
		cur, err := currentRevision(ctx, tx, key)
		if err != nil {
			return err
		}
		if cur == 0 {
			return store.ErrNotFound
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.ZRem(ctx, indexKey, docID)
			pipe.Publish(ctx, channel(docID), encodeNotification(docID, feed.Deleted, cur))
			return nil
		})
		return err
	}

	for range maxTxRetries {
		err := s.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, store.ErrNotFound):
			return store.ErrNotFound
		case errors.Is(err, goredis.TxFailedErr):
			continue
		default:
			return fmt.Errorf("choreo/redis: delete %s: %w", docID, err)
		}
	}
	return fmt.Errorf("choreo/redis: delete %s: %w", docID, goredis.TxFailedErr)
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func currentRevision(ctx context.Context, tx *goredis.Tx, key string) (int64, error) {
	cur, err := tx.HGet(ctx, key, fieldRev).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	return cur, err
}

// queueWrite adds the commands storing doc at rev and announcing it.
func queueWrite(ctx context.Context, pipe goredis.Pipeliner, doc store.Document, rev int64) {
	pipe.HSet(ctx, docKey(doc.ID), fieldBody, string(doc.Body), fieldRev, rev)
	pipe.ZAdd(ctx, indexKey, goredis.Z{Score: 0, Member: doc.ID})
	pipe.Publish(ctx, channel(doc.ID), encodeNotification(doc.ID, feed.Written, rev))
}

func decodeHash(docID string, vals []interface{}) (store.Document, error) {
	if len(vals) != 2 || vals[0] == nil {
		return store.Document{}, store.ErrNotFound
	}
	body, ok := vals[0].(string)
	if !ok {
		return store.Document{}, fmt.Errorf("choreo/redis: get %s: unexpected body type %T", docID, vals[0])
	}
	var rev int64
	if s, ok := vals[1].(string); ok {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return store.Document{}, fmt.Errorf("choreo/redis: get %s: bad revision %q", docID, s)
		}
		rev = n
	}
	return store.Document{ID: docID, Body: []byte(body), Revision: rev}, nil
}
