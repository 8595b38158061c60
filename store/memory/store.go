// Package memory implements store.Store and feed.Feed in process memory.
// Every write publishes a change notification synchronously to matching
// subscriptions. Intended for unit testing, development, and
// single-process deployments.
package memory

import (
	"context"
	"iter"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/choreo/feed"
	"github.com/xraph/choreo/store"
)

// Compile-time interface checks.
var (
	_ store.Store = (*Store)(nil)
	_ feed.Feed   = (*Store)(nil)
)

// Store is a fully in-memory document store with a change feed.
// Safe for concurrent access.
type Store struct {
	mu   sync.RWMutex
	docs map[string]store.Document

	hub *feed.Hub

	// disconnected simulates a feed outage: writes still succeed but
	// their notifications are lost.
	disconnected atomic.Bool
	closed       atomic.Bool

	writes atomic.Int64
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		docs: make(map[string]store.Document),
		hub:  feed.NewHub(),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Ping always succeeds until the store is closed.
func (m *Store) Ping(_ context.Context) error {
	if m.closed.Load() {
		return store.ErrClosed
	}
	return nil
}

// Close ends every subscription and rejects further calls.
func (m *Store) Close() error {
	if m.closed.CompareAndSwap(false, true) {
		m.hub.EndAll(store.ErrClosed)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Reader
// ──────────────────────────────────────────────────

// Get returns a copy of the document with the given id.
func (m *Store) Get(_ context.Context, docID string) (store.Document, error) {
	if m.closed.Load() {
		return store.Document{}, store.ErrClosed
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[docID]
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	return clone(doc), nil
}

// Scan yields copies of all documents under prefix in id order. The set
// of documents is captured when iteration starts.
func (m *Store) Scan(ctx context.Context, prefix string) iter.Seq2[store.Document, error] {
	return func(yield func(store.Document, error) bool) {
		if m.closed.Load() {
			yield(store.Document{}, store.ErrClosed)
			return
		}

		m.mu.RLock()
		matched := make([]store.Document, 0, len(m.docs))
		for docID, doc := range m.docs {
			if strings.HasPrefix(docID, prefix) {
				matched = append(matched, clone(doc))
			}
		}
		m.mu.RUnlock()

		sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

		for _, doc := range matched {
			if err := ctx.Err(); err != nil {
				yield(store.Document{}, err)
				return
			}
			if !yield(doc, nil) {
				return
			}
		}
	}
}

// ──────────────────────────────────────────────────
// Writer
// ──────────────────────────────────────────────────

// Put writes doc unconditionally.
func (m *Store) Put(_ context.Context, doc store.Document) (store.Document, error) {
	if m.closed.Load() {
		return store.Document{}, store.ErrClosed
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeLocked(doc), nil
}

// PutIf writes doc only if the stored revision equals doc.Revision.
func (m *Store) PutIf(_ context.Context, doc store.Document) (store.Document, error) {
	if m.closed.Load() {
		return store.Document{}, store.ErrClosed
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.docs[doc.ID].Revision != doc.Revision {
		return store.Document{}, store.ErrConflict
	}
	return m.writeLocked(doc), nil
}

// Commit writes all docs atomically.
func (m *Store) Commit(_ context.Context, docs ...store.Document) error {
	if m.closed.Load() {
		return store.ErrClosed
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, doc := range docs {
		m.writeLocked(doc)
	}
	return nil
}

// Delete removes a document.
func (m *Store) Delete(_ context.Context, docID string) error {
	if m.closed.Load() {
		return store.ErrClosed
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[docID]
	if !ok {
		return store.ErrNotFound
	}
	delete(m.docs, docID)
	m.notify(feed.Notification{ID: docID, Kind: feed.Deleted, Revision: doc.Revision})
	return nil
}

// writeLocked stores doc at the next revision and publishes the change
// while still holding the lock so notifications for one document are
// emitted in write order.
func (m *Store) writeLocked(doc store.Document) store.Document {
	stored := clone(doc)
	stored.Revision = m.docs[doc.ID].Revision + 1
	m.docs[doc.ID] = stored
	m.writes.Add(1)
	m.notify(feed.Notification{ID: doc.ID, Kind: feed.Written, Revision: stored.Revision})
	return clone(stored)
}

// Writes returns the number of successful writes since creation.
func (m *Store) Writes() int64 { return m.writes.Load() }

// ──────────────────────────────────────────────────
// Feed
// ──────────────────────────────────────────────────

// Subscribe registers a subscription for documents matching f.
func (m *Store) Subscribe(_ context.Context, f feed.Filter, opts ...feed.Option) (*feed.Subscription, error) {
	if m.closed.Load() {
		return nil, store.ErrClosed
	}
	sub := feed.NewSubscription(f, opts...)
	m.hub.Add(sub)
	if !m.disconnected.Load() {
		sub.SetState(feed.Connected)
	}
	return sub, nil
}

// Disconnect simulates losing the feed connection. Notifications for
// writes made while disconnected are lost and never replayed.
func (m *Store) Disconnect() {
	m.disconnected.Store(true)
	m.hub.SetState(feed.Disconnected)
}

// Reconnect restores notification delivery.
func (m *Store) Reconnect() {
	m.disconnected.Store(false)
	m.hub.SetState(feed.Connected)
}

// EndFeed terminates every open subscription with err, as if the server
// closed the stream. The store itself keeps working.
func (m *Store) EndFeed(err error) {
	m.hub.EndAll(err)
}

// FeedStats returns fan-out counters.
func (m *Store) FeedStats() feed.HubStats { return m.hub.Stats() }

func (m *Store) notify(n feed.Notification) {
	if m.disconnected.Load() {
		return
	}
	n.At = time.Now().UTC()
	m.hub.Publish(n)
}

func clone(doc store.Document) store.Document {
	body := make([]byte, len(doc.Body))
	copy(body, doc.Body)
	doc.Body = body
	return doc
}
