package feed

import (
	"sync"
	"sync/atomic"
)

// Hub fans notifications out to registered subscriptions. In-process
// backends use it directly; networked backends use it to share one
// transport connection between many subscriptions.
// It is safe for concurrent use.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]*Subscription

	published atomic.Int64
	dropped   atomic.Int64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]*Subscription)}
}

// Add registers a subscription. Closing the subscription removes it.
func (h *Hub) Add(sub *Subscription) {
	h.mu.Lock()
	h.subs[sub.ID()] = sub
	h.mu.Unlock()
	sub.OnRelease(func() { h.Remove(sub.ID()) })
}

// Remove unregisters a subscription without ending it.
func (h *Hub) Remove(subID string) {
	h.mu.Lock()
	delete(h.subs, subID)
	h.mu.Unlock()
}

// Publish delivers n to every matching subscription and returns how many
// received it.
func (h *Hub) Publish(n Notification) int {
	h.mu.RLock()
	targets := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		if s.Filter().Match(n.ID) {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if s.Deliver(n) {
			delivered++
		} else {
			h.dropped.Add(1)
		}
	}
	h.published.Add(int64(delivered))
	return delivered
}

// SetState broadcasts a connectivity change to every subscription.
func (h *Hub) SetState(st State) {
	for _, s := range h.snapshot() {
		s.SetState(st)
	}
}

// Fail reports a transport error to every subscription.
func (h *Hub) Fail(err error) {
	for _, s := range h.snapshot() {
		s.Fail(err)
	}
}

// EndAll terminates every subscription with err and empties the hub.
func (h *Hub) EndAll(err error) {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]*Subscription)
	h.mu.Unlock()

	for _, s := range subs {
		s.End(err)
	}
}

// Len returns the number of registered subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// HubStats contains hub counters.
type HubStats struct {
	Subscriptions int   `json:"subscriptions"`
	Published     int64 `json:"published"`
	Dropped       int64 `json:"dropped"`
}

// Stats returns hub counters.
func (h *Hub) Stats() HubStats {
	return HubStats{
		Subscriptions: h.Len(),
		Published:     h.published.Load(),
		Dropped:       h.dropped.Load(),
	}
}

func (h *Hub) snapshot() []*Subscription {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		out = append(out, s)
	}
	return out
}
