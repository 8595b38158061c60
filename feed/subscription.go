package feed

import (
	"strconv"
	"sync"
	"sync/atomic"
)

// DefaultBufferSize is the default per-subscription notification buffer.
const DefaultBufferSize = 256

var subscriptionSeq atomic.Int64

// Option configures a Subscription.
type Option func(*Subscription)

// WithBufferSize sets the notification buffer size.
func WithBufferSize(n int) Option {
	return func(s *Subscription) {
		if n > 0 {
			s.bufferSize = n
		}
	}
}

// WithErrorHandler registers a callback for transport errors. The
// subscription stays open; the backend decides whether the error ends it.
func WithErrorHandler(fn func(error)) Option {
	return func(s *Subscription) { s.onError = fn }
}

// WithStateHandler registers a callback invoked on connectivity changes.
func WithStateHandler(fn func(State)) Option {
	return func(s *Subscription) { s.onState = fn }
}

// Subscription receives notifications for documents matching its filter.
// Backends push with Deliver; consumers read from C. Sends never block:
// when the buffer is full the notification is dropped and counted.
type Subscription struct {
	id         string
	filter     Filter
	bufferSize int
	ch         chan Notification

	onError func(error)
	onState func(State)

	state     atomic.Int32
	delivered atomic.Int64
	dropped   atomic.Int64

	// mu guards closed and the channel close against concurrent sends.
	mu      sync.RWMutex
	closed  bool
	err     error
	release func()
}

// NewSubscription creates a subscription for f. Backends call this and
// then register the subscription with their transport.
func NewSubscription(f Filter, opts ...Option) *Subscription {
	s := &Subscription{
		id:         "sub-" + strconv.FormatInt(subscriptionSeq.Add(1), 10),
		filter:     f,
		bufferSize: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ch = make(chan Notification, s.bufferSize)
	return s
}

// ID returns the subscription identifier.
func (s *Subscription) ID() string { return s.id }

// Filter returns the subscription filter.
func (s *Subscription) Filter() Filter { return s.filter }

// C returns the read-only notification channel.
func (s *Subscription) C() <-chan Notification { return s.ch }

// State returns the current connectivity state.
func (s *Subscription) State() State { return State(s.state.Load()) }

// Delivered returns how many notifications were buffered for the consumer.
func (s *Subscription) Delivered() int64 { return s.delivered.Load() }

// Dropped returns how many notifications were discarded because the
// buffer was full.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Err returns why the subscription ended, or nil while it is open.
func (s *Subscription) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Done reports whether the subscription has ended.
func (s *Subscription) Done() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Deliver attempts to hand n to the consumer. Returns false if the
// notification does not match the filter, the subscription has ended, or
// the buffer is full.
func (s *Subscription) Deliver(n Notification) bool {
	if !s.filter.Match(n.ID) {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}

	select {
	case s.ch <- n:
		s.delivered.Add(1)
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// SetState records a connectivity change and notifies the state handler.
func (s *Subscription) SetState(st State) {
	if State(s.state.Swap(int32(st))) == st {
		return
	}
	if s.onState != nil {
		s.onState(st)
	}
}

// Fail reports a transport error to the error handler.
func (s *Subscription) Fail(err error) {
	if err != nil && s.onError != nil {
		s.onError(err)
	}
}

// OnRelease registers the backend teardown run once when the consumer
// closes the subscription.
func (s *Subscription) OnRelease(fn func()) {
	s.mu.Lock()
	s.release = fn
	s.mu.Unlock()
}

// End terminates the subscription from the backend side, recording why.
// The notification channel is closed. Safe to call multiple times.
func (s *Subscription) End(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.ch)
	s.state.Store(int32(Disconnected))
}

// Close releases the subscription from the consumer side.
func (s *Subscription) Close() error {
	s.mu.Lock()
	release := s.release
	s.release = nil
	s.mu.Unlock()

	if release != nil {
		release()
	}
	s.End(ErrClosed)
	return nil
}
