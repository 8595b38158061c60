// Package feed defines the change-notification contract the pipeline
// reacts to. A backend pushes one Notification per document mutation to
// every Subscription whose Filter matches the document id.
//
// Delivery is at-least-once per connection and lossy across reconnects:
// notifications emitted while a subscription is disconnected, or while its
// buffer is full, are dropped and never replayed. Ordering is not
// guaranteed across different documents.
package feed

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrClosed is reported by Subscription.Err after the consumer closed it.
var ErrClosed = errors.New("feed: subscription closed")

// Kind is the mutation kind carried by a notification.
type Kind string

const (
	// Written is fired for every successful document write.
	Written Kind = "written"
	// Deleted is fired when a document is removed.
	Deleted Kind = "deleted"
	// Other covers mutation kinds the pipeline does not act on.
	Other Kind = "other"
)

// ParseKind maps a wire value to a Kind. Unknown values map to Other.
func ParseKind(s string) Kind {
	switch Kind(s) {
	case Written, Deleted:
		return Kind(s)
	default:
		return Other
	}
}

// Notification announces that a document changed.
type Notification struct {
	ID       string    `json:"id"`
	Kind     Kind      `json:"kind"`
	Revision int64     `json:"revision,omitempty"`
	At       time.Time `json:"at"`
}

// Filter selects the documents a subscription receives: a single
// document by exact id, or every document under an id prefix.
type Filter struct {
	ID     string
	Prefix string
}

// ForDocument subscribes to one document by exact id.
func ForDocument(id string) Filter { return Filter{ID: id} }

// ForPrefix subscribes to every document whose id starts with prefix.
func ForPrefix(prefix string) Filter { return Filter{Prefix: prefix} }

// Match reports whether docID is selected by the filter.
func (f Filter) Match(docID string) bool {
	if f.ID != "" {
		return docID == f.ID
	}
	return strings.HasPrefix(docID, f.Prefix)
}

// String returns a stable description such as "doc:admin/config" or
// "prefix:routing/".
func (f Filter) String() string {
	if f.ID != "" {
		return "doc:" + f.ID
	}
	return "prefix:" + f.Prefix
}

// State is the connectivity state of a subscription.
type State int32

const (
	Disconnected State = iota
	Connected
)

// String implements fmt.Stringer.
func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Feed opens change-notification subscriptions.
type Feed interface {
	// Subscribe starts delivering notifications matching f. The returned
	// subscription's channel closes when the feed ends or Close is called.
	Subscribe(ctx context.Context, f Filter, opts ...Option) (*Subscription, error)
}
