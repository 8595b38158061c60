package middleware

import (
	"context"
	"time"

	"github.com/xraph/choreo/step"
)

// Invocation describes one step worker reacting to one notification.
type Invocation struct {
	// Kind is the step kind of the reacting worker.
	Kind step.Kind

	// SlipID is the routing slip named by the notification.
	SlipID string

	// Revision is the slip revision carried by the notification, if known.
	Revision int64

	// Timeout bounds the invocation when non-zero.
	Timeout time.Duration

	// Outcome is set by the terminal handler once the worker has reacted
	// (advanced, ineligible, conflict, ...). Middleware may read it after
	// next returns; it stays empty if the handler never completed.
	Outcome string
}

// Handler is the terminal function that performs the step.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic.
// It receives the current context, the invocation being handled, and the
// next handler to call. Middleware MUST call next to continue the chain
// (unless short-circuiting on error).
type Middleware func(ctx context.Context, inv *Invocation, next Handler) error

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, timeout) executes as:
//
//	logging → recover → timeout → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, inv *Invocation, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, inv, prev)
			}
		}
		return h(ctx)
	}
}
