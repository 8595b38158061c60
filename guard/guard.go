// Package guard provides the pluggable concurrency control applied to
// routing slip writes.
//
// The pipeline's eligibility check and the write that follows it are not
// atomic across workers. None reproduces that behavior: two workers that
// observe the same slip before either writes back both apply the step.
// Revision makes the write conditional on the revision that was read, so
// only the first writer wins and the loser observes store.ErrConflict.
package guard

import (
	"context"
	"fmt"

	"github.com/xraph/choreo/store"
)

// Guard persists a modified document read at doc.Revision.
type Guard interface {
	// Name identifies the guard in logs and configuration.
	Name() string

	// Save writes doc through w.
	Save(ctx context.Context, w store.Writer, doc store.Document) (store.Document, error)
}

// None writes unconditionally. Concurrent writers race and the last write
// wins.
type None struct{}

// Name implements Guard.
func (None) Name() string { return "none" }

// Save implements Guard.
func (None) Save(ctx context.Context, w store.Writer, doc store.Document) (store.Document, error) {
	return w.Put(ctx, doc)
}

// Revision writes only if the stored revision still equals doc.Revision.
type Revision struct{}

// Name implements Guard.
func (Revision) Name() string { return "revision" }

// Save implements Guard.
func (Revision) Save(ctx context.Context, w store.Writer, doc store.Document) (store.Document, error) {
	return w.PutIf(ctx, doc)
}

// Parse returns the guard registered under name.
func Parse(name string) (Guard, error) {
	switch name {
	case "", "revision":
		return Revision{}, nil
	case "none":
		return None{}, nil
	default:
		return nil, fmt.Errorf("guard: unknown guard %q", name)
	}
}
