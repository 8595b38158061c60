// Package store defines the entity store contract consumed by the pipeline.
// Documents are JSON bodies addressed by identifier and carry a revision
// that increments on every write. Backends: Memory, Redis, and Postgres.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("store: document not found")

	// ErrConflict is returned by PutIf when the stored revision does not
	// match the expected one.
	ErrConflict = errors.New("store: revision conflict")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store: closed")
)

// Document is a stored JSON body. Revision is zero for a document that has
// never been written and increments by one on every successful write.
type Document struct {
	ID       string          `json:"id"`
	Body     json.RawMessage `json:"body"`
	Revision int64           `json:"revision"`
}

// Reader loads and scans documents.
type Reader interface {
	// Get returns the document with the given id or ErrNotFound.
	Get(ctx context.Context, id string) (Document, error)

	// Scan streams every document whose id starts with prefix. An empty
	// prefix scans everything. Iteration stops at the first error.
	Scan(ctx context.Context, prefix string) iter.Seq2[Document, error]
}

// Writer persists documents. Every successful write fires a "written"
// change notification for the document.
type Writer interface {
	// Put writes doc unconditionally and returns it with its new revision.
	Put(ctx context.Context, doc Document) (Document, error)

	// PutIf writes doc only if the stored revision equals doc.Revision
	// (zero meaning "absent"). Returns ErrConflict otherwise.
	PutIf(ctx context.Context, doc Document) (Document, error)

	// Commit writes all docs atomically and unconditionally.
	Commit(ctx context.Context, docs ...Document) error

	// Delete removes a document. Returns ErrNotFound if it does not exist.
	Delete(ctx context.Context, id string) error
}

// Store is the aggregate persistence interface.
type Store interface {
	Reader
	Writer

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Encode marshals v into a document with the given id and expected
// revision.
func Encode(id string, v any, revision int64) (Document, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return Document{}, fmt.Errorf("store: encode %s: %w", id, err)
	}
	return Document{ID: id, Body: body, Revision: revision}, nil
}

// Decode unmarshals a document body into a fresh T.
func Decode[T any](doc Document) (T, error) {
	var v T
	if err := json.Unmarshal(doc.Body, &v); err != nil {
		return v, fmt.Errorf("store: decode %s: %w", doc.ID, err)
	}
	return v, nil
}

// Load fetches and decodes a document, returning the plain value and the
// revision it was read at. Nothing is tracked: mutating the value has no
// effect until it is explicitly saved.
func Load[T any](ctx context.Context, r Reader, id string) (T, int64, error) {
	var zero T
	doc, err := r.Get(ctx, id)
	if err != nil {
		return zero, 0, err
	}
	v, err := Decode[T](doc)
	if err != nil {
		return zero, 0, err
	}
	return v, doc.Revision, nil
}

// Save encodes v and writes it unconditionally under id.
func Save(ctx context.Context, w Writer, id string, v any) (Document, error) {
	doc, err := Encode(id, v, 0)
	if err != nil {
		return Document{}, err
	}
	return w.Put(ctx, doc)
}
