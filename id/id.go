// Package id defines the document identifiers used by choreo.
//
// Documents are addressed by slash-separated keys in the format
// "prefix/suffix". Tasks use a UUIDv7 suffix so they sort by creation
// time; routing slips derive their identifier deterministically from the
// task they route, and the throttle configuration lives at a fixed key.
package id

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Prefix identifies the document collection encoded in an identifier.
type Prefix string

// Prefix constants for all choreo document collections.
const (
	PrefixTask    Prefix = "tasks/"
	PrefixRouting Prefix = "routing/"
	PrefixAdmin   Prefix = "admin/"
	PrefixAudit   Prefix = "audit/"
	PrefixWorker  Prefix = "wkr_"
)

// ConfigID is the well-known identifier of the throttle configuration
// singleton.
const ConfigID = string(PrefixAdmin) + "config"

// New generates a new globally unique identifier with the given prefix.
// It panics if the system random source fails (unrecoverable).
func New(prefix Prefix) string {
	u, err := uuid.NewV7()
	if err != nil {
		panic(fmt.Sprintf("id: generate %q: %v", prefix, err))
	}
	return string(prefix) + u.String()
}

// NewTaskID generates a new unique task identifier.
func NewTaskID() string { return New(PrefixTask) }

// NewAuditID generates a new unique audit entry identifier.
func NewAuditID() string { return New(PrefixAudit) }

// NewWorkerID generates a new unique worker process identifier.
func NewWorkerID() string { return New(PrefixWorker) }

// SlipID returns the routing slip identifier for a task.
func SlipID(taskID string) string { return string(PrefixRouting) + taskID }

// TaskIDFromSlip recovers the task identifier from a routing slip
// identifier.
func TaskIDFromSlip(slipID string) (string, error) {
	taskID, ok := strings.CutPrefix(slipID, string(PrefixRouting))
	if !ok || taskID == "" {
		return "", fmt.Errorf("id: %q is not a routing slip id", slipID)
	}
	return taskID, nil
}

// HasPrefix reports whether a document identifier belongs to the given
// collection.
func HasPrefix(docID string, prefix Prefix) bool {
	return strings.HasPrefix(docID, string(prefix))
}

// IsSlip reports whether docID addresses a routing slip.
func IsSlip(docID string) bool { return HasPrefix(docID, PrefixRouting) }
