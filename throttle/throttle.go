// Package throttle holds the shared step delay and the controller that keeps
// it in sync with the configuration document.
//
// The delay lives in a Cell: a single atomic word read by every worker before
// each step and written only by the Controller. The configuration document at
// id.ConfigID is the source of truth; Publish and Toggle are the
// administrative write path.
package throttle

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/xraph/choreo/id"
	"github.com/xraph/choreo/store"
)

// DefaultToggleMs is the delay Toggle switches on when none is given.
const DefaultToggleMs = 1000

// Config is the singleton configuration document.
type Config struct {
	ID         string `json:"id"`
	ThrottleMs int64  `json:"throttleMs"`
}

// Cell is the shared throttle delay in milliseconds. The zero value is a
// cell with no delay.
type Cell struct {
	ms atomic.Int64
}

// NewCell returns a cell holding ms.
func NewCell(ms int64) *Cell {
	c := &Cell{}
	c.ms.Store(ms)
	return c
}

// Load returns the current delay in milliseconds.
func (c *Cell) Load() int64 { return c.ms.Load() }

// Delay returns the current delay as a duration.
func (c *Cell) Delay() time.Duration { return time.Duration(c.ms.Load()) * time.Millisecond }

// Store replaces the delay and returns the previous value. Negative values
// are clamped to zero.
func (c *Cell) Store(ms int64) int64 {
	if ms < 0 {
		ms = 0
	}
	return c.ms.Swap(ms)
}

// Wait sleeps for the current delay or until ctx is done.
func (c *Cell) Wait(ctx context.Context) error {
	d := c.Delay()
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish writes the configuration document with the given delay.
func Publish(ctx context.Context, w store.Writer, ms int64) error {
	if ms < 0 {
		return fmt.Errorf("throttle: negative delay %d", ms)
	}
	if _, err := store.Save(ctx, w, id.ConfigID, Config{ID: id.ConfigID, ThrottleMs: ms}); err != nil {
		return fmt.Errorf("throttle: publish: %w", err)
	}
	return nil
}

// Load reads the configured delay. A missing document means no delay.
func Load(ctx context.Context, r store.Reader) (int64, error) {
	cfg, _, err := store.Load[Config](ctx, r, id.ConfigID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("throttle: load: %w", err)
	}
	return cfg.ThrottleMs, nil
}

// Toggle flips the published delay between zero and on, based on the value
// currently held by cell, and returns the delay it published.
func Toggle(ctx context.Context, w store.Writer, cell *Cell, on int64) (int64, error) {
	if on <= 0 {
		on = DefaultToggleMs
	}
	next := on
	if cell.Load() != 0 {
		next = 0
	}
	if err := Publish(ctx, w, next); err != nil {
		return 0, err
	}
	return next, nil
}
