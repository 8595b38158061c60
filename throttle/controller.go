package throttle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/choreo"
	"github.com/xraph/choreo/feed"
	"github.com/xraph/choreo/id"
	"github.com/xraph/choreo/store"
)

// Emitter receives throttle changes. *ext.Registry satisfies it.
type Emitter interface {
	EmitThrottleChanged(ctx context.Context, previous, current time.Duration)
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithEmitter sets the hook emitter notified on every change.
func WithEmitter(e Emitter) Option {
	return func(c *Controller) { c.emitter = e }
}

// WithSubscribeOptions passes options to the feed subscription.
func WithSubscribeOptions(opts ...feed.Option) Option {
	return func(c *Controller) { c.subOpts = append(c.subOpts, opts...) }
}

// Controller mirrors the configuration document into a Cell.
type Controller struct {
	feed    feed.Feed
	reader  store.Reader
	cell    *Cell
	emitter Emitter
	subOpts []feed.Option
	logger  *slog.Logger
}

// NewController creates a controller that keeps cell in sync with the
// configuration document.
func NewController(f feed.Feed, r store.Reader, cell *Cell, opts ...Option) *Controller {
	c := &Controller{
		feed:   f,
		reader: r,
		cell:   cell,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cell returns the cell the controller writes to.
func (c *Controller) Cell() *Cell { return c.cell }

// Refresh reloads the configuration document and stores its delay.
func (c *Controller) Refresh(ctx context.Context) error {
	ms, err := Load(ctx, c.reader)
	if err != nil {
		return err
	}
	prev := c.cell.Store(ms)
	if prev != ms {
		c.logger.Info("throttle changed",
			slog.Int64("previous_ms", prev),
			slog.Int64("throttle_ms", ms),
		)
		if c.emitter != nil {
			c.emitter.EmitThrottleChanged(ctx,
				time.Duration(prev)*time.Millisecond,
				time.Duration(ms)*time.Millisecond,
			)
		}
	}
	return nil
}

// Handle applies a single feed notification.
func (c *Controller) Handle(ctx context.Context, n feed.Notification) error {
	if n.ID != id.ConfigID || n.Kind != feed.Written {
		return nil
	}
	return c.Refresh(ctx)
}

// Run subscribes to the configuration document, loads it once, and applies
// every subsequent write until ctx is done or the feed ends. The
// subscription is opened before the initial load so no write is missed
// between the two.
func (c *Controller) Run(ctx context.Context) error {
	sub, err := c.feed.Subscribe(ctx, feed.ForDocument(id.ConfigID), c.subOpts...)
	if err != nil {
		return fmt.Errorf("throttle: subscribe: %w", err)
	}
	defer sub.Close()

	if err := c.Refresh(ctx); err != nil {
		c.logger.Warn("throttle initial load failed", slog.String("error", err.Error()))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-sub.C():
			if !ok {
				return fmt.Errorf("throttle: %w: %w", choreo.ErrFeedEnded, sub.Err())
			}
			if err := c.Handle(ctx, n); err != nil {
				c.logger.Warn("throttle refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}
