// Package handoff runs request/response exchanges with an external agent
// through a mailbox: reset the slots, publish the request, wait for the ready
// marker, then consume the response.
package handoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/lewisedginton/agent_handoff/internal/mailbox"
	"github.com/lewisedginton/agent_handoff/pkg/logger"
)

// Observer is notified about every Exchange. *metrics.Metrics satisfies it.
type Observer interface {
	ExchangeStarted()
	ExchangeFinished(outcome string, d time.Duration)
}

// Channel drives exchanges over one mailbox. It allows one Exchange in flight
// at a time; the raw Reset, Publish, Await and Consume steps do not take part
// in that and may be combined freely.
type Channel struct {
	store     mailbox.Store
	config    Config
	logger    logger.Logger
	observers []Observer
	busy      chan struct{}
	now       func() time.Time
}

// Option configures a Channel.
type Option func(*Channel)

func WithLogger(l logger.Logger) Option {
	return func(c *Channel) {
		c.logger = l
	}
}

func WithObserver(o Observer) Option {
	return func(c *Channel) {
		c.observers = append(c.observers, o)
	}
}

// New returns a Channel over store.
func New(store mailbox.Store, config Config, opts ...Option) (*Channel, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid handoff config: %w", err)
	}
	c := &Channel{
		store:  store,
		config: config,
		logger: logger.NewNopLogger(),
		busy:   make(chan struct{}, 1),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Layout returns the slot names in use.
func (c *Channel) Layout() mailbox.Layout {
	return c.config.Layout
}

// Reset deletes the request, payload and marker slots. It is idempotent and
// attempts every slot even if one fails.
func (c *Channel) Reset(ctx context.Context) error {
	var result *multierror.Error
	for _, slot := range c.config.Layout.Slots() {
		if err := c.store.Delete(ctx, slot); err != nil {
			result = multierror.Append(result, fmt.Errorf("reset %s: %w", slot, err))
		}
	}
	return result.ErrorOrNil()
}

// Publish writes the utterance to the request slot. The agent sees either no
// request or the whole utterance.
func (c *Channel) Publish(ctx context.Context, utterance string) error {
	if err := c.store.WriteAtomic(ctx, c.config.Layout.Request, []byte(utterance)); err != nil {
		return fmt.Errorf("publish request: %w", err)
	}
	return nil
}

// Await blocks until the ready marker exists or ctx is done. The check interval
// grows from Backoff.Initial to Backoff.Max and a store change notification
// cuts the current interval short.
func (c *Channel) Await(ctx context.Context) error {
	return c.await(ctx, "")
}

// await is Await for an exchange that published utterance. When utterance is
// set, every check also reads the request slot and fails with ErrSuperseded
// once it holds anything else.
func (c *Channel) await(ctx context.Context, utterance string) error {
	l := c.config.Layout

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	wake := c.watch(watchCtx, l.Marker)
	var replaced <-chan struct{}
	if utterance != "" {
		replaced = c.watch(watchCtx, l.Request)
	}

	delay := c.config.Backoff.Initial
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		ready, err := c.store.Exists(ctx, l.Marker)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("check %s: %w", l.Marker, err)
		}
		if ready {
			return nil
		}
		if utterance != "" {
			current, present, err := c.request(ctx)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				return err
			}
			if present && current != utterance {
				return ErrSuperseded
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			delay = c.config.Backoff.next(delay)
		case _, ok := <-wake:
			if !ok {
				wake = nil
			}
		case _, ok := <-replaced:
			if !ok {
				replaced = nil
			}
		}
		timer.Reset(delay)
	}
}

// watch returns a change channel for slot, or nil when the store cannot
// notify or watching is disabled.
func (c *Channel) watch(ctx context.Context, slot string) <-chan struct{} {
	if c.config.DisableWatch {
		return nil
	}
	w, ok := mailbox.WatcherFor(c.store)
	if !ok {
		return nil
	}
	ch, err := w.Watch(ctx, slot)
	if err != nil {
		c.logger.Warn("Falling back to polling", logger.SlotField(slot), logger.ErrorField(err))
		return nil
	}
	return ch
}

// Consume reads the payload, then deletes the payload and the marker. It must
// only be called after Await returned nil.
func (c *Channel) Consume(ctx context.Context) (string, error) {
	l := c.config.Layout

	payload, err := c.store.Read(ctx, l.Payload)
	if errors.Is(err, mailbox.ErrNotFound) {
		return "", ErrResponseVanished
	}
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if err := c.store.Delete(ctx, l.Payload); err != nil {
		return "", fmt.Errorf("clear response: %w", err)
	}
	if err := c.store.Delete(ctx, l.Marker); err != nil {
		return "", fmt.Errorf("clear ready marker: %w", err)
	}
	return string(payload), nil
}

// request returns the request slot's content. present is false when the
// slot is empty.
func (c *Channel) request(ctx context.Context) (string, bool, error) {
	current, err := c.store.Read(ctx, c.config.Layout.Request)
	if errors.Is(err, mailbox.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read request: %w", err)
	}
	return string(current), true, nil
}

// retract removes the request slot if it still holds utterance, so an agent
// does not answer an exchange nobody waits for anymore.
func (c *Channel) retract(ctx context.Context, utterance string) error {
	current, present, err := c.request(ctx)
	if err != nil || !present || current != utterance {
		return err
	}
	return c.store.Delete(ctx, c.config.Layout.Request)
}
