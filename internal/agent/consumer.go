package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lewisedginton/agent_handoff/internal/mailbox"
	"github.com/lewisedginton/agent_handoff/pkg/logger"
)

// ErrResponder wraps failures of the Responder, as opposed to mailbox failures.
var ErrResponder = errors.New("responder failed")

// Consumer answers requests published on a mailbox.
type Consumer struct {
	store     mailbox.Store
	layout    mailbox.Layout
	responder Responder
	logger    logger.Logger
	interval  time.Duration
	ack       bool
}

// Option configures a Consumer.
type Option func(*Consumer)

func WithLogger(l logger.Logger) Option {
	return func(c *Consumer) {
		c.logger = l
	}
}

// WithPollInterval sets how often Run looks for a request when the store
// cannot notify it. The default is 500ms.
func WithPollInterval(d time.Duration) Option {
	return func(c *Consumer) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithAck makes the consumer delete the request as soon as it has read it.
func WithAck(ack bool) Option {
	return func(c *Consumer) {
		c.ack = ack
	}
}

func NewConsumer(store mailbox.Store, layout mailbox.Layout, responder Responder, opts ...Option) *Consumer {
	c := &Consumer{
		store:     store,
		layout:    layout,
		responder: responder,
		logger:    logger.NewNopLogger(),
		interval:  500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HandleOnce answers the pending request, if any, and reports whether it did.
//
// A request is pending when the request slot exists and no ready marker does.
// The reply is written to the payload slot before the marker is created.
func (c *Consumer) HandleOnce(ctx context.Context) (bool, error) {
	answered, err := c.store.Exists(ctx, c.layout.Marker)
	if err != nil {
		return false, fmt.Errorf("check marker: %w", err)
	}
	if answered {
		return false, nil
	}

	request, err := c.store.Read(ctx, c.layout.Request)
	if errors.Is(err, mailbox.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read request: %w", err)
	}

	if c.ack {
		if err := c.store.Delete(ctx, c.layout.Request); err != nil {
			return false, fmt.Errorf("acknowledge request: %w", err)
		}
	}

	utterance := string(request)
	log := c.logger.WithFields(logger.StringField("responder", c.responder.Name()))
	log.Debug("Request picked up", logger.IntField("bytes", len(utterance)))

	start := time.Now()
	reply, err := c.responder.Respond(ctx, utterance)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrResponder, err)
	}

	if err := c.store.WriteAtomic(ctx, c.layout.Payload, []byte(reply)); err != nil {
		return false, fmt.Errorf("write payload: %w", err)
	}
	if err := c.store.WriteAtomic(ctx, c.layout.Marker, nil); err != nil {
		return false, fmt.Errorf("write marker: %w", err)
	}

	log.Info("Response published",
		logger.IntField("bytes", len(reply)),
		logger.DurationField("duration", time.Since(start)),
	)
	return true, nil
}

// Run answers requests until ctx is done. Responder failures are logged and,
// unless the request was acknowledged, retried on the next tick. Mailbox
// failures end the loop.
func (c *Consumer) Run(ctx context.Context) error {
	var wake <-chan struct{}
	if w, ok := mailbox.WatcherFor(c.store); ok {
		ch, err := w.Watch(ctx, c.layout.Request)
		if err != nil {
			c.logger.Warn("Falling back to polling", logger.ErrorField(err))
		} else {
			wake = ch
		}
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info("Agent consumer started",
		logger.StringField("responder", c.responder.Name()),
		logger.BoolField("ack", c.ack),
	)

	for {
		_, err := c.HandleOnce(ctx)
		switch {
		case ctx.Err() != nil:
			c.logger.Info("Agent consumer stopped")
			return nil
		case errors.Is(err, ErrResponder):
			c.logger.Error("Responder failed", logger.ErrorField(err))
		case err != nil:
			return err
		}

		select {
		case <-ctx.Done():
			c.logger.Info("Agent consumer stopped")
			return nil
		case <-ticker.C:
		case _, ok := <-wake:
			if !ok {
				wake = nil
			}
		}
	}
}
