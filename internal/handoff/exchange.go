package handoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lewisedginton/agent_handoff/pkg/logger"
	"github.com/lewisedginton/agent_handoff/pkg/prefixed_uuid"
)

// ExchangeIDPrefix tags exchange ids, e.g. "exg-5f0c...".
const ExchangeIDPrefix = "exg"

// Labels identify the dialog turn an Exchange belongs to. They are carried
// into logs, metrics and the journal and never reach the mailbox.
type Labels struct {
	ExperimentID string
	DialogID     string
	TurnID       string
	SystemName   string
}

func (l Labels) fields() []logger.LogField {
	return []logger.LogField{
		logger.StringField("experiment_id", l.ExperimentID),
		logger.StringField("dialog_id", l.DialogID),
		logger.StringField("turn_id", l.TurnID),
		logger.StringField("system_name", l.SystemName),
	}
}

// Request is one utterance to hand to the agent.
type Request struct {
	// ID is generated when zero.
	ID        prefixed_uuid.PrefixedUUID
	Utterance string
	Labels    Labels
}

// Result describes a finished Exchange. It is returned alongside the error
// for failed exchanges too, with Reply empty.
type Result struct {
	ID          prefixed_uuid.PrefixedUUID
	Reply       string
	Outcome     string
	StartedAt   time.Time
	PublishedAt time.Time
	ReadyAt     time.Time
	FinishedAt  time.Time
}

// Queued is how long the exchange waited for the mailbox.
func (r *Result) Queued() time.Duration {
	if r.PublishedAt.IsZero() {
		return 0
	}
	return r.PublishedAt.Sub(r.StartedAt)
}

// Wait is how long the agent took, from publish until the marker was seen.
func (r *Result) Wait() time.Duration {
	if r.PublishedAt.IsZero() || r.ReadyAt.IsZero() {
		return 0
	}
	return r.ReadyAt.Sub(r.PublishedAt)
}

func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Exchange hands req.Utterance to the agent and returns its reply.
//
// The mailbox is held for the whole exchange; a second caller queues or gets
// ErrBusy depending on the busy policy. Expiry of the configured timeout
// yields ErrTimeout, cancellation of ctx yields the context error. On any
// failure after publishing, the request is withdrawn if it is still ours.
func (c *Channel) Exchange(ctx context.Context, req Request) (*Result, error) {
	if req.ID.IsZero() {
		req.ID = prefixed_uuid.New(ExchangeIDPrefix)
	}
	res := &Result{ID: req.ID, StartedAt: c.now()}
	log := c.logger.WithFields(append(req.Labels.fields(), logger.ExchangeIDField(req.ID.String()))...)

	for _, o := range c.observers {
		o.ExchangeStarted()
	}

	reply, err := c.exchange(ctx, req.Utterance, res, log)
	res.FinishedAt = c.now()
	res.Outcome = Outcome(err)

	for _, o := range c.observers {
		o.ExchangeFinished(res.Outcome, res.Duration())
	}

	fields := []logger.LogField{
		logger.StringField("outcome", res.Outcome),
		logger.DurationField("duration", res.Duration()),
		logger.DurationField("wait", res.Wait()),
	}
	if err != nil {
		log.Warn("Exchange failed", append(fields, logger.ErrorField(err))...)
		return res, err
	}
	res.Reply = reply
	log.Info("Exchange completed", fields...)
	return res, nil
}

func (c *Channel) exchange(ctx context.Context, utterance string, res *Result, log logger.Logger) (string, error) {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, c.config.Timeout, ErrTimeout)
		defer cancel()
	}

	release, err := c.acquire(ctx)
	if err != nil {
		return "", c.timeoutOr(ctx, err)
	}
	defer release()

	if err := c.Reset(ctx); err != nil {
		return "", c.timeoutOr(ctx, err)
	}
	if err := c.Publish(ctx, utterance); err != nil {
		return "", c.timeoutOr(ctx, err)
	}
	res.PublishedAt = c.now()
	log.Debug("Request published", logger.IntField("bytes", len(utterance)))

	reply, err := c.collect(ctx, utterance, res)
	if err != nil {
		if !errors.Is(err, ErrSuperseded) {
			c.withdraw(ctx, utterance, log)
		}
		return "", c.timeoutOr(ctx, err)
	}
	return reply, nil
}

func (c *Channel) collect(ctx context.Context, utterance string, res *Result) (string, error) {
	if err := c.await(ctx, utterance); err != nil {
		return "", err
	}
	res.ReadyAt = c.now()

	current, present, err := c.request(ctx)
	if err != nil {
		return "", err
	}
	switch {
	case !present && !c.config.AcceptAcked:
		return "", fmt.Errorf("%w: request slot was cleared before the response was ready", ErrSuperseded)
	case present && current != utterance:
		return "", ErrSuperseded
	}

	// The request goes first so that an agent which leaves requests in place
	// never sees it again without a marker.
	if err := c.store.Delete(ctx, c.config.Layout.Request); err != nil {
		return "", fmt.Errorf("clear request: %w", err)
	}
	return c.Consume(ctx)
}

// acquire takes the busy slot according to the busy policy.
func (c *Channel) acquire(ctx context.Context) (func(), error) {
	release := func() { <-c.busy }

	select {
	case c.busy <- struct{}{}:
		return release, nil
	default:
	}

	if c.config.BusyPolicy == BusyReject {
		return nil, ErrBusy
	}

	c.logger.Debug("Waiting for running exchange to finish")
	select {
	case c.busy <- struct{}{}:
		return release, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// withdraw runs after ctx may already be done, so it uses a short detached context.
func (c *Channel) withdraw(ctx context.Context, utterance string, log logger.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.retract(ctx, utterance); err != nil {
		log.Warn("Failed to withdraw request", logger.ErrorField(err))
	}
}

// timeoutOr turns expiry of the exchange timeout into ErrTimeout.
func (c *Channel) timeoutOr(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(context.Cause(ctx), ErrTimeout) {
		return fmt.Errorf("%w after %s", ErrTimeout, c.config.Timeout)
	}
	return err
}
