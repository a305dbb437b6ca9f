package handoff

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewisedginton/agent_handoff/internal/agent"
	"github.com/lewisedginton/agent_handoff/internal/mailbox"
	"github.com/lewisedginton/agent_handoff/pkg/prefixed_uuid"
)

func TestExchangeAnswersQuestion(t *testing.T) {
	for _, ack := range []bool{false, true} {
		name := "leaves request"
		if ack {
			name = "acknowledges request"
		}
		t.Run(name, func(t *testing.T) {
			store := mailbox.NewLocalStore(t.TempDir(), 0)
			startAgent(t, store, cast, agent.WithAck(ack))
			obs := &recordingObserver{}
			cfg := testConfig()
			cfg.AcceptAcked = ack
			c, err := New(store, cfg, WithObserver(obs))
			require.NoError(t, err)

			res, err := c.Exchange(context.Background(), Request{
				Utterance: "who stars in the wandering earth 2?",
				Labels:    Labels{ExperimentID: "exp-1", DialogID: "d-1", TurnID: "1", SystemName: "echo"},
			})
			require.NoError(t, err)
			assert.Equal(t, "Wu Jing and Andy Lau.", res.Reply)
			assert.Equal(t, OutcomeSucceeded, res.Outcome)
			assert.Equal(t, ExchangeIDPrefix, res.ID.Prefix)
			assert.False(t, res.PublishedAt.Before(res.StartedAt))
			assert.False(t, res.ReadyAt.Before(res.PublishedAt))
			assert.False(t, res.FinishedAt.Before(res.ReadyAt))
			assertEmpty(t, store)

			assert.Equal(t, 1, obs.started)
			assert.Equal(t, []string{OutcomeSucceeded}, obs.outcomes)
		})
	}
}

func TestExchangeKeepsGivenID(t *testing.T) {
	store := mailbox.NewLocalStore(t.TempDir(), 0)
	startAgent(t, store, cast)
	c := newChannel(t, store)

	id := prefixed_uuid.New("turn")
	res, err := c.Exchange(context.Background(), Request{ID: id, Utterance: "hi"})
	require.NoError(t, err)
	assert.Equal(t, id, res.ID)
	assert.Equal(t, "re: hi", res.Reply)
}

func TestExchangeQueuesOverlappingRequests(t *testing.T) {
	store := mailbox.NewLocalStore(t.TempDir(), 0)
	startAgent(t, store, cast)
	c := newChannel(t, store)

	utterances := []string{"hello", "goodbye", "hello again"}
	replies := make([]string, len(utterances))
	errs := make([]error, len(utterances))

	var wg sync.WaitGroup
	for i, u := range utterances {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.Exchange(context.Background(), Request{Utterance: u})
			errs[i] = err
			if res != nil {
				replies[i] = res.Reply
			}
		}()
	}
	wg.Wait()

	for i, u := range utterances {
		require.NoError(t, errs[i])
		assert.Equal(t, "re: "+u, replies[i])
	}
	assertEmpty(t, store)
}

func TestExchangeRejectsWhileBusy(t *testing.T) {
	ctx := context.Background()
	store := mailbox.NewLocalStore(t.TempDir(), 0)
	obs := &recordingObserver{}
	c, err := New(store, func() Config {
		cfg := testConfig()
		cfg.BusyPolicy = BusyReject
		return cfg
	}(), WithObserver(obs))
	require.NoError(t, err)

	first := make(chan *Result, 1)
	go func() {
		res, _ := c.Exchange(ctx, Request{Utterance: "hello"})
		first <- res
	}()
	require.Eventually(t, func() bool {
		v, ok := slotValue(t, store, c.Layout().Request)
		return ok && v == "hello"
	}, 2*time.Second, 5*time.Millisecond)

	res, err := c.Exchange(ctx, Request{Utterance: "goodbye"})
	require.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, OutcomeBusy, res.Outcome)
	assert.Empty(t, res.Reply)

	v, _ := slotValue(t, store, c.Layout().Request)
	assert.Equal(t, "hello", v, "a rejected exchange must not touch the mailbox")

	handled, err := agent.NewConsumer(store, c.Layout(), cast).HandleOnce(ctx)
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, "re: hello", (<-first).Reply)
	assert.Contains(t, obs.outcomes, OutcomeBusy)
}

// Two services sharing one mailbox: the later request overwrites the earlier
// one, and the earlier exchange must never receive the later reply.
func TestExchangeOverlappedAcrossChannels(t *testing.T) {
	for _, ack := range []bool{false, true} {
		name := "leaves request"
		if ack {
			name = "acknowledges request"
		}
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := mailbox.NewLocalStore(t.TempDir(), 0)
			acceptAcked := func(cfg *Config) { cfg.AcceptAcked = ack }
			first := newChannel(t, store, acceptAcked)
			second := newChannel(t, store, acceptAcked)

			hello := make(chan exchangeOutcome, 1)
			goodbye := make(chan exchangeOutcome, 1)

			go func() {
				res, err := first.Exchange(ctx, Request{Utterance: "hello"})
				hello <- exchangeOutcome{res, err}
			}()
			require.Eventually(t, requestIs(t, store, "hello"), 2*time.Second, 5*time.Millisecond)

			go func() {
				res, err := second.Exchange(ctx, Request{Utterance: "goodbye"})
				goodbye <- exchangeOutcome{res, err}
			}()
			require.Eventually(t, requestIs(t, store, "goodbye"), 2*time.Second, 5*time.Millisecond)

			// The earlier exchange gives up as soon as it sees the new request,
			// before any agent has answered.
			h := receive(t, hello)
			require.ErrorIs(t, h.err, ErrSuperseded)
			assert.Empty(t, h.res.Reply)

			handled, err := agent.NewConsumer(store, first.Layout(), cast, agent.WithAck(ack)).HandleOnce(ctx)
			require.NoError(t, err)
			require.True(t, handled)

			g := receive(t, goodbye)
			require.NoError(t, g.err)
			assert.Equal(t, "re: goodbye", g.res.Reply)
			assertEmpty(t, store)
		})
	}
}

// An acknowledging agent answers the later request before the earlier
// exchange has looked at the mailbox again. Without AcceptAcked nobody can
// tell whose request was acknowledged, so both exchanges refuse the reply.
func TestExchangeAckedOverlapRefusedByDefault(t *testing.T) {
	ctx := context.Background()
	store := mailbox.NewLocalStore(t.TempDir(), 0)
	first := newChannel(t, store)
	second := newChannel(t, store, func(cfg *Config) {
		cfg.DisableWatch = true
		cfg.Backoff = Backoff{Initial: 300 * time.Millisecond, Max: 300 * time.Millisecond, Multiplier: 1}
	})

	hello := make(chan exchangeOutcome, 1)
	goodbye := make(chan exchangeOutcome, 1)
	go func() {
		res, err := first.Exchange(ctx, Request{Utterance: "hello"})
		hello <- exchangeOutcome{res, err}
	}()
	require.Eventually(t, requestIs(t, store, "hello"), 2*time.Second, 5*time.Millisecond)

	go func() {
		res, err := second.Exchange(ctx, Request{Utterance: "goodbye"})
		goodbye <- exchangeOutcome{res, err}
	}()
	require.Eventually(t, requestIs(t, store, "goodbye"), 2*time.Second, 5*time.Millisecond)

	handled, err := agent.NewConsumer(store, first.Layout(), cast, agent.WithAck(true)).HandleOnce(ctx)
	require.NoError(t, err)
	require.True(t, handled)

	h := receive(t, hello)
	require.ErrorIs(t, h.err, ErrSuperseded)
	assert.Empty(t, h.res.Reply)

	g := receive(t, goodbye)
	require.ErrorIs(t, g.err, ErrSuperseded)
	assert.Empty(t, g.res.Reply)
}

func TestExchangeRefusesAckedRequestByDefault(t *testing.T) {
	store := mailbox.NewLocalStore(t.TempDir(), 0)
	startAgent(t, store, cast, agent.WithAck(true))
	c := newChannel(t, store)

	res, err := c.Exchange(context.Background(), Request{Utterance: "hi"})
	require.ErrorIs(t, err, ErrSuperseded)
	assert.Equal(t, OutcomeSuperseded, res.Outcome)
	assert.Empty(t, res.Reply)

	v, ok := slotValue(t, store, c.Layout().Payload)
	require.True(t, ok, "the response is left for whoever owns it")
	assert.Equal(t, "re: hi", v)
}

type exchangeOutcome struct {
	res *Result
	err error
}

func receive(t *testing.T, ch <-chan exchangeOutcome) exchangeOutcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("exchange did not finish")
		return exchangeOutcome{}
	}
}

func requestIs(t *testing.T, store mailbox.Store, want string) func() bool {
	return func() bool {
		v, ok := slotValue(t, store, mailbox.DefaultLayout().Request)
		return ok && v == want
	}
}

func TestExchangeSupersededLeavesResponse(t *testing.T) {
	ctx := context.Background()
	store := mailbox.NewLocalStore(t.TempDir(), 0)
	c := newChannel(t, store)
	l := c.Layout()

	done := make(chan error, 1)
	go func() {
		_, err := c.Exchange(ctx, Request{Utterance: "hello"})
		done <- err
	}()
	require.Eventually(t, func() bool {
		ok, _ := store.Exists(ctx, l.Request)
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	// Another process republishes and its agent answers before we look.
	require.NoError(t, store.WriteAtomic(ctx, l.Request, []byte("goodbye")))
	require.NoError(t, store.WriteAtomic(ctx, l.Payload, []byte("re: goodbye")))
	require.NoError(t, store.WriteAtomic(ctx, l.Marker, nil))

	require.ErrorIs(t, <-done, ErrSuperseded)

	v, ok := slotValue(t, store, l.Payload)
	require.True(t, ok)
	assert.Equal(t, "re: goodbye", v)
	v, ok = slotValue(t, store, l.Request)
	require.True(t, ok)
	assert.Equal(t, "goodbye", v)
}

func TestExchangeTimesOut(t *testing.T) {
	store := mailbox.NewLocalStore(t.TempDir(), 0)
	obs := &recordingObserver{}
	cfg := testConfig()
	cfg.Timeout = 50 * time.Millisecond
	c, err := New(store, cfg, WithObserver(obs))
	require.NoError(t, err)

	res, err := c.Exchange(context.Background(), Request{Utterance: "anyone there?"})
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, OutcomeTimedOut, res.Outcome)
	assert.False(t, res.PublishedAt.IsZero())
	assert.True(t, res.ReadyAt.IsZero())
	assert.Equal(t, []string{OutcomeTimedOut}, obs.outcomes)

	// The abandoned request is withdrawn so a late agent does not answer it.
	assertEmpty(t, store)
}

func TestExchangeTimesOutWhileQueued(t *testing.T) {
	store := mailbox.NewLocalStore(t.TempDir(), 0)
	c := newChannel(t, store, func(cfg *Config) { cfg.Timeout = 50 * time.Millisecond })

	c.busy <- struct{}{}
	defer func() { <-c.busy }()

	res, err := c.Exchange(context.Background(), Request{Utterance: "goodbye"})
	require.ErrorIs(t, err, ErrTimeout)
	assert.True(t, res.PublishedAt.IsZero())
	assertEmpty(t, store)
}

func TestExchangeWithoutTimeoutWaitsForCancel(t *testing.T) {
	store := mailbox.NewLocalStore(t.TempDir(), 0)
	c := newChannel(t, store, func(cfg *Config) { cfg.Timeout = 0 })

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	res, err := c.Exchange(ctx, Request{Utterance: "hello"})
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Equal(t, OutcomeCancelled, res.Outcome)
	assertEmpty(t, store)
}

func TestExchangeResponseVanished(t *testing.T) {
	ctx := context.Background()
	store := mailbox.NewLocalStore(t.TempDir(), 0)
	c := newChannel(t, store)

	done := make(chan error, 1)
	go func() {
		_, err := c.Exchange(ctx, Request{Utterance: "hello"})
		done <- err
	}()
	require.Eventually(t, func() bool {
		ok, _ := store.Exists(ctx, c.Layout().Request)
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	// An agent that marks ready without leaving a payload behind.
	require.NoError(t, store.WriteAtomic(ctx, c.Layout().Marker, nil))

	require.ErrorIs(t, <-done, ErrResponseVanished)
}

func TestExchangeEmptyReply(t *testing.T) {
	store := mailbox.NewLocalStore(t.TempDir(), 0)
	startAgent(t, store, agent.ResponderFunc(func(context.Context, string) (string, error) { return "", nil }))
	c := newChannel(t, store)

	res, err := c.Exchange(context.Background(), Request{Utterance: "say nothing"})
	require.NoError(t, err)
	assert.Equal(t, "", res.Reply)
	assertEmpty(t, store)
}
