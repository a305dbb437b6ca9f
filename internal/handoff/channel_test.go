package handoff

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewisedginton/agent_handoff/internal/agent"
	"github.com/lewisedginton/agent_handoff/internal/mailbox"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = 5 * time.Second
	cfg.Backoff = Backoff{Initial: 5 * time.Millisecond, Max: 20 * time.Millisecond, Multiplier: 2}
	return cfg
}

func newChannel(t *testing.T, store mailbox.Store, mutate ...func(*Config)) *Channel {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := New(store, cfg)
	require.NoError(t, err)
	return c
}

func slotValue(t *testing.T, s mailbox.Store, slot string) (string, bool) {
	t.Helper()
	data, err := s.Read(context.Background(), slot)
	if errors.Is(err, mailbox.ErrNotFound) {
		return "", false
	}
	require.NoError(t, err)
	return string(data), true
}

func assertEmpty(t *testing.T, s mailbox.Store) {
	t.Helper()
	for _, slot := range mailbox.DefaultLayout().Slots() {
		ok, err := s.Exists(context.Background(), slot)
		require.NoError(t, err)
		assert.False(t, ok, "slot %s should be absent", slot)
	}
}

// startAgent runs a reference agent until the test ends.
func startAgent(t *testing.T, store mailbox.Store, r agent.Responder, opts ...agent.Option) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c := agent.NewConsumer(store, mailbox.DefaultLayout(), r,
			append([]agent.Option{agent.WithPollInterval(5 * time.Millisecond)}, opts...)...)
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

var cast = agent.ResponderFunc(func(_ context.Context, utterance string) (string, error) {
	if utterance == "who stars in the wandering earth 2?" {
		return "Wu Jing and Andy Lau.", nil
	}
	return "re: " + utterance, nil
})

type recordingObserver struct {
	mu       sync.Mutex
	started  int
	outcomes []string
}

func (r *recordingObserver) ExchangeStarted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
}

func (r *recordingObserver) ExchangeFinished(outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func TestResetIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := mailbox.NewLocalStore(t.TempDir(), 0)
	c := newChannel(t, store)
	l := c.Layout()

	require.NoError(t, c.Reset(ctx))
	assertEmpty(t, store)

	for _, slot := range l.Slots() {
		require.NoError(t, store.WriteAtomic(ctx, slot, []byte("stale")))
	}
	require.NoError(t, c.Reset(ctx))
	assertEmpty(t, store)
	require.NoError(t, c.Reset(ctx))
	assertEmpty(t, store)
}

func TestResetAttemptsEverySlot(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	c := newChannel(t, mailbox.NewRedisStore(client, "handoff"))

	mr.Close()
	err := c.Reset(ctx)
	require.Error(t, err)
	for _, slot := range c.Layout().Slots() {
		assert.Contains(t, err.Error(), slot)
	}
}

func TestPublishOverwritesPendingRequest(t *testing.T) {
	ctx := context.Background()
	store := mailbox.NewLocalStore(t.TempDir(), 0)
	a := newChannel(t, store)
	b := newChannel(t, store)

	require.NoError(t, a.Reset(ctx))
	require.NoError(t, a.Publish(ctx, "hello"))
	require.NoError(t, b.Reset(ctx))
	require.NoError(t, b.Publish(ctx, "goodbye"))

	request, ok := slotValue(t, store, a.Layout().Request)
	require.True(t, ok)
	assert.Equal(t, "goodbye", request)
}

func TestAwait(t *testing.T) {
	stores := map[string]func(t *testing.T) mailbox.Store{
		"local with watch": func(t *testing.T) mailbox.Store {
			return mailbox.NewLocalStore(t.TempDir(), 0)
		},
		"redis polling": func(t *testing.T) mailbox.Store {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return mailbox.NewRedisStore(client, "handoff")
		},
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			c := newChannel(t, store)
			ctx := context.Background()

			go func() {
				time.Sleep(30 * time.Millisecond)
				_ = store.WriteAtomic(ctx, c.Layout().Payload, []byte("done"))
				_ = store.WriteAtomic(ctx, c.Layout().Marker, nil)
			}()
			require.NoError(t, c.Await(ctx))

			ok, err := store.Exists(ctx, c.Layout().Payload)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestAwaitWakesOnWatchBeforeLongInterval(t *testing.T) {
	ctx := context.Background()
	store := mailbox.NewLocalStore(t.TempDir(), 0)
	c := newChannel(t, store, func(cfg *Config) {
		cfg.Backoff = Backoff{Initial: time.Minute, Max: time.Minute, Multiplier: 1}
	})

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = store.WriteAtomic(ctx, c.Layout().Marker, nil)
	}()

	start := time.Now()
	require.NoError(t, c.Await(ctx))
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestAwaitStopsWhenRequestReplaced(t *testing.T) {
	for name, disableWatch := range map[string]bool{"watch": false, "polling": true} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := mailbox.NewLocalStore(t.TempDir(), 0)
			c := newChannel(t, store, func(cfg *Config) { cfg.DisableWatch = disableWatch })
			require.NoError(t, c.Publish(ctx, "hello"))

			done := make(chan error, 1)
			go func() { done <- c.await(ctx, "hello") }()

			// A reset by another exchange leaves the slot empty for a moment.
			require.NoError(t, store.Delete(ctx, c.Layout().Request))
			time.Sleep(30 * time.Millisecond)
			require.NoError(t, c.Publish(ctx, "goodbye"))

			select {
			case err := <-done:
				assert.ErrorIs(t, err, ErrSuperseded)
			case <-time.After(2 * time.Second):
				t.Fatal("await did not notice the replaced request")
			}
		})
	}
}

func TestAwaitHonoursContext(t *testing.T) {
	c := newChannel(t, mailbox.NewLocalStore(t.TempDir(), 0))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, c.Await(ctx), context.DeadlineExceeded)
}

func TestConsumeClearsResponse(t *testing.T) {
	ctx := context.Background()
	store := mailbox.NewLocalStore(t.TempDir(), 0)
	c := newChannel(t, store)
	l := c.Layout()

	require.NoError(t, store.WriteAtomic(ctx, l.Payload, []byte("line one\nline two\n")))
	require.NoError(t, store.WriteAtomic(ctx, l.Marker, nil))

	reply, err := c.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", reply)
	assertEmpty(t, store)
}

func TestConsumeWithoutPayload(t *testing.T) {
	ctx := context.Background()
	store := mailbox.NewLocalStore(t.TempDir(), 0)
	c := newChannel(t, store)
	require.NoError(t, store.WriteAtomic(ctx, c.Layout().Marker, nil))

	_, err := c.Consume(ctx)
	assert.ErrorIs(t, err, ErrResponseVanished)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	store := mailbox.NewLocalStore(t.TempDir(), 0)
	for name, mutate := range map[string]func(*Config){
		"duplicate slots":  func(c *Config) { c.Layout.Marker = c.Layout.Payload },
		"negative timeout": func(c *Config) { c.Timeout = -time.Second },
		"busy policy":      func(c *Config) { c.BusyPolicy = "drop" },
		"zero interval":    func(c *Config) { c.Backoff.Initial = 0 },
		"max below start":  func(c *Config) { c.Backoff.Max = time.Millisecond },
		"shrinking":        func(c *Config) { c.Backoff.Multiplier = 0.5 },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			mutate(&cfg)
			_, err := New(store, cfg)
			assert.Error(t, err)
		})
	}
}

func TestBackoffGrowsToMax(t *testing.T) {
	b := Backoff{Initial: 500 * time.Millisecond, Max: 2 * time.Second, Multiplier: 1.5}
	d := b.Initial
	var seen []time.Duration
	for i := 0; i < 6; i++ {
		d = b.next(d)
		seen = append(seen, d)
	}
	assert.Equal(t, []time.Duration{
		750 * time.Millisecond,
		1125 * time.Millisecond,
		1687500 * time.Microsecond,
		2 * time.Second,
		2 * time.Second,
		2 * time.Second,
	}, seen)
}

func TestBackoffClampsHugeMultiplier(t *testing.T) {
	b := Backoff{Initial: 500 * time.Millisecond, Max: 2 * time.Second, Multiplier: 1e300}
	require.NoError(t, b.Validate())
	assert.Equal(t, 2*time.Second, b.next(b.Initial))
	assert.Equal(t, 2*time.Second, b.next(b.Max))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, OutcomeSucceeded, Outcome(nil))
	assert.Equal(t, OutcomeTimedOut, Outcome(ErrTimeout))
	assert.Equal(t, OutcomeBusy, Outcome(ErrBusy))
	assert.Equal(t, OutcomeSuperseded, Outcome(ErrSuperseded))
	assert.Equal(t, OutcomeVanished, Outcome(ErrResponseVanished))
	assert.Equal(t, OutcomeCancelled, Outcome(context.Canceled))
	assert.Equal(t, OutcomeFailed, Outcome(errors.New("disk full")))
}
