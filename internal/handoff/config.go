package handoff

import (
	"fmt"
	"time"

	"github.com/lewisedginton/agent_handoff/internal/mailbox"
)

// BusyPolicy decides what a second concurrent Exchange does.
type BusyPolicy string

const (
	// BusyQueue waits for the running exchange to finish.
	BusyQueue BusyPolicy = "queue"
	// BusyReject fails immediately with ErrBusy.
	BusyReject BusyPolicy = "reject"
)

// Backoff controls the interval between ready-marker checks.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoff starts at the 500ms interval agents were written against.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:    500 * time.Millisecond,
		Max:        2 * time.Second,
		Multiplier: 1.5,
	}
}

// next clamps in float64 so a large multiplier cannot overflow Duration.
func (b Backoff) next(d time.Duration) time.Duration {
	n := float64(d) * b.Multiplier
	if n >= float64(b.Max) {
		return b.Max
	}
	return time.Duration(n)
}

func (b Backoff) Validate() error {
	if b.Initial <= 0 {
		return fmt.Errorf("initial poll interval must be positive")
	}
	if b.Max < b.Initial {
		return fmt.Errorf("max poll interval %s is below initial %s", b.Max, b.Initial)
	}
	if b.Multiplier < 1 {
		return fmt.Errorf("poll multiplier must be at least 1, got %g", b.Multiplier)
	}
	return nil
}

// Config configures a Channel.
type Config struct {
	Layout mailbox.Layout

	// Timeout bounds one Exchange including time spent queued. Zero waits forever.
	Timeout time.Duration

	BusyPolicy BusyPolicy
	Backoff    Backoff

	// DisableWatch turns off change notification even when the store offers it.
	DisableWatch bool

	// AcceptAcked accepts a response when the request slot is empty, for agents
	// that delete the request on intake. Otherwise an empty request slot means
	// another exchange took over the mailbox.
	AcceptAcked bool
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Layout:     mailbox.DefaultLayout(),
		Timeout:    5 * time.Minute,
		BusyPolicy: BusyQueue,
		Backoff:    DefaultBackoff(),
	}
}

func (c Config) Validate() error {
	if err := c.Layout.Validate(); err != nil {
		return err
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	switch c.BusyPolicy {
	case BusyQueue, BusyReject:
	default:
		return fmt.Errorf("unknown busy policy %q", c.BusyPolicy)
	}
	return c.Backoff.Validate()
}
