package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

// HandoffConfig tunes the exchange loop
type HandoffConfig struct {
	// Timeout is a duration, or "0"/"none" to wait forever.
	Timeout        string        `env:"HANDOFF_TIMEOUT" yaml:"timeout" default:"5m"`
	BusyPolicy     string        `env:"HANDOFF_BUSY_POLICY" yaml:"busy_policy" default:"queue"` // "queue" or "reject"
	PollInitial    time.Duration `env:"HANDOFF_POLL_INITIAL" yaml:"poll_initial" default:"500ms"`
	PollMax        time.Duration `env:"HANDOFF_POLL_MAX" yaml:"poll_max" default:"2s"`
	PollMultiplier float64       `env:"HANDOFF_POLL_MULTIPLIER" yaml:"poll_multiplier" default:"1.5"`
	DisableWatch   bool          `env:"HANDOFF_DISABLE_WATCH" yaml:"disable_watch"`

	// AcceptAcked must be set when the agent deletes requests on intake (AGENT_ACK).
	AcceptAcked bool `env:"HANDOFF_ACCEPT_ACKED" yaml:"accept_acked"`
}

// TimeoutDuration returns the parsed Timeout. Zero means unbounded.
func (h HandoffConfig) TimeoutDuration() (time.Duration, error) {
	switch strings.ToLower(strings.TrimSpace(h.Timeout)) {
	case "0", "none", "":
		return 0, nil
	}
	d, err := time.ParseDuration(h.Timeout)
	if err != nil {
		return 0, fmt.Errorf("handoff timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("handoff timeout must not be negative, got %s", d)
	}
	return d, nil
}

func (h HandoffConfig) Validate() error {
	var result error
	if _, err := h.TimeoutDuration(); err != nil {
		result = multierror.Append(result, err)
	}
	if h.BusyPolicy != "queue" && h.BusyPolicy != "reject" {
		result = multierror.Append(result, fmt.Errorf("busy_policy must be either 'queue' or 'reject', got %q", h.BusyPolicy))
	}
	if h.PollInitial <= 0 || h.PollMax < h.PollInitial {
		result = multierror.Append(result, fmt.Errorf("poll intervals must satisfy 0 < poll_initial <= poll_max"))
	}
	if h.PollMultiplier < 1 {
		result = multierror.Append(result, fmt.Errorf("poll_multiplier must be at least 1, got %g", h.PollMultiplier))
	}
	return result
}
