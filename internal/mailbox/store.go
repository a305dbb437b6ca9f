// Package mailbox implements the shared slot store that the HTTP service and
// an external agent process use to pass one message at a time.
//
// A slot is a named key holding raw bytes. Every backend guarantees that a
// reader sees either the previous complete value or the new complete value of
// a slot, never a partial write.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned by Read when the slot does not exist.
var ErrNotFound = errors.New("slot not found")

// ErrInvalidSlot is returned when a slot name would escape the mailbox.
var ErrInvalidSlot = errors.New("invalid slot name")

// Store is a keyed set of slots.
type Store interface {
	// WriteAtomic replaces the slot content. On error the slot is unchanged.
	WriteAtomic(ctx context.Context, slot string, content []byte) error

	// Exists reports whether the slot is present. It never blocks on the slot.
	Exists(ctx context.Context, slot string) (bool, error)

	// Read returns the full slot content, or an error wrapping ErrNotFound.
	Read(ctx context.Context, slot string) ([]byte, error)

	// Delete removes the slot. Deleting an absent slot is not an error.
	Delete(ctx context.Context, slot string) error
}

// Watcher is implemented by stores that can signal slot changes. The returned
// channel receives a value after the slot may have changed and is closed when
// ctx is done. Signals can be coalesced or spurious, so callers must re-check.
type Watcher interface {
	Watch(ctx context.Context, slot string) (<-chan struct{}, error)
}

// Layout names the three slots of one mailbox.
type Layout struct {
	Request string `yaml:"request"`
	Payload string `yaml:"payload"`
	Marker  string `yaml:"marker"`
}

// DefaultLayout returns the slot names existing agents already watch.
func DefaultLayout() Layout {
	return Layout{
		Request: "user_input.txt",
		Payload: "agent_output.txt",
		Marker:  "agent_output_completed.txt",
	}
}

// Slots lists the slots in reset order.
func (l Layout) Slots() []string {
	return []string{l.Request, l.Payload, l.Marker}
}

func (l Layout) Validate() error {
	seen := make(map[string]string, 3)
	for _, s := range []struct{ role, name string }{
		{"request", l.Request},
		{"payload", l.Payload},
		{"marker", l.Marker},
	} {
		if err := ValidateSlot(s.name); err != nil {
			return fmt.Errorf("%s slot: %w", s.role, err)
		}
		if other, ok := seen[s.name]; ok {
			return fmt.Errorf("%s slot %q is also the %s slot", s.role, s.name, other)
		}
		seen[s.name] = s.role
	}
	return nil
}

// ValidateSlot accepts relative, slash separated names that stay inside the
// mailbox root.
func ValidateSlot(slot string) error {
	if slot == "" || strings.HasSuffix(slot, "/") || !filepath.IsLocal(filepath.FromSlash(slot)) {
		return fmt.Errorf("%w: %q", ErrInvalidSlot, slot)
	}
	return nil
}

func notFound(slot string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, slot)
}
