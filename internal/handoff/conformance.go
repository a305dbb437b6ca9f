package handoff

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lewisedginton/agent_handoff/internal/mailbox"
)

// CheckReadyOrdering verifies that an agent implementation writes the response
// payload completely before it creates the ready marker.
//
// It publishes utterance on store, then calls respond with a store that records
// every mutation respond makes. respond must answer the pending request once
// and return. The check fails with ErrOutOfOrder when the marker is created
// while no payload has been written, or when the payload changes after the
// marker exists. On success the mailbox is left ready to be consumed.
func CheckReadyOrdering(ctx context.Context, store mailbox.Store, layout mailbox.Layout, utterance string,
	respond func(ctx context.Context, store mailbox.Store) error,
) error {
	if err := layout.Validate(); err != nil {
		return err
	}
	for _, slot := range layout.Slots() {
		if err := store.Delete(ctx, slot); err != nil {
			return fmt.Errorf("reset %s: %w", slot, err)
		}
	}
	if err := store.WriteAtomic(ctx, layout.Request, []byte(utterance)); err != nil {
		return fmt.Errorf("publish request: %w", err)
	}

	rec := &recordingStore{Store: store, layout: layout}
	if err := respond(ctx, rec); err != nil {
		return fmt.Errorf("respond: %w", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.violation != nil {
		return rec.violation
	}
	if !rec.marked {
		return fmt.Errorf("%w: ready marker never written", ErrOutOfOrder)
	}
	if _, err := store.Read(ctx, layout.Payload); errors.Is(err, mailbox.ErrNotFound) {
		return fmt.Errorf("%w: payload missing while marker exists", ErrOutOfOrder)
	} else if err != nil {
		return err
	}
	return nil
}

// recordingStore tracks payload and marker mutations made through it.
type recordingStore struct {
	mailbox.Store
	layout mailbox.Layout

	mu        sync.Mutex
	payload   bool
	marked    bool
	violation error
}

// A payload write counts once it has returned; a marker write counts as soon
// as it starts.
func (r *recordingStore) WriteAtomic(ctx context.Context, slot string, content []byte) error {
	r.before(slot, true)
	err := r.Store.WriteAtomic(ctx, slot, content)
	if err == nil && slot == r.layout.Payload {
		r.mu.Lock()
		r.payload = true
		r.mu.Unlock()
	}
	return err
}

func (r *recordingStore) Delete(ctx context.Context, slot string) error {
	r.before(slot, false)
	return r.Store.Delete(ctx, slot)
}

func (r *recordingStore) before(slot string, write bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.violation != nil {
		return
	}

	switch slot {
	case r.layout.Payload:
		if r.marked {
			r.violation = fmt.Errorf("%w: payload changed after marker was written", ErrOutOfOrder)
			return
		}
		r.payload = false
	case r.layout.Marker:
		if write && !r.payload {
			r.violation = fmt.Errorf("%w: marker written with no payload", ErrOutOfOrder)
			return
		}
		r.marked = write
	}
}
