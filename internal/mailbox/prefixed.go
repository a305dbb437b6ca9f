package mailbox

import (
	"context"
	"errors"
)

// PrefixedStore scopes every slot of an underlying store under a namespace,
// so several mailboxes can share one directory, bucket or Redis database.
type PrefixedStore struct {
	store  Store
	prefix string
}

func NewPrefixedStore(store Store, prefix string) *PrefixedStore {
	return &PrefixedStore{store: store, prefix: prefix}
}

// slot validates before prefixing so that "../x" cannot climb out of the
// namespace into a sibling.
func (p *PrefixedStore) slot(slot string) (string, error) {
	if err := ValidateSlot(slot); err != nil {
		return "", err
	}
	if p.prefix == "" {
		return slot, nil
	}
	return p.prefix + "/" + slot, nil
}

func (p *PrefixedStore) WriteAtomic(ctx context.Context, slot string, content []byte) error {
	full, err := p.slot(slot)
	if err != nil {
		return err
	}
	return p.store.WriteAtomic(ctx, full, content)
}

func (p *PrefixedStore) Exists(ctx context.Context, slot string) (bool, error) {
	full, err := p.slot(slot)
	if err != nil {
		return false, err
	}
	return p.store.Exists(ctx, full)
}

func (p *PrefixedStore) Read(ctx context.Context, slot string) ([]byte, error) {
	full, err := p.slot(slot)
	if err != nil {
		return nil, err
	}
	data, err := p.store.Read(ctx, full)
	if errors.Is(err, ErrNotFound) {
		return nil, notFound(slot)
	}
	return data, err
}

func (p *PrefixedStore) Delete(ctx context.Context, slot string) error {
	full, err := p.slot(slot)
	if err != nil {
		return err
	}
	return p.store.Delete(ctx, full)
}

// Unwrap returns the underlying store.
func (p *PrefixedStore) Unwrap() Store {
	return p.store
}

// WatcherFor returns a Watcher for store if its backend supports change
// notification.
func WatcherFor(store Store) (Watcher, bool) {
	switch s := store.(type) {
	case *PrefixedStore:
		inner, ok := WatcherFor(s.store)
		if !ok {
			return nil, false
		}
		return prefixedWatcher{inner: inner, p: s}, true
	case Watcher:
		return s, true
	}
	return nil, false
}

type prefixedWatcher struct {
	inner Watcher
	p     *PrefixedStore
}

func (w prefixedWatcher) Watch(ctx context.Context, slot string) (<-chan struct{}, error) {
	full, err := w.p.slot(slot)
	if err != nil {
		return nil, err
	}
	return w.inner.Watch(ctx, full)
}
