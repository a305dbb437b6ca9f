package mailbox

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// DefaultFileMode lets an agent running as another user read the slots.
const DefaultFileMode fs.FileMode = 0o644

// LocalStore keeps each slot as a file under a directory.
type LocalStore struct {
	dir  string
	mode fs.FileMode
}

// NewLocalStore returns a store rooted at dir. A zero mode uses DefaultFileMode.
func NewLocalStore(dir string, mode fs.FileMode) *LocalStore {
	if mode == 0 {
		mode = DefaultFileMode
	}
	return &LocalStore{dir: dir, mode: mode}
}

// Dir returns the mailbox directory.
func (s *LocalStore) Dir() string {
	return s.dir
}

func (s *LocalStore) path(slot string) (string, error) {
	if err := ValidateSlot(slot); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, filepath.FromSlash(slot)), nil
}

// WriteAtomic writes content to a temporary file next to the slot, syncs it and
// renames it over the slot.
func (s *LocalStore) WriteAtomic(ctx context.Context, slot string, content []byte) (err error) {
	target, err := s.path(slot)
	if err != nil {
		return err
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", slot, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(content); err != nil {
		return fmt.Errorf("failed to write %s: %w", slot, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", slot, err)
	}
	if err = tmp.Chmod(s.mode); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", slot, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", slot, err)
	}
	if err = os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("failed to rename %s into place: %w", slot, err)
	}
	return nil
}

func (s *LocalStore) Exists(ctx context.Context, slot string) (bool, error) {
	p, err := s.path(slot)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to stat %s: %w", slot, err)
	}
}

func (s *LocalStore) Read(ctx context.Context, slot string) ([]byte, error) {
	p, err := s.path(slot)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p) //nolint:gosec // G304: path is validated to stay under dir
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(slot)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", slot, err)
	}
	return data, nil
}

func (s *LocalStore) Delete(ctx context.Context, slot string) error {
	p, err := s.path(slot)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", slot, err)
	}
	return nil
}

// Watch signals on every filesystem event that names the slot. Watcher errors
// such as queue overflow are reported as a signal too.
func (s *LocalStore) Watch(ctx context.Context, slot string) (<-chan struct{}, error) {
	target, err := s.path(slot)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	out := make(chan struct{}, 1)
	signal := func() {
		select {
		case out <- struct{}{}:
		default:
		}
	}

	go func() {
		defer close(out)
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) == target {
					signal()
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
				signal()
			}
		}
	}()

	return out, nil
}
