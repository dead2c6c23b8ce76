package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Change reports that the file behind a key appeared or disappeared
type Change struct {
	Key    int
	Exists bool
}

// Watcher reports slot files created or removed outside the panel session
type Watcher struct {
	store   *Store
	watcher *fsnotify.Watcher
	changes chan Change
}

// NewWatcher watches the store directory, creating it if needed
func NewWatcher(store *Store) (*Watcher, error) {
	if err := store.EnsureDir(); err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fw.Add(store.Dir()); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", store.Dir(), err)
	}

	return &Watcher{
		store:   store,
		watcher: fw,
		changes: make(chan Change, 64),
	}, nil
}

// Changes delivers slot changes until Run returns
func (w *Watcher) Changes() <-chan Change {
	return w.changes
}

// Run translates filesystem events until ctx is cancelled, then closes Changes
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.changes)
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			change, ok := w.translate(event)
			if !ok {
				continue
			}
			slog.Debug("Recording slot changed", "key", change.Key, "exists", change.Exists, "op", event.Op.String())
			select {
			case w.changes <- change:
			default:
				slog.Warn("Dropping slot change, consumer is behind", "key", change.Key)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("File watcher error", "dir", w.store.Dir(), "error", err)
		}
	}
}

func (w *Watcher) translate(event fsnotify.Event) (Change, bool) {
	key := w.store.KeyForPath(event.Name)
	if key < 0 {
		return Change{}, false
	}

	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		return Change{Key: key, Exists: true}, true
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return Change{Key: key, Exists: w.store.Exists(key)}, true
	}
	return Change{}, false
}
