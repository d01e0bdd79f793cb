package services

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// WatchSnapshot reloads store whenever its file is written or renamed into
// place. The directory is watched because the scanner replaces the file by
// rename. It blocks until ctx is done.
func WatchSnapshot(ctx context.Context, store *SnapshotStore) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(store.Path())
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	log.Info().Str("dir", dir).Msg("SnapshotWatcher: watching for new snapshots")

	target := filepath.Clean(store.Path())
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Create|fsnotify.Write|fsnotify.Rename) {
				continue
			}
			if err := store.Reload(); err != nil {
				log.Warn().Err(err).Str("event", event.Op.String()).Msg("SnapshotWatcher: reload failed")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("SnapshotWatcher: watcher error")
		}
	}
}
