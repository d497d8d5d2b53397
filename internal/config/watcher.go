package config

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce is how long the watcher waits after a matching event
// before reading the file, so that an editor's save sequence
// (write-then-rename, truncate-then-write) has finished. Events are not
// merged: every matching event still triggers its own Reload.
const reloadDebounce = 50 * time.Millisecond

// StartWatcher spawns a background goroutine that watches the config
// file's directory and calls Reload on every write or create event
// targeting the config path. It returns once the watcher is established; the
// goroutine runs until the process exits or the provided done channel
// is closed.
func (s *Store) StartWatcher(logger *slog.Logger, done <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.configPath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	target := filepath.Clean(s.configPath)

	go func() {
		defer watcher.Close()

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}

				if filepath.Clean(event.Name) != target {
					continue
				}

				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}

				time.Sleep(reloadDebounce)

				if err := s.Reload(); err != nil {
					logger.Error("config reload failed", "error", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}

				logger.Error("config watch error", "error", err)
			case <-done:
				return
			}
		}
	}()

	logger.Info("config file watcher started", "path", s.configPath)

	return nil
}
