package config

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay coalesces the burst of events a single save produces.
// Editors typically emit several writes (or a create, for atomic saves)
// per save; the file is reloaded once, after the burst settles.
const debounceDelay = 200 * time.Millisecond

// Watch monitors the config file at path and calls onChange with the freshly
// parsed Config after each save. Blocks until ctx is cancelled.
//
// Reloads are advisory: the new hub endpoint and identity are offered as the
// page defaults, but an active hub connection is never restarted. A save
// that fails to parse or validate is skipped, keeping the previous values.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	slog.Info("config: watching for saves", "path", path)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			// (Re)arm the debounce timer; only the last event of a burst
			// triggers a reload.
			pending = time.After(debounceDelay)

		case <-pending:
			pending = nil

			cfg, err := Load(path)
			// An atomic save replaced the inode; follow the new file either
			// way so the next save is still seen.
			_ = watcher.Add(path)
			if err != nil {
				slog.Error("config: reload skipped, keeping current values",
					"path", path, "err", err)
				continue
			}

			slog.Info("config: reloaded",
				"path", path,
				"hub_endpoint", cfg.Hub.Endpoint,
				"hub_identity", cfg.Hub.Identity)
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
