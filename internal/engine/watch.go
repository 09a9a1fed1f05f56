package engine

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/leapstack-labs/leaporm/internal/loader"
)

// SyncHandler receives the outcome of every sync started by Watch.
type SyncHandler func(*SyncResult, error)

// Watch syncs once, then re-syncs whenever a model source below the models
// directory is written, created, removed or renamed. Bursts of events are
// collapsed into one sync after the debounce period. Watch returns when ctx
// is done.
func (e *Engine) Watch(ctx context.Context, onSync SyncHandler) error {
	if onSync == nil {
		onSync = func(*SyncResult, error) {}
	}
	dir := e.loader.Dir()
	if dir == "" {
		return fmt.Errorf("no models directory configured")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watchDir(watcher, dir); err != nil {
		return fmt.Errorf("failed to watch models dir: %w", err)
	}

	onSync(e.Sync(ctx))
	e.logger.Info("watching model sources", slog.String("dir", dir))

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) && isDir(event.Name) {
				if err := watchDir(watcher, event.Name); err != nil {
					e.logger.Warn("failed to watch directory", slog.String("dir", event.Name), slog.String("error", err.Error()))
				}
				continue
			}
			if !relevant(event) {
				continue
			}

			e.logger.Debug("change detected", slog.String("path", event.Name), slog.String("op", event.Op.String()))
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(e.debounce, func() {
				if ctx.Err() != nil {
					return
				}
				onSync(e.Sync(ctx))
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			e.logger.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

func relevant(event fsnotify.Event) bool {
	if !loader.IsSourceFile(event.Name) {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}

// watchDir recursively adds a directory to the watcher.
func watchDir(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
