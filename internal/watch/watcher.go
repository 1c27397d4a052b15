// Package watch reloads the item store when a host document is edited
// outside the application.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/sitekeeper/internal/models"
)

// DefaultDebounce is how long the watcher waits for a burst of events on a
// document to settle before reloading it.
const DefaultDebounce = 200 * time.Millisecond

// Reloader is the part of the item store the watcher drives.
type Reloader interface {
	File(kind models.Kind) (string, error)
	Reload(kind models.Kind) (bool, error)
}

// Watch observes the directories holding the host documents and calls
// Reload for a kind once events on its document have settled. Reload
// ignores content the store wrote itself, so the application's own saves
// never bounce back as external edits. Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, store Reloader, siteRoot string, debounce time.Duration, logger *slog.Logger) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	targets := make(map[string]models.Kind, len(models.Kinds))
	dirs := make(map[string]struct{})
	for _, k := range models.Kinds {
		rel, err := store.File(k)
		if err != nil {
			return err
		}
		abs := filepath.Clean(filepath.Join(siteRoot, rel))
		targets[abs] = k
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	watched := 0
	for d := range dirs {
		if err := w.Add(d); err != nil {
			logger.Warn("watcher: cannot watch directory",
				slog.String("dir", d),
				slog.String("error", err.Error()))
			continue
		}
		watched++
	}
	if watched == 0 {
		return fmt.Errorf("watcher: no document directory could be watched under %s", siteRoot)
	}

	logger.Info("watcher: started", slog.String("root", siteRoot))

	// One debounce timer per kind.
	timers := make(map[models.Kind]*time.Timer, len(models.Kinds))
	fired := make(chan models.Kind, len(models.Kinds))
	schedule := func(k models.Kind) {
		if t, ok := timers[k]; ok {
			t.Reset(debounce)
			return
		}
		timers[k] = time.AfterFunc(debounce, func() {
			select {
			case fired <- k:
			default:
			}
		})
	}
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case k := <-fired:
			changed, err := store.Reload(k)
			if err != nil {
				logger.Warn("watcher: reload failed",
					slog.String("kind", string(k)),
					slog.String("error", err.Error()))
				continue
			}
			if changed {
				logger.Debug("watcher: reloaded", slog.String("kind", string(k)))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			k, tracked := targets[filepath.Clean(ev.Name)]
			if !tracked {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			schedule(k)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
