package cache

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vebland/clipvault/internal/recordstore"
)

// watchDebounce batches bursts of filesystem events into one rebuild.
const watchDebounce = 200 * time.Millisecond

// Watch runs an fsnotify watcher on the cache directory until ctx is
// cancelled. The directory is shared across process instances, so
// record files can appear, change, or vanish out-of-band; any such
// change schedules a debounced full index rebuild, after which cb (if
// non-nil) is invoked with kind "rebuilt".
//
// The manager's own writes also land here; the extra rebuilds they
// cause are harmless because the index is derived from disk anyway.
func Watch(ctx context.Context, m *Manager, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := m.store.Dir()
	if err := w.Add(dir); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("dir", dir))

	var rebuildTimer *time.Timer
	var rebuildCh <-chan time.Time

	scheduleRebuild := func() {
		if rebuildTimer == nil {
			rebuildTimer = time.NewTimer(watchDebounce)
			rebuildCh = rebuildTimer.C
		} else {
			rebuildTimer.Reset(watchDebounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if rebuildTimer != nil {
				rebuildTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-rebuildCh:
			if err := m.RebuildIndex(); err != nil {
				logger.Warn("watcher: rebuild failed", slog.String("error", err.Error()))
				continue
			}
			logger.Debug("watcher: index rebuilt")
			if cb != nil {
				cb("rebuilt", "")
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			// In-flight temp files churn constantly; only settled
			// record files matter.
			if strings.HasPrefix(name, ".clipvault-tmp-") {
				continue
			}
			if !strings.HasSuffix(name, recordstore.Ext) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename|fsnotify.Chmod) != 0 {
				scheduleRebuild()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
