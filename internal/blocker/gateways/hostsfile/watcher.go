package hostsfile

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dzli1/blocking/internal/blocker/common/log"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher fires a callback when another program rewrites the hosts table,
// so external edits get reconciled right away instead of waiting for the
// next tick. The parent directory is watched because editors and package
// managers replace the file by rename, which silently drops a watch held
// on the file itself.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func()
	logger   log.Logger
}

// NewWatcher returns a watcher for the table at path. onChange runs on the
// watcher goroutine after events settle for the debounce window.
func NewWatcher(path string, debounce time.Duration, onChange func(), logger log.Logger) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{path: path, debounce: debounce, onChange: onChange, logger: logger}
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting hosts watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	w.logger.Info(map[string]any{"dir": dir, "file": w.path}, "watching hosts table")

	// armed only while a change is settling
	timer := time.NewTimer(time.Hour)
	timer.Stop()

	base := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if !ev.Op.Has(fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove) {
				continue
			}
			w.logger.Debug(map[string]any{
				"op":   ev.Op.String(),
				"file": ev.Name,
			}, "hosts table changed externally")
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn(map[string]any{"error": err.Error()}, "hosts watcher error")

		case <-timer.C:
			w.onChange()
		}
	}
}
