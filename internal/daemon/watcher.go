package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"log/slog"

	"github.com/fsnotify/fsnotify"

	"montage/internal/logging"
)

// inboxWatcher registers files dropped into the inbox directory as assets.
type inboxWatcher struct {
	dir     string
	daemon  *Daemon
	logger  *slog.Logger
	watcher *fsnotify.Watcher

	// settleInterval is how long a file's size must hold steady before it
	// counts as fully written.
	settleInterval time.Duration
}

func newInboxWatcher(dir string, d *Daemon, logger *slog.Logger) *inboxWatcher {
	return &inboxWatcher{
		dir:            dir,
		daemon:         d,
		logger:         logger.With(logging.String(logging.FieldComponent, "inbox-watcher")),
		settleInterval: 500 * time.Millisecond,
	}
}

func (w *inboxWatcher) start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create inbox dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create inbox watcher: %w", err)
	}
	if err := watcher.Add(w.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch inbox dir: %w", err)
	}
	w.watcher = watcher

	go w.run(ctx)
	w.logger.Info("inbox watcher started", logging.String("dir", w.dir))
	return nil
}

func (w *inboxWatcher) stop() {
	if w.watcher != nil {
		_ = w.watcher.Close()
		w.watcher = nil
	}
}

func (w *inboxWatcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			name := filepath.Base(event.Name)
			if strings.HasPrefix(name, ".") {
				continue
			}
			go w.ingest(ctx, event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("inbox watch error", logging.Error(err))
		}
	}
}

// ingest waits for the file to finish being written, then registers it.
func (w *inboxWatcher) ingest(ctx context.Context, path string) {
	if !w.waitForStable(ctx, path) {
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	if _, err := w.daemon.RegisterUpload(ctx, path); err != nil {
		w.logger.Warn("inbox registration failed",
			logging.String("path", path),
			logging.Error(err))
	}
}

// waitForStable returns true once the file size has held steady across one
// settle interval. Returns false when the file disappears or ctx is done.
func (w *inboxWatcher) waitForStable(ctx context.Context, path string) bool {
	var lastSize int64 = -1
	for {
		info, err := os.Stat(path)
		if err != nil {
			return false
		}
		if info.IsDir() {
			return false
		}
		if info.Size() == lastSize && lastSize >= 0 {
			return true
		}
		lastSize = info.Size()

		select {
		case <-ctx.Done():
			return false
		case <-time.After(w.settleInterval):
		}
	}
}
