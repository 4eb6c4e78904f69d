package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/uisync/internal/logging"
)

// DefaultDebounce coalesces the bursts of events editors produce on save.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reloads a config file when it changes.
type Watcher struct {
	path     string
	debounce time.Duration
	log      *slog.Logger
	lookup   func(string) (string, bool)
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithDebounce sets the quiet period before a reload.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// WithWatchLogger sets the logger for reload failures.
func WithWatchLogger(l *slog.Logger) WatchOption {
	return func(w *Watcher) { w.log = l }
}

// NewWatcher creates a watcher for path.
func NewWatcher(path string, opts ...WatchOption) *Watcher {
	w := &Watcher{path: path, debounce: DefaultDebounce}
	for _, opt := range opts {
		opt(w)
	}
	w.log = logging.OrDiscard(w.log)
	if w.lookup == nil {
		w.lookup = lookupEnv
	}
	return w
}

// Watch calls fn with the reloaded config after each change until ctx is
// done. A file that fails to load or validate is logged and skipped; the
// previous config stays in effect.
func Watch(ctx context.Context, path string, fn func(*Config), opts ...WatchOption) error {
	return NewWatcher(path, opts...).Run(ctx, fn)
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context, fn func(*Config)) error {
	abs, err := filepath.Abs(w.path)
	if err != nil {
		return err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	defer fsw.Close()

	// Editors replace files by rename, so watch the directory.
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			timer.Reset(w.debounce)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("config watcher error", "path", abs, "error", err)
		case <-timer.C:
			cfg, err := load(abs, w.lookup)
			if err != nil {
				w.log.Warn("config reload failed", "path", abs, "error", err)
				continue
			}
			w.log.Info("config reloaded", "path", abs)
			fn(cfg)
		}
	}
}
