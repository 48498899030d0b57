// Package watcher triggers reloads when table CSV files change on
// disk. Editors tend to produce bursts of write/rename events for a
// single save, so changes are debounced before the callback fires.
package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the window within which events are coalesced.
const DefaultDebounce = 500 * time.Millisecond

// DirWatcher watches a directory of table CSV files and invokes a
// callback once per burst of changes.
type DirWatcher struct {
	dir      string
	debounce time.Duration
	onChange func(context.Context)
	logger   *slog.Logger

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// Option configures a DirWatcher.
type Option func(*DirWatcher)

// WithDebounce overrides the debounce window.
func WithDebounce(d time.Duration) Option {
	return func(w *DirWatcher) { w.debounce = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *DirWatcher) { w.logger = l }
}

// New creates a watcher for dir that calls onChange after CSV changes
// settle.
func New(dir string, onChange func(context.Context), opts ...Option) *DirWatcher {
	w := &DirWatcher{
		dir:      dir,
		debounce: DefaultDebounce,
		onChange: onChange,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is cancelled. Non-fatal event-stream errors
// are logged and watching continues.
func (w *DirWatcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fsw.Close() }()

	if err := fsw.Add(w.dir); err != nil {
		return err
	}
	w.logger.Info("watching table directory", slog.String("dir", w.dir))

	for {
		select {
		case <-ctx.Done():
			w.stop()
			return ctx.Err()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("table file event",
				slog.String("path", event.Name),
				slog.String("op", event.Op.String()))
			w.schedule(ctx)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

// relevant filters out events for files we do not ingest, plus the
// temp files editors write during atomic saves.
func (w *DirWatcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") {
		return false
	}
	return strings.HasSuffix(name, ".csv")
}

func (w *DirWatcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if ctx.Err() != nil {
			return
		}
		if w.onChange != nil {
			w.onChange(ctx)
		}
	})
}

func (w *DirWatcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
}
