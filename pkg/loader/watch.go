package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/goliatone/go-formflow/pkg/model"
)

// DefaultDebounce is how long the watcher waits for a burst of writes to
// settle before reloading.
const DefaultDebounce = 150 * time.Millisecond

// Handler receives each template that reloads cleanly.
type Handler func(tpl model.FormTemplate, path string)

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatchLogger routes watcher diagnostics to logger.
func WithWatchLogger(logger *slog.Logger) WatchOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithErrorHandler receives parse and watch errors. Without it errors are
// only logged.
func WithErrorHandler(fn func(error)) WatchOption {
	return func(w *Watcher) {
		w.onError = fn
	}
}

// WithLoader parses with a custom Loader.
func WithLoader(l *Loader) WatchOption {
	return func(w *Watcher) {
		if l != nil {
			w.loader = l
		}
	}
}

// Watcher reloads template files in a directory as they change.
type Watcher struct {
	dir      string
	handler  Handler
	loader   *Loader
	debounce time.Duration
	logger   *slog.Logger
	onError  func(error)

	fsw      *fsnotify.Watcher
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewWatcher prepares a watcher for dir. Call Start to begin watching.
func NewWatcher(dir string, handler Handler, opts ...WatchOption) (*Watcher, error) {
	if handler == nil {
		return nil, errors.New("loader: watch handler is required")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("loader: create watcher: %w", err)
	}
	w := &Watcher{
		dir:      dir,
		handler:  handler,
		loader:   defaultLoader,
		debounce: DefaultDebounce,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		fsw:      fsw,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// Start adds dir to the watch list and processes events until ctx is done or
// Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.fsw.Add(w.dir); err != nil {
		return fmt.Errorf("loader: watch %s: %w", w.dir, err)
	}
	w.wg.Add(1)
	go w.run(ctx)
	w.logger.Info("loader: watching templates", "dir", w.dir)
	return nil
}

// Stop ends the watch and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.fsw.Close()
	})
	w.wg.Wait()
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !IsTemplateFile(event.Name) || !event.Has(fsnotify.Create|fsnotify.Write|fsnotify.Rename) {
				continue
			}
			if event.Has(fsnotify.Rename) && !event.Has(fsnotify.Create) {
				// renamed away; the new name arrives as a Create
				continue
			}
			pending[filepath.Clean(event.Name)] = struct{}{}
			timer.Reset(w.debounce)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.report(fmt.Errorf("loader: watch %s: %w", w.dir, err))
		case <-timer.C:
			w.reload(pending)
			pending = make(map[string]struct{})
		}
	}
}

func (w *Watcher) reload(pending map[string]struct{}) {
	paths := make([]string, 0, len(pending))
	for path := range pending {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		tpl, err := w.loader.LoadFile(path)
		if err != nil {
			w.report(err)
			continue
		}
		w.logger.Info("loader: template reloaded", "path", path, "template", tpl.ID, "version", tpl.Version)
		w.handler(tpl, path)
	}
}

func (w *Watcher) report(err error) {
	w.logger.Warn("loader: watch error", "error", err)
	if w.onError != nil {
		w.onError(err)
	}
}
