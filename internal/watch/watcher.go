// Package watch observes a single document file for external
// modifications. Platform notification mechanisms fire several times per
// logical save, so events are collapsed behind a settle window before the
// owner is signalled.
package watch

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher watches at most one file at a time. Watching a new path fully
// stops the previous watch, including any pending debounce, before
// starting.
type Watcher struct {
	debounce time.Duration
	onChange func(path string)
	logger   *zap.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	path    string
	timer   *time.Timer
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher creates a watcher that calls onChange(path) once per settled
// burst of filesystem activity on the watched file.
func NewWatcher(debounce time.Duration, onChange func(path string), logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
	}
}

// Watch begins observing path. The parent directory is watched rather than
// the file itself so that editors and agents that save via rename-replace
// do not silently detach the watch.
func (w *Watcher) Watch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving path %s: %w", path, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.stopLocked()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return fmt.Errorf("watching directory for %s: %w", abs, err)
	}

	w.watcher = fsw
	w.path = abs
	w.done = make(chan struct{})

	w.wg.Add(1)
	go w.watchLoop(fsw, abs, w.done)

	w.logger.Debug("watching file", zap.String("path", abs))
	return nil
}

// Unwatch stops observing and cancels any pending debounce. Safe to call
// when nothing is being watched.
func (w *Watcher) Unwatch() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopLocked()
}

// Path returns the currently watched path, or "" when idle.
func (w *Watcher) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.path
}

// stopLocked tears down the active watch: pending debounce first, then the
// fsnotify handle, then the event goroutine.
func (w *Watcher) stopLocked() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	if w.watcher == nil {
		return
	}

	close(w.done)
	w.done = nil
	w.watcher.Close()
	w.watcher = nil
	w.path = ""

	w.mu.Unlock()
	w.wg.Wait()
	w.mu.Lock()
}

// watchLoop processes fsnotify events for one watch generation.
func (w *Watcher) watchLoop(fsw *fsnotify.Watcher, path string, done chan struct{}) {
	defer w.wg.Done()

	for {
		select {
		case <-done:
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event, path, done)

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error",
				zap.String("path", path),
				zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event, path string, done chan struct{}) {
	eventAbs, err := filepath.Abs(event.Name)
	if err != nil || eventAbs != path {
		return
	}

	// Create covers rename-replace saves; chmod and friends are noise.
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	// The watch may have been superseded between the event arriving and
	// the lock being taken.
	if w.done != done {
		return
	}

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.fire(done, path)
	})
}

func (w *Watcher) fire(done chan struct{}, path string) {
	w.mu.Lock()
	if w.done != done {
		w.mu.Unlock()
		return
	}
	w.timer = nil
	w.mu.Unlock()

	w.onChange(path)
}
