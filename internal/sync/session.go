// Package sync orchestrates one document's reconciliation policy: it wires
// the save controller, the external change watcher, and the merge engine
// together and decides, per change signal, whether to ignore an echo,
// reload cleanly, or merge.
package sync

import (
	"errors"
	"fmt"
	"path/filepath"
	gosync "sync"
	"time"

	"mdsync/internal/history"
	"mdsync/internal/merge"
	"mdsync/internal/save"
	"mdsync/internal/watch"
	shared "mdsync/shared/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrNoDocument = errors.New("no document open")

// Options tunes a session's debounce windows.
type Options struct {
	SaveDelay     time.Duration // autosave debounce, default 2s
	WatchDebounce time.Duration // fs event settle window, default 75ms
}

type event interface{}

type editEvent struct{ content string }

type changeEvent struct{ path string }

type openEvent struct {
	path  string
	reply chan error
}

type flushEvent struct{ reply chan error }

type restoreEvent struct {
	seq   uint64
	reply chan error
}

// Session runs the state machine for one active document at a time. All
// state transitions happen on a single goroutine consuming the event
// channel, which is what makes the ordering invariants (one in-flight
// write, one active watch, replace-before-bookkeeping) straightforward.
type Session struct {
	id      string
	persist shared.Persistence
	editor  shared.Editor
	sink    shared.StatusSink
	hist    *history.Store
	logger  *zap.Logger

	saveDelay time.Duration
	watcher   *watch.Watcher

	events chan event
	done   chan struct{}
	wg     gosync.WaitGroup

	mu         gosync.Mutex
	path       string
	saver      *save.Controller
	lastStatus shared.Status
}

// NewSession creates and starts a session. hist may be nil to disable
// snapshot recording.
func NewSession(persist shared.Persistence, editor shared.Editor, sink shared.StatusSink, hist *history.Store, opts Options, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SaveDelay == 0 {
		opts.SaveDelay = 2 * time.Second
	}
	if opts.WatchDebounce == 0 {
		opts.WatchDebounce = 75 * time.Millisecond
	}

	id := uuid.New().String()
	s := &Session{
		id:        id,
		persist:   persist,
		editor:    editor,
		sink:      sink,
		hist:      hist,
		logger:    logger.With(zap.String("session", id[:8])),
		saveDelay: opts.SaveDelay,
		events:    make(chan event, 32),
		done:      make(chan struct{}),
	}

	s.watcher = watch.NewWatcher(opts.WatchDebounce, func(path string) {
		s.post(changeEvent{path: path})
	}, s.logger)

	s.wg.Add(1)
	go s.run()

	return s
}

// Open loads path from disk into the editor, resets save state, and starts
// watching. Unsaved edits of a previously open document are flushed first
// so nothing is silently dropped.
func (s *Session) Open(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving path %s: %w", path, err)
	}
	return s.roundTrip(func(reply chan error) event {
		return openEvent{path: abs, reply: reply}
	})
}

// Edit notifies the session that the editor buffer changed. The content is
// captured now; the debounced save writes exactly this text unless a newer
// edit replaces it.
func (s *Session) Edit(content string) {
	s.post(editEvent{content: content})
}

// Flush cancels the pending debounce and saves the live editor content
// synchronously.
func (s *Session) Flush() error {
	return s.roundTrip(func(reply chan error) event {
		return flushEvent{reply: reply}
	})
}

// Restore replaces editor and disk content with a prior version from the
// history store. Pending edits are intentionally discarded; callers that
// want them kept must Flush first.
func (s *Session) Restore(seq uint64) error {
	return s.roundTrip(func(reply chan error) event {
		return restoreEvent{seq: seq, reply: reply}
	})
}

// Close stops the event loop, the watcher, and any pending save timer.
func (s *Session) Close() error {
	select {
	case <-s.done:
		return nil // already closed
	default:
	}
	close(s.done)
	s.wg.Wait()

	s.watcher.Unwatch()

	s.mu.Lock()
	if s.saver != nil {
		s.saver.ClearPendingTimer()
	}
	s.mu.Unlock()

	return nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Path returns the active document path, or "" when nothing is open.
func (s *Session) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Status returns the last status reported for the active document.
func (s *Session) Status() shared.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStatus
}

// Dirty reports whether the editor holds edits not yet known to be on
// disk.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	saver := s.saver
	s.mu.Unlock()

	if saver == nil {
		return false
	}
	content, ok := s.editor.Current()
	if !ok {
		return false
	}
	return content != saver.LastSavedContent()
}

func (s *Session) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Session) roundTrip(build func(chan error) event) error {
	reply := make(chan error, 1)
	select {
	case s.events <- build(reply):
	case <-s.done:
		return errors.New("session closed")
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return errors.New("session closed")
	}
}

// run is the single goroutine that owns all session state transitions.
func (s *Session) run() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return

		case ev := <-s.events:
			switch ev := ev.(type) {
			case openEvent:
				ev.reply <- s.handleOpen(ev.path)
			case editEvent:
				s.handleEdit(ev.content)
			case changeEvent:
				s.handleChange(ev.path)
			case flushEvent:
				ev.reply <- s.handleFlush()
			case restoreEvent:
				ev.reply <- s.handleRestore(ev.seq)
			}
		}
	}
}

func (s *Session) handleOpen(path string) error {
	// Flush the outgoing document before swapping so its edits survive.
	if s.saver != nil {
		if err := s.saver.FlushPendingSave(s.editor.Current); err != nil {
			return fmt.Errorf("flushing %s before open: %w", s.saver.Path(), err)
		}
	}

	content, err := s.persist.Read(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}

	s.editor.Replace(content)

	saver := save.NewController(path, content, s.persist, s.saveDelay, s.statusSink(), s.logger)
	saver.OnSaved = func(saved string) {
		s.record(path, saved, shared.OriginSave)
	}

	s.mu.Lock()
	s.path = path
	s.saver = saver
	s.mu.Unlock()

	if err := s.watcher.Watch(path); err != nil {
		// Not fatal: the session still saves, it just cannot see
		// external writes until the next Open.
		s.logger.Error("failed to watch document",
			zap.String("path", path),
			zap.Error(err))
	}

	s.record(path, content, shared.OriginExternal)
	s.setStatus(path, shared.StatusSaved)
	return nil
}

func (s *Session) handleEdit(content string) {
	if s.saver == nil {
		return
	}
	s.saver.ScheduleSave(content)
}

// handleChange is the reconciliation policy. Ordering matters: the editor
// is updated before save-state bookkeeping is finalized, because edits can
// land in the gap between detecting a change and applying it.
func (s *Session) handleChange(path string) {
	s.mu.Lock()
	active := s.path
	saver := s.saver
	s.mu.Unlock()

	// Signals for a path that is no longer active are stale.
	if saver == nil || path != active {
		return
	}

	diskContent, err := s.persist.Read(path)
	if err != nil {
		s.logger.Warn("failed to re-read document after change signal",
			zap.String("path", path),
			zap.Error(err))
		s.setStatus(path, shared.StatusReloadFailed)
		return
	}

	lastSaved := saver.LastSavedContent()

	if diskContent == lastSaved {
		// Echo of our own write.
		s.logger.Debug("self-write echo suppressed", zap.String("path", path))
		return
	}

	editorContent, ok := s.editor.Current()
	if !ok || editorContent == lastSaved {
		// Editor is clean: adopt the external version wholesale.
		s.editor.Replace(diskContent)
		saver.MarkSavedFromLoad(diskContent)
		s.record(path, diskContent, shared.OriginExternal)
		s.setStatus(path, shared.StatusReloaded)
		return
	}

	result := merge.Merge(lastSaved, editorContent, diskContent)

	if result.Content == diskContent {
		// The merge deferred entirely to the external version.
		s.editor.Replace(diskContent)
		saver.MarkSavedFromLoad(diskContent)
		s.record(path, diskContent, shared.OriginExternal)
		s.setStatus(path, shared.StatusReloaded)
		return
	}

	// The merge preserved local edits. What is durable on disk is the
	// external text, so that becomes the save baseline; the merged text
	// is persisted on the next debounce cycle.
	s.editor.Replace(result.Content)
	saver.MarkSavedFromLoad(diskContent)
	saver.ScheduleSave(result.Content)
	s.record(path, result.Content, shared.OriginMerge)

	if result.HadConflicts {
		s.setStatus(path, shared.StatusMergedOverrode)
	} else {
		s.setStatus(path, shared.StatusMerged)
	}
}

func (s *Session) handleFlush() error {
	if s.saver == nil {
		return nil
	}
	return s.saver.FlushPendingSave(s.editor.Current)
}

func (s *Session) handleRestore(seq uint64) error {
	if s.saver == nil {
		return ErrNoDocument
	}
	if s.hist == nil {
		return errors.New("history is not enabled")
	}

	path := s.saver.Path()
	content, err := s.hist.VersionContent(path, seq)
	if err != nil {
		return fmt.Errorf("loading version %d of %s: %w", seq, path, err)
	}

	// Restore is explicitly destructive: pending edits are dropped.
	s.saver.ClearPendingTimer()
	s.editor.Replace(content)

	if err := s.persist.Write(path, content); err != nil {
		s.setStatus(path, shared.StatusSaveFailed)
		return fmt.Errorf("writing restored version: %w", err)
	}
	s.saver.MarkSavedFromLoad(content)
	s.record(path, content, shared.OriginRestore)
	s.setStatus(path, shared.StatusSaved)
	return nil
}

func (s *Session) record(path, content string, origin shared.Origin) {
	if s.hist == nil {
		return
	}
	if _, err := s.hist.Record(path, content, origin); err != nil {
		s.logger.Warn("failed to record snapshot",
			zap.String("path", path),
			zap.String("origin", string(origin)),
			zap.Error(err))
	}
}

func (s *Session) setStatus(path string, status shared.Status) {
	s.mu.Lock()
	s.lastStatus = status
	s.mu.Unlock()

	if s.sink != nil {
		s.sink.Update(path, status)
	}
}

// statusSink adapts the session's status tracking into the sink the save
// controller expects.
func (s *Session) statusSink() shared.StatusSink {
	return sinkFunc(func(path string, status shared.Status) {
		s.setStatus(path, status)
	})
}

type sinkFunc func(string, shared.Status)

func (f sinkFunc) Update(path string, status shared.Status) {
	f(path, status)
}
