// Package save owns a document's dirty/clean state and its debounced
// persistence. One Controller exists per open document and is discarded
// when the document is closed or swapped.
package save

import (
	"fmt"
	"sync"
	"time"

	shared "mdsync/shared/types"

	"go.uber.org/zap"
)

// Controller debounces writes for a single document. lastSaved is only ever
// updated after a successful write or an authoritative load, never
// speculatively.
type Controller struct {
	path    string
	persist shared.Persistence
	sink    shared.StatusSink
	delay   time.Duration
	logger  *zap.Logger

	// OnSaved, when set, is invoked after every successful write with the
	// content that became durable. Assign before first use.
	OnSaved func(content string)

	mu        sync.Mutex
	lastSaved string
	saving    bool
	timer     *time.Timer
}

// NewController creates a save controller for path. The initial content is
// whatever was just loaded from disk.
func NewController(path, loaded string, persist shared.Persistence, delay time.Duration, sink shared.StatusSink, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		path:      path,
		persist:   persist,
		sink:      sink,
		delay:     delay,
		logger:    logger,
		lastSaved: loaded,
	}
}

// MarkSavedFromLoad records content loaded from an authoritative source
// (initial open, post-merge disk state, restore) and cancels any pending
// save.
func (c *Controller) MarkSavedFromLoad(content string) {
	c.mu.Lock()
	c.stopTimerLocked()
	c.lastSaved = content
	c.mu.Unlock()
}

// ScheduleSave restarts the debounce timer with the given content. The
// content captured here is exactly what gets written when the timer fires;
// later edits replace the timer wholesale so the latest content wins.
func (c *Controller) ScheduleSave(content string) {
	c.mu.Lock()
	c.stopTimerLocked()
	c.timer = time.AfterFunc(c.delay, func() {
		if err := c.SaveNow(content); err != nil {
			c.logger.Warn("debounced save failed",
				zap.String("path", c.path),
				zap.Error(err))
		}
	})
	c.mu.Unlock()

	c.notify(shared.StatusUnsaved)
}

// SaveNow writes content immediately. At most one write is in flight per
// document; a second call while saving is a no-op. Identical content short
// circuits without touching disk. Failures are reported, not retried.
func (c *Controller) SaveNow(content string) error {
	c.mu.Lock()
	if c.saving {
		c.mu.Unlock()
		return nil
	}
	if content == c.lastSaved {
		c.mu.Unlock()
		c.notify(shared.StatusSaved)
		return nil
	}
	c.saving = true
	c.mu.Unlock()

	c.notify(shared.StatusSaving)

	err := c.persist.Write(c.path, content)

	c.mu.Lock()
	c.saving = false
	if err != nil {
		c.mu.Unlock()
		c.notify(shared.StatusSaveFailed)
		c.logger.Warn("write failed",
			zap.String("path", c.path),
			zap.Error(err))
		return fmt.Errorf("writing %s: %w", c.path, err)
	}
	c.lastSaved = content
	c.mu.Unlock()

	c.notify(shared.StatusSaved)
	if c.OnSaved != nil {
		c.OnSaved(content)
	}
	return nil
}

// FlushPendingSave cancels the debounce and saves the live content right
// away. Used before destructive actions so edits are never silently
// dropped.
func (c *Controller) FlushPendingSave(getContent func() (string, bool)) error {
	c.mu.Lock()
	c.stopTimerLocked()
	c.mu.Unlock()

	content, ok := getContent()
	if !ok {
		return nil
	}
	return c.SaveNow(content)
}

// ClearPendingTimer cancels without saving, for actions that intentionally
// discard local edits.
func (c *Controller) ClearPendingTimer() {
	c.mu.Lock()
	c.stopTimerLocked()
	c.mu.Unlock()
}

// LastSavedContent returns the last content known to be durably on disk or
// freshly loaded from it.
func (c *Controller) LastSavedContent() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSaved
}

// Path returns the document path this controller saves to.
func (c *Controller) Path() string {
	return c.path
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) notify(status shared.Status) {
	if c.sink != nil {
		c.sink.Update(c.path, status)
	}
}
