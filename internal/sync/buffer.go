package sync

import (
	"sync"
)

// Buffer is an in-memory editor collaborator used by the daemon and the
// CLI: a single mutable string standing in for a real editor buffer.
type Buffer struct {
	mu      sync.RWMutex
	open    bool
	content string
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

// Current returns the buffer text, or ok=false when no document is open.
func (b *Buffer) Current() (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.content, b.open
}

// Replace swaps the whole buffer content. There is no cursor to preserve
// here; real editor hosts implement this differently.
func (b *Buffer) Replace(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = true
	b.content = text
}

// Close empties the buffer and marks it closed.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = false
	b.content = ""
}
