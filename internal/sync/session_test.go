package sync

import (
	"fmt"
	"os"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"mdsync/internal/history"
	shared "mdsync/shared/types"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memPersist simulates the disk without touching the filesystem, so tests
// can play the external writer by mutating disk content directly.
type memPersist struct {
	mu     gosync.Mutex
	disk   map[string]string
	writes int
}

func newMemPersist() *memPersist {
	return &memPersist{disk: make(map[string]string)}
}

func (p *memPersist) Read(path string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	content, ok := p.disk[path]
	if !ok {
		return "", fmt.Errorf("reading %s: no such document", path)
	}
	return content, nil
}

func (p *memPersist) Write(path, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disk[path] = text
	p.writes++
	return nil
}

func (p *memPersist) set(path, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disk[path] = text
}

func (p *memPersist) get(path string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disk[path]
}

func (p *memPersist) writeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes
}

func docPath(t *testing.T) string {
	t.Helper()
	path, err := filepath.Abs(filepath.Join(t.TempDir(), "doc.md"))
	require.NoError(t, err)
	return path
}

func newTestSession(t *testing.T, persist shared.Persistence, editor shared.Editor, hist *history.Store) *Session {
	t.Helper()
	// The save delay is generous relative to the watch debounce so the
	// merge tests reliably observe the unsaved-edits path.
	s := NewSession(persist, editor, nil, hist, Options{
		SaveDelay:     150 * time.Millisecond,
		WatchDebounce: 30 * time.Millisecond,
	}, nil)
	t.Cleanup(func() { s.Close() })
	return s
}

func bufferContent(t *testing.T, buf *Buffer) string {
	t.Helper()
	content, ok := buf.Current()
	require.True(t, ok)
	return content
}

func TestSession_OpenLoadsDocument(t *testing.T) {
	path := docPath(t)
	persist := newMemPersist()
	persist.set(path, "# Title\n\nBody")
	buf := NewBuffer()

	s := newTestSession(t, persist, buf, nil)
	require.NoError(t, s.Open(path))

	assert.Equal(t, "# Title\n\nBody", bufferContent(t, buf))
	assert.Equal(t, path, s.Path())
	assert.Equal(t, shared.StatusSaved, s.Status())
	assert.False(t, s.Dirty())
}

func TestSession_OpenMissingDocument(t *testing.T) {
	s := newTestSession(t, newMemPersist(), NewBuffer(), nil)
	assert.Error(t, s.Open(docPath(t)))
}

func TestSession_EditDebouncesToDisk(t *testing.T) {
	path := docPath(t)
	persist := newMemPersist()
	persist.set(path, "original")
	buf := NewBuffer()

	s := newTestSession(t, persist, buf, nil)
	require.NoError(t, s.Open(path))

	buf.Replace("edited")
	s.Edit("edited")
	assert.True(t, s.Dirty())

	require.Eventually(t, func() bool {
		return persist.get(path) == "edited"
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return s.Status() == shared.StatusSaved && !s.Dirty()
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, persist.writeCount())
}

func TestSession_EchoSuppression(t *testing.T) {
	path := docPath(t)
	persist := newMemPersist()
	persist.set(path, "content")
	buf := NewBuffer()

	s := newTestSession(t, persist, buf, nil)
	require.NoError(t, s.Open(path))

	// Disk equals lastSaved: the signal is an echo of our own write.
	s.post(changeEvent{path: path})
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, "content", bufferContent(t, buf))
	assert.Equal(t, shared.StatusSaved, s.Status())
}

func TestSession_CleanReload(t *testing.T) {
	path := docPath(t)
	persist := newMemPersist()
	persist.set(path, "old")
	buf := NewBuffer()

	s := newTestSession(t, persist, buf, nil)
	require.NoError(t, s.Open(path))

	persist.set(path, "rewritten externally")
	s.post(changeEvent{path: path})

	require.Eventually(t, func() bool {
		return bufferContent(t, buf) == "rewritten externally"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, shared.StatusReloaded, s.Status())
	assert.False(t, s.Dirty())
}

func TestSession_MergePreservesDisjointEdits(t *testing.T) {
	path := docPath(t)
	base := "Line one\nLine two\nLine three"
	persist := newMemPersist()
	persist.set(path, base)
	buf := NewBuffer()

	s := newTestSession(t, persist, buf, nil)
	require.NoError(t, s.Open(path))

	local := "Line one EDITED\nLine two\nLine three"
	buf.Replace(local)
	s.Edit(local)

	persist.set(path, "Line one\nLine two\nLine three EDITED")
	s.post(changeEvent{path: path})

	merged := "Line one EDITED\nLine two\nLine three EDITED"
	require.Eventually(t, func() bool {
		return bufferContent(t, buf) == merged
	}, 2*time.Second, 10*time.Millisecond)

	// The merge result is persisted on the next debounce cycle.
	require.Eventually(t, func() bool {
		return persist.get(path) == merged
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSession_MergeConflictExternalWins(t *testing.T) {
	path := docPath(t)
	persist := newMemPersist()
	persist.set(path, "head\nmiddle\ntail")
	buf := NewBuffer()

	s := newTestSession(t, persist, buf, nil)
	require.NoError(t, s.Open(path))

	// Conflicting edit on the head line plus a disjoint local edit on the
	// tail, so the merge keeps something local and flags the conflict.
	local := "head ours\nmiddle\ntail ours"
	buf.Replace(local)
	s.Edit(local)

	persist.set(path, "head theirs\nmiddle\ntail")
	s.post(changeEvent{path: path})

	require.Eventually(t, func() bool {
		return bufferContent(t, buf) == "head theirs\nmiddle\ntail ours"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, shared.StatusMergedOverrode, s.Status())
}

func TestSession_MergeFullyDeferredReportsReload(t *testing.T) {
	path := docPath(t)
	persist := newMemPersist()
	persist.set(path, "only line")
	buf := NewBuffer()

	s := newTestSession(t, persist, buf, nil)
	require.NoError(t, s.Open(path))

	// Single-line conflict: theirs wins outright, the merge result equals
	// the disk text, so this is a reload rather than a merge.
	buf.Replace("only line ours")
	s.Edit("only line ours")

	persist.set(path, "only line theirs")
	s.post(changeEvent{path: path})

	require.Eventually(t, func() bool {
		return bufferContent(t, buf) == "only line theirs"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, shared.StatusReloaded, s.Status())
	assert.False(t, s.Dirty())
}

func TestSession_StaleSignalIgnored(t *testing.T) {
	path := docPath(t)
	persist := newMemPersist()
	persist.set(path, "content")
	other := path + ".other"
	persist.set(other, "unrelated")
	buf := NewBuffer()

	s := newTestSession(t, persist, buf, nil)
	require.NoError(t, s.Open(path))

	s.post(changeEvent{path: other})
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, "content", bufferContent(t, buf))
	assert.Equal(t, shared.StatusSaved, s.Status())
}

func TestSession_ReloadFailureKeepsState(t *testing.T) {
	path := docPath(t)
	persist := newMemPersist()
	persist.set(path, "content")
	buf := NewBuffer()

	s := newTestSession(t, persist, buf, nil)
	require.NoError(t, s.Open(path))

	// Make the re-read fail by removing the document.
	persist.mu.Lock()
	delete(persist.disk, path)
	persist.mu.Unlock()

	s.post(changeEvent{path: path})

	require.Eventually(t, func() bool {
		return s.Status() == shared.StatusReloadFailed
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "content", bufferContent(t, buf))
}

func TestSession_FlushWritesImmediately(t *testing.T) {
	path := docPath(t)
	persist := newMemPersist()
	persist.set(path, "original")
	buf := NewBuffer()

	s := newTestSession(t, persist, buf, nil)
	require.NoError(t, s.Open(path))

	buf.Replace("must not be lost")
	s.Edit("must not be lost")
	require.NoError(t, s.Flush())

	assert.Equal(t, "must not be lost", persist.get(path))
	assert.False(t, s.Dirty())
}

func setupHistory(t *testing.T) *history.Store {
	t.Helper()

	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := history.New(db, history.Options{})
	require.NoError(t, err)
	return store
}

func TestSession_RestorePriorVersion(t *testing.T) {
	path := docPath(t)
	persist := newMemPersist()
	persist.set(path, "first version")
	buf := NewBuffer()
	hist := setupHistory(t)

	s := newTestSession(t, persist, buf, hist)
	require.NoError(t, s.Open(path))

	buf.Replace("second version")
	s.Edit("second version")
	require.NoError(t, s.Flush())

	versions, err := hist.Versions(path)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, shared.OriginExternal, versions[0].Origin)
	assert.Equal(t, shared.OriginSave, versions[1].Origin)

	require.NoError(t, s.Restore(versions[0].Seq))
	assert.Equal(t, "first version", bufferContent(t, buf))
	assert.Equal(t, "first version", persist.get(path))

	versions, err = hist.Versions(path)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, shared.OriginRestore, versions[2].Origin)
}

func TestSession_OpenNewPathFlushesOutgoingEdits(t *testing.T) {
	first := docPath(t)
	second := first + ".second"
	persist := newMemPersist()
	persist.set(first, "first doc")
	persist.set(second, "second doc")
	buf := NewBuffer()

	s := newTestSession(t, persist, buf, nil)
	require.NoError(t, s.Open(first))

	buf.Replace("first doc with edits")
	s.Edit("first doc with edits")

	require.NoError(t, s.Open(second))
	assert.Equal(t, "first doc with edits", persist.get(first))
	assert.Equal(t, "second doc", bufferContent(t, buf))
}

// End-to-end through the real filesystem and watcher: an external process
// rewrites the file and the session reconciles without being driven
// manually.
func TestSession_ExternalWriterEndToEnd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("alpha\nbeta\ngamma"), 0644))

	buf := NewBuffer()
	s := newTestSession(t, NewDiskStore(), buf, nil)
	require.NoError(t, s.Open(path))

	t.Run("clean reload", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("alpha\nbeta\ngamma\ndelta"), 0644))

		require.Eventually(t, func() bool {
			return bufferContent(t, buf) == "alpha\nbeta\ngamma\ndelta"
		}, 5*time.Second, 20*time.Millisecond)
		assert.Equal(t, shared.StatusReloaded, s.Status())
	})

	t.Run("merge with unsaved edits", func(t *testing.T) {
		local := "alpha local\nbeta\ngamma\ndelta"
		buf.Replace(local)
		s.Edit(local)

		require.NoError(t, os.WriteFile(path, []byte("alpha\nbeta\ngamma\ndelta external"), 0644))

		merged := "alpha local\nbeta\ngamma\ndelta external"
		require.Eventually(t, func() bool {
			return bufferContent(t, buf) == merged
		}, 5*time.Second, 20*time.Millisecond)

		// The merge is saved back out and the resulting echo leaves the
		// buffer alone.
		require.Eventually(t, func() bool {
			data, err := os.ReadFile(path)
			return err == nil && string(data) == merged
		}, 5*time.Second, 20*time.Millisecond)

		time.Sleep(200 * time.Millisecond)
		assert.Equal(t, merged, bufferContent(t, buf))
	})
}
