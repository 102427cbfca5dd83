package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func collectSignals(t *testing.T) (*Watcher, chan string) {
	t.Helper()
	signals := make(chan string, 16)
	w := NewWatcher(40*time.Millisecond, func(path string) {
		signals <- path
	}, nil)
	t.Cleanup(w.Unwatch)
	return w, signals
}

func TestWatch_CollapsesBurstIntoOneSignal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	writeFile(t, path, "initial")

	w, signals := collectSignals(t)
	require.NoError(t, w.Watch(path))

	// A burst of writes inside one settle window.
	for i := 0; i < 5; i++ {
		writeFile(t, path, "revision")
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case got := <-signals:
		abs, _ := filepath.Abs(path)
		assert.Equal(t, abs, got)
	case <-time.After(2 * time.Second):
		t.Fatal("no change signal after debounce window")
	}

	// The burst must not produce a trailing second signal.
	select {
	case <-signals:
		t.Fatal("burst produced more than one signal")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestWatch_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	sibling := filepath.Join(dir, "other.md")
	writeFile(t, path, "doc")

	w, signals := collectSignals(t)
	require.NoError(t, w.Watch(path))

	writeFile(t, sibling, "noise")

	select {
	case got := <-signals:
		t.Fatalf("unexpected signal for %s", got)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatch_NewPathReplacesOldWatch(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.md")
	second := filepath.Join(dir, "second.md")
	writeFile(t, first, "a")
	writeFile(t, second, "b")

	w, signals := collectSignals(t)
	require.NoError(t, w.Watch(first))
	require.NoError(t, w.Watch(second))

	writeFile(t, first, "stale")
	writeFile(t, second, "live")

	select {
	case got := <-signals:
		abs, _ := filepath.Abs(second)
		assert.Equal(t, abs, got)
	case <-time.After(2 * time.Second):
		t.Fatal("no signal for newly watched path")
	}

	select {
	case got := <-signals:
		t.Fatalf("signal from superseded watch: %s", got)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestUnwatch_CancelsPendingDebounce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	writeFile(t, path, "initial")

	w, signals := collectSignals(t)
	require.NoError(t, w.Watch(path))

	writeFile(t, path, "changed")
	w.Unwatch()

	select {
	case <-signals:
		t.Fatal("signal fired after Unwatch")
	case <-time.After(200 * time.Millisecond):
	}
	assert.Equal(t, "", w.Path())
}

func TestWatch_SurvivesRenameReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	writeFile(t, path, "initial")

	w, signals := collectSignals(t)
	require.NoError(t, w.Watch(path))

	// Atomic-save style: write a temp file and move it over the target.
	tmp := filepath.Join(dir, ".doc.md.tmp")
	writeFile(t, tmp, "replaced")
	require.NoError(t, os.Rename(tmp, path))

	select {
	case <-signals:
	case <-time.After(2 * time.Second):
		t.Fatal("rename-replace save did not signal")
	}

	// The watch is still alive for plain writes afterwards.
	writeFile(t, path, "after rename")
	select {
	case <-signals:
	case <-time.After(2 * time.Second):
		t.Fatal("no signal after rename-replace")
	}
}
