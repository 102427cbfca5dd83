// Status represents the sync state of a document
package shared

import (
	"time"
)

// Document is a cached view of one file: the path on disk and the text
// content last seen for it. The engine never owns the file itself.
type Document struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Status is a human-readable sync status for UI display. The strings are
// not machine-parsed anywhere.
type Status string

const (
	StatusSaved          Status = "Saved"
	StatusUnsaved        Status = "Unsaved changes"
	StatusSaving         Status = "Saving..."
	StatusSaveFailed     Status = "Save failed"
	StatusReloaded       Status = "Reloaded from disk"
	StatusMerged         Status = "Merged with external changes"
	StatusMergedOverrode Status = "Merged (some edits overwritten)"
	StatusReloadFailed   Status = "Reload failed"
)

// Origin records what produced a history snapshot.
type Origin string

const (
	OriginSave     Origin = "save"     // debounced or explicit local save
	OriginExternal Origin = "external" // clean reload of an external write
	OriginMerge    Origin = "merge"    // three-way merge result
	OriginRestore  Origin = "restore"  // restored from a prior version
)

// Version is one entry in a document's snapshot log.
type Version struct {
	Path      string    `json:"path"`
	Seq       uint64    `json:"seq"`
	Hash      string    `json:"hash"`
	Origin    Origin    `json:"origin"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// StatusSink receives status updates from a sync session.
type StatusSink interface {
	Update(path string, status Status)
}

// Editor is the live buffer collaborator. Current returns the buffer text,
// or ok=false when no buffer is open for the path. Replace must preserve
// cursor and viewport where the host can.
type Editor interface {
	Current() (string, bool)
	Replace(text string)
}

// Persistence is the disk collaborator. Both calls must be safe to invoke
// repeatedly; errors are ordinary failures.
type Persistence interface {
	Read(path string) (string, error)
	Write(path string, text string) error
}
