// internal/api/handlers.go
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"mdsync/internal/diff"
	apierrors "mdsync/internal/errors"
	"mdsync/internal/history"
	"mdsync/internal/sync"
	shared "mdsync/shared/types"
)

// DocumentHandler exposes the editor-collaborator surface over HTTP: open
// a document, read and replace the live buffer, flush, and browse or
// restore history.
type DocumentHandler struct {
	session *sync.Session
	buffer  *sync.Buffer
	hist    *history.Store
	differ  *diff.Engine
}

func NewDocumentHandler(session *sync.Session, buffer *sync.Buffer, hist *history.Store) *DocumentHandler {
	return &DocumentHandler{
		session: session,
		buffer:  buffer,
		hist:    hist,
		differ:  diff.NewEngine(3),
	}
}

type openRequest struct {
	Path string `json:"path"`
}

type documentResponse struct {
	Path    string        `json:"path"`
	Content string        `json:"content"`
	Status  shared.Status `json:"status"`
	Dirty   bool          `json:"dirty"`
}

type editRequest struct {
	Content string `json:"content"`
}

type restoreRequest struct {
	Seq uint64 `json:"seq"`
}

func (h *DocumentHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierrors.ValidationError("invalid request body", nil))
		return
	}
	if req.Path == "" {
		writeError(w, apierrors.ValidationError("path is required", nil))
		return
	}

	if err := h.session.Open(req.Path); err != nil {
		writeError(w, apierrors.NotFound(err.Error()))
		return
	}

	h.writeDocument(w, http.StatusOK)
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.session.Path() == "" {
		writeError(w, apierrors.NotFound("no document open"))
		return
	}
	h.writeDocument(w, http.StatusOK)
}

// Update replaces the live buffer and schedules a debounced save, the same
// path a keystroke takes in an embedded editor.
func (h *DocumentHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h.session.Path() == "" {
		writeError(w, apierrors.NotFound("no document open"))
		return
	}

	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierrors.ValidationError("invalid request body", nil))
		return
	}

	h.buffer.Replace(req.Content)
	h.session.Edit(req.Content)

	h.writeDocument(w, http.StatusOK)
}

func (h *DocumentHandler) Flush(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Flush(); err != nil {
		writeError(w, apierrors.Internal(err.Error()))
		return
	}
	h.writeDocument(w, http.StatusOK)
}

func (h *DocumentHandler) Versions(w http.ResponseWriter, r *http.Request) {
	path := h.session.Path()
	if path == "" {
		writeError(w, apierrors.NotFound("no document open"))
		return
	}

	versions, err := h.hist.Versions(path)
	if err != nil {
		writeError(w, apierrors.Internal(err.Error()))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(versions)
}

// VersionDiff renders the line diff between a version and its predecessor.
func (h *DocumentHandler) VersionDiff(w http.ResponseWriter, r *http.Request) {
	path := h.session.Path()
	if path == "" {
		writeError(w, apierrors.NotFound("no document open"))
		return
	}

	seq, err := strconv.ParseUint(r.PathValue("seq"), 10, 64)
	if err != nil {
		writeError(w, apierrors.ValidationError("invalid version number", nil))
		return
	}

	current, err := h.hist.VersionContent(path, seq)
	if err != nil {
		if errors.Is(err, history.ErrVersionNotFound) {
			writeError(w, apierrors.NotFound("version not found"))
			return
		}
		writeError(w, apierrors.Internal(err.Error()))
		return
	}

	previous := ""
	if seq > 1 {
		previous, err = h.hist.VersionContent(path, seq-1)
		if err != nil {
			writeError(w, apierrors.Internal(err.Error()))
			return
		}
	}

	result, err := h.differ.Diff(previous, current)
	if err != nil {
		writeError(w, apierrors.Internal(err.Error()))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (h *DocumentHandler) Restore(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierrors.ValidationError("invalid request body", nil))
		return
	}
	if req.Seq == 0 {
		writeError(w, apierrors.ValidationError("seq is required", nil))
		return
	}

	if err := h.session.Restore(req.Seq); err != nil {
		if errors.Is(err, history.ErrVersionNotFound) {
			writeError(w, apierrors.NotFound("version not found"))
			return
		}
		if errors.Is(err, sync.ErrNoDocument) {
			writeError(w, apierrors.NotFound("no document open"))
			return
		}
		writeError(w, apierrors.Internal(err.Error()))
		return
	}

	h.writeDocument(w, http.StatusOK)
}

func (h *DocumentHandler) writeDocument(w http.ResponseWriter, status int) {
	content, _ := h.buffer.Current()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(documentResponse{
		Path:    h.session.Path(),
		Content: content,
		Status:  h.session.Status(),
		Dirty:   h.session.Dirty(),
	})
}

func writeError(w http.ResponseWriter, apiErr *apierrors.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Code)
	json.NewEncoder(w).Encode(apiErr)
}
