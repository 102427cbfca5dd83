package api

import (
	"net/http"
)

// Routes wires the document handler into a mux. The daemon wraps this in
// the middleware chain; tests use it bare.
func Routes(h *DocumentHandler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", healthCheck)

	mux.HandleFunc("POST /api/document/open", h.Open)
	mux.HandleFunc("GET /api/document", h.Get)
	mux.HandleFunc("PUT /api/document/content", h.Update)
	mux.HandleFunc("POST /api/document/flush", h.Flush)
	mux.HandleFunc("GET /api/document/versions", h.Versions)
	mux.HandleFunc("GET /api/document/versions/{seq}/diff", h.VersionDiff)
	mux.HandleFunc("POST /api/document/restore", h.Restore)

	return mux
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"healthy"}`))
}
