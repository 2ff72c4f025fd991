package web

import (
	"io/fs"
	"net/http"
)

// RegisterRoutes registers all web GUI routes on the provided mux.
// Web routes serve HTML at / and /app/* paths.
// Static assets are served from the embedded filesystem at /static/*.
func RegisterRoutes(mux *http.ServeMux, h *Handler) {
	// Static assets (embedded via go:embed).
	staticFS, _ := fs.Sub(StaticFS, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticFS)))

	// Page routes.
	mux.HandleFunc("GET /{$}", h.Dashboard)
	mux.HandleFunc("GET /app/keys/{id}/edit", h.EditForm)
	mux.HandleFunc("GET /app/export", h.Export)

	// Form posts.
	mux.HandleFunc("POST /app/import", requireCSRF(h.Import))
	mux.HandleFunc("POST /app/keys/{id}/check", requireCSRF(h.Check))
	mux.HandleFunc("POST /app/keys/{id}/edit", requireCSRF(h.Edit))
	mux.HandleFunc("POST /app/keys/{id}/delete", requireCSRF(h.Delete))
	mux.HandleFunc("POST /app/clear", requireCSRF(h.Clear))
	mux.HandleFunc("POST /app/history/clear", requireCSRF(h.ClearHistory))
}
