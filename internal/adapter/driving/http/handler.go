// Package httphandler implements the JSON driving adapter: the usage relay
// endpoints and a read-only view of the stored keys.
package httphandler

import (
	"bytes"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ericfisherdev/keyquota/internal/application"
	"github.com/ericfisherdev/keyquota/internal/domain/port/driven"
)

const (
	headerAuthKey   = "X-DeepL-Auth-Key"
	headerCSRFToken = "X-CSRF-Token"
	secretLogPrefix = 5
)

// KeySnapshotter exposes a copy of the controller state.
type KeySnapshotter interface {
	Snapshot() *application.AppState
}

// Handler is the HTTP driving adapter that serves the JSON API.
type Handler struct {
	upstream driven.UsageUpstream
	keys     KeySnapshotter
	sessions *SessionStore
	logger   *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	upstream driven.UsageUpstream,
	keys KeySnapshotter,
	sessions *SessionStore,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		upstream: upstream,
		keys:     keys,
		sessions: sessions,
		logger:   logger,
	}
}

// RegisterAPIRoutes registers the JSON endpoints on mux.
func RegisterAPIRoutes(mux *http.ServeMux, h *Handler) {
	mux.HandleFunc("GET /api/v1/session", h.Session)
	mux.HandleFunc("GET /api/v1/usage", h.Usage)
	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("GET /api/v1/keys", h.ListKeys)
}

// NewServeMux creates an http.Handler with only the API routes, wrapped with
// logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	RegisterAPIRoutes(mux, h)
	return ApplyMiddleware(mux, logger)
}

// Session returns the CSRF token of the caller's session, starting one if
// needed.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	token := h.sessions.Issue(w, r)
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, SessionResponse{Token: token})
}

// Usage forwards a usage check for the key in the X-DeepL-Auth-Key header (or
// the key query parameter) to the upstream API and relays its answer.
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	if !h.sessions.Validate(r, r.Header.Get(headerCSRFToken)) {
		h.logger.Warn("usage request rejected", "reason", "csrf")
		writeRelayError(w, http.StatusForbidden,
			"Security Check Failed (CSRF)",
			"Invalid or missing CSRF token. Please refresh the page.")
		return
	}

	secret := r.Header.Get(headerAuthKey)
	if secret == "" {
		secret = r.URL.Query().Get("key")
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		writeRelayError(w, http.StatusBadRequest,
			"Missing API Key",
			"Please provide X-DeepL-Auth-Key header or key parameter")
		return
	}

	masked := maskForLog(secret)
	h.logger.Info("forwarding usage check", "key", masked)

	status, body, err := h.upstream.Usage(r.Context(), secret)
	if err != nil {
		h.logger.Warn("upstream usage request failed", "key", masked, "error", err)
		writeRelayError(w, http.StatusBadGateway, "Request Failed", err.Error())
		return
	}
	h.logger.Debug("upstream usage response", "key", masked, "status", status)

	if len(bytes.TrimSpace(body)) == 0 {
		if status >= 200 && status < 300 {
			status = http.StatusBadGateway
		}
		writeRelayError(w, status, "Empty response from DeepL", "")
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Health reports that the server is up.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// ListKeys returns the stored keys with secrets masked.
func (h *Handler) ListKeys(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toKeysResponse(h.keys.Snapshot()))
}

// maskForLog keeps only the first few characters of a secret.
func maskForLog(secret string) string {
	if len(secret) <= secretLogPrefix {
		return "***"
	}
	return secret[:secretLogPrefix] + "***"
}
