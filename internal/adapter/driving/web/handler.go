// Package web implements the HTML GUI driving adapter using templ components.
package web

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/a-h/templ"

	"github.com/ericfisherdev/keyquota/internal/adapter/driving/web/templates"
	vm "github.com/ericfisherdev/keyquota/internal/adapter/driving/web/viewmodel"
	"github.com/ericfisherdev/keyquota/internal/application"
)

const pageTitle = "KeyQuota"

// Handler is the web GUI driving adapter that serves HTML via templ components.
type Handler struct {
	keys    *application.KeyService
	history *application.HistoryService
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	keys *application.KeyService,
	history *application.HistoryService,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		keys:    keys,
		history: history,
		logger:  logger,
		now:     time.Now,
	}
}

// Dashboard renders the main dashboard page with the full HTML layout.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	token := csrfToken(w, r)
	notices := takeFlash(w, r)
	h.keys.Refresh(r.Context())
	h.renderDashboard(w, r, http.StatusOK, token, notices, "")
}

// Import parses the pasted text. On success the browser is redirected so the
// textarea comes back empty; otherwise the page is rendered again with the
// text kept.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	text := r.FormValue("text")

	report, res := h.keys.Import(r.Context(), text)
	if report.Outcome == application.ImportAdded {
		h.redirect(w, r, res.Notices())
		return
	}

	token := csrfToken(w, r)
	h.renderDashboard(w, r, http.StatusOK, token, res.Notices(), text)
}

// Check queries one key's usage and returns to the dashboard.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	res, err := h.keys.Check(r.Context(), id)
	if errors.Is(err, application.ErrKeyNotFound) {
		http.Error(w, "key not found", http.StatusNotFound)
		return
	}
	h.redirect(w, r, res.Notices())
}

// EditForm renders the edit page for one key.
func (h *Handler) EditForm(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	h.keys.Refresh(r.Context())
	k, ok := h.keys.Snapshot().Keys.Find(id)
	if !ok {
		http.Error(w, "key not found", http.StatusNotFound)
		return
	}

	h.renderEdit(w, r, http.StatusOK, vm.EditViewModel{
		CSRFToken:  csrfToken(w, r),
		ID:         k.ID,
		Secret:     k.Secret,
		Email:      k.Email,
		Password:   k.Password,
		ActionPath: "/app/keys/" + k.ID + "/edit",
	})
}

// Edit saves the submitted fields. Validation failures re-render the form
// with the submitted values.
func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	in := application.EditInput{
		ID:       r.PathValue("id"),
		Secret:   r.FormValue("secret"),
		Email:    r.FormValue("email"),
		Password: r.FormValue("password"),
	}

	res, err := h.keys.Edit(r.Context(), in)
	switch {
	case errors.Is(err, application.ErrKeyNotFound):
		http.Error(w, "key not found", http.StatusNotFound)
		return
	case errors.Is(err, application.ErrValidation):
		h.renderEdit(w, r, http.StatusUnprocessableEntity, vm.EditViewModel{
			CSRFToken:  csrfToken(w, r),
			ID:         in.ID,
			Secret:     in.Secret,
			Email:      in.Email,
			Password:   in.Password,
			Error:      err.Error(),
			ActionPath: "/app/keys/" + in.ID + "/edit",
		})
		return
	case err != nil:
		h.logger.Error("failed to edit key", "key_id", in.ID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.redirect(w, r, res.Notices())
}

// Delete removes one key.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	res, err := h.keys.Delete(r.Context(), id)
	if errors.Is(err, application.ErrKeyNotFound) {
		http.Error(w, "key not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to delete key", "key_id", id, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.redirect(w, r, res.Notices())
}

// Clear removes every key.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	res := h.keys.Clear(r.Context())
	h.redirect(w, r, res.Notices())
}

// ClearHistory empties the query history log.
func (h *Handler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	notice := application.Notice{Level: application.NoticeSuccess, Message: "History cleared"}
	if err := h.history.Clear(r.Context()); err != nil {
		h.logger.Error("failed to clear history", "error", err)
		notice = application.Notice{Level: application.NoticeError, Message: "Could not clear history"}
	}
	h.redirect(w, r, []application.Notice{notice})
}

// Export downloads the collection as a text file in the import format.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	text, err := h.keys.Export()
	if errors.Is(err, application.ErrNothingToExport) {
		h.redirect(w, r, []application.Notice{{Level: application.NoticeWarning, Message: "No keys to export"}})
		return
	}
	if err != nil {
		h.logger.Error("failed to export keys", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+application.ExportFilename(h.now())+`"`)
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write([]byte(text)); err != nil {
		h.logger.Error("failed to write export", "error", err)
	}
}

// redirect stores notices for the next page and sends the browser home.
func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, notices []application.Notice) {
	setFlash(w, notices)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) renderDashboard(
	w http.ResponseWriter,
	r *http.Request,
	status int,
	token string,
	notices []application.Notice,
	importText string,
) {
	history, err := h.history.List(r.Context())
	if err != nil {
		h.logger.Error("failed to load query history", "error", err)
	}

	d := toDashboardViewModel(h.keys.Snapshot(), history, notices, token, importText)
	h.render(w, r, status, templates.Layout(pageTitle, d.Cooldown.Remaining, templates.Dashboard(d)))
}

func (h *Handler) renderEdit(w http.ResponseWriter, r *http.Request, status int, e vm.EditViewModel) {
	h.render(w, r, status, templates.Layout("Edit key · "+pageTitle, 0, templates.EditKey(e)))
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		h.logger.Error("failed to render page", "error", err)
	}
}
