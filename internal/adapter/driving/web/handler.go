// Package web implements the HTML dashboard driving adapter using templ components.
package web

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ericfisherdev/mergebridge/internal/adapter/driving/web/templates"
	"github.com/ericfisherdev/mergebridge/internal/adapter/driving/web/templates/pages"
	"github.com/ericfisherdev/mergebridge/internal/application"
	"github.com/ericfisherdev/mergebridge/internal/domain/port/driven"
)

const sessionCookieName = "mergebridge_session"

// Flash codes carried across the post-redirect-get cycle.
var flashMessages = map[string]string{
	"merged":        "Pull request merged.",
	"refreshed":     "Refreshed.",
	"auth_missing":  "No GitHub token configured. Save one with `mergebridge secret set source-control-token`.",
	"conflict":      "GitHub refused the merge. The pull request may have conflicts or failing checks.",
	"merge_pending": "A merge for this pull request is already in progress.",
	"transport":     "GitHub could not be reached. Try again shortly.",
	"invalid":       "Invalid request.",
	"failed":        "Something went wrong.",
}

// Handler is the web GUI driving adapter that serves HTML via templ components.
type Handler struct {
	sessions *application.SessionManager
	logger   *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(sessions *application.SessionManager, logger *slog.Logger) *Handler {
	return &Handler{sessions: sessions, logger: logger}
}

// Dashboard renders the main dashboard page with the full HTML layout. A
// visitor without a live session gets a fresh one, loaded before rendering.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	sess, created := h.session(w, r)

	errorCode := r.URL.Query().Get("error")
	if created {
		if _, err := sess.Refresh(r.Context()); err != nil {
			h.logger.Warn("initial dashboard refresh failed", "session", sess.ID(), "error", err)
			errorCode = flashCode(err)
		}
	}

	model := toDashboardViewModel(sess.View(), csrfToken(w, r))
	model.Notice = flashMessages[r.URL.Query().Get("notice")]
	model.Error = flashMessages[errorCode]

	layout := templates.Layout("mergebridge", pages.Dashboard(model))
	if err := layout.Render(r.Context(), w); err != nil {
		h.logger.Error("failed to render dashboard", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// Merge handles the merge button.
func (h *Handler) Merge(w http.ResponseWriter, r *http.Request) {
	if !validateCSRF(r) {
		http.Error(w, "invalid csrf token", http.StatusForbidden)
		return
	}

	sess, ok := h.existingSession(r)
	if !ok {
		redirect(w, r, "error", "failed")
		return
	}

	owner, repo := r.FormValue("owner"), r.FormValue("repo")
	number, err := strconv.Atoi(r.FormValue("number"))
	if owner == "" || repo == "" || err != nil || number <= 0 {
		redirect(w, r, "error", "invalid")
		return
	}

	if _, err := sess.Merge(r.Context(), owner, repo, number); err != nil {
		h.logger.Warn("dashboard merge failed", "repo", owner+"/"+repo, "number", number, "error", err)
		redirect(w, r, "error", flashCode(err))
		return
	}
	redirect(w, r, "notice", "merged")
}

// Refresh handles the refresh button.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if !validateCSRF(r) {
		http.Error(w, "invalid csrf token", http.StatusForbidden)
		return
	}

	sess, ok := h.existingSession(r)
	if !ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if _, err := sess.Refresh(r.Context()); err != nil {
		h.logger.Warn("dashboard refresh failed", "session", sess.ID(), "error", err)
		redirect(w, r, "error", flashCode(err))
		return
	}
	redirect(w, r, "notice", "refreshed")
}

// session returns the caller's session, creating one and setting the cookie
// when the cookie is missing or stale.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*application.ViewSession, bool) {
	if sess, ok := h.existingSession(r); ok {
		return sess, false
	}

	sess := h.sessions.Create()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.ID(),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   r.TLS != nil,
	})
	return sess, true
}

func (h *Handler) existingSession(r *http.Request) (*application.ViewSession, bool) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, false
	}
	sess, err := h.sessions.Get(cookie.Value)
	if err != nil {
		return nil, false
	}
	return sess, true
}

func redirect(w http.ResponseWriter, r *http.Request, kind, code string) {
	http.Redirect(w, r, "/?"+url.Values{kind: {code}}.Encode(), http.StatusSeeOther)
}

func flashCode(err error) string {
	switch {
	case errors.Is(err, driven.ErrAuthMissing):
		return "auth_missing"
	case errors.Is(err, application.ErrMergePending):
		return "merge_pending"
	case errors.Is(err, driven.ErrConflict):
		return "conflict"
	case errors.Is(err, driven.ErrTransport):
		return "transport"
	default:
		return "failed"
	}
}
