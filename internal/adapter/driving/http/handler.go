// Package httphandler is the HTTP driving adapter that serves the JSON API,
// the session websocket stream and the GitHub webhook receiver.
package httphandler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ericfisherdev/mergebridge/internal/application"
	"github.com/ericfisherdev/mergebridge/internal/domain/model"
)

const (
	defaultSyncEventLimit = 50
	maxSyncEventLimit     = 500
)

// Handler serves the REST API.
type Handler struct {
	secrets       *application.SecretService
	aggregator    application.SnapshotSource
	sessions      *application.SessionManager
	issues        *application.IssueService
	webhooks      *application.WebhookStatusSync
	webhookSecret []byte
	logger        *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. An empty
// webhookSecret disables signature verification.
func NewHandler(
	secrets *application.SecretService,
	aggregator application.SnapshotSource,
	sessions *application.SessionManager,
	issues *application.IssueService,
	webhooks *application.WebhookStatusSync,
	webhookSecret string,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		secrets:       secrets,
		aggregator:    aggregator,
		sessions:      sessions,
		issues:        issues,
		webhooks:      webhooks,
		webhookSecret: []byte(webhookSecret),
		logger:        logger,
	}
}

// RegisterAPIRoutes registers every API route on mux.
func RegisterAPIRoutes(mux *http.ServeMux, h *Handler) {
	mux.HandleFunc("GET /api/v1/health", h.Health)

	mux.HandleFunc("PUT /api/v1/secrets/{key}", h.PutSecret)
	mux.HandleFunc("GET /api/v1/secrets/{key}", h.GetSecret)

	mux.HandleFunc("GET /api/v1/repos", h.ListRepos)

	mux.HandleFunc("POST /api/v1/sessions", h.CreateSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}", h.GetSession)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", h.DeleteSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/refresh", h.RefreshSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/merge", h.MergeSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}/ws", h.StreamSession)

	mux.HandleFunc("GET /api/v1/issues/{key}", h.GetIssue)
	mux.HandleFunc("GET /api/v1/sync-events", h.ListSyncEvents)

	mux.HandleFunc("POST /webhooks/github", h.GitHubWebhook)
}

// ApplyMiddleware wraps next with recovery and request logging.
func ApplyMiddleware(next http.Handler, logger *slog.Logger) http.Handler {
	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, next)
	return loggingMiddleware(logger, wrapped)
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Time:     time.Now().UTC().Format(time.RFC3339),
		Sessions: h.sessions.Len(),
	})
}

// PutSecret stores a secret value.
func (h *Handler) PutSecret(w http.ResponseWriter, r *http.Request) {
	var req SecretRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid request body")
		return
	}

	if err := h.secrets.Save(r.Context(), r.PathValue("key"), req.Value); err != nil {
		h.logger.Warn("saving secret failed", "key", r.PathValue("key"), "error", err)
		writeServiceError(w, err, nil)
		return
	}

	writeJSON(w, http.StatusOK, Envelope{Success: true})
}

// GetSecret returns a masked secret.
func (h *Handler) GetSecret(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	masked, ok, err := h.secrets.LoadMasked(r.Context(), key)
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, CodeNotFound, "secret not set")
		return
	}

	writeData(w, http.StatusOK, SecretResponse{Key: key, Value: masked})
}

// ListRepos runs one stateless aggregation.
func (h *Handler) ListRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := h.aggregator.Aggregate(r.Context())
	if err != nil {
		h.logger.Error("aggregation failed", "error", err)
		writeServiceError(w, err, nil)
		return
	}

	writeData(w, http.StatusOK, application.ProjectRepositories(repos))
}

// CreateSession opens a session and performs its initial refresh. The
// session survives a failed refresh so the caller can retry it.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Create()

	view, err := sess.Refresh(r.Context())
	if err != nil {
		h.logger.Warn("initial session refresh failed", "session", sess.ID(), "error", err)
		writeServiceError(w, err, view)
		return
	}

	writeData(w, http.StatusCreated, view)
}

// GetSession returns the current view of a session.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}

	writeData(w, http.StatusOK, sess.View())
}

// DeleteSession disposes a session.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Dispose(r.PathValue("id")); err != nil {
		writeServiceError(w, err, nil)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RefreshSession performs a manual full refresh.
func (h *Handler) RefreshSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}

	view, err := sess.Refresh(r.Context())
	if err != nil {
		h.logger.Warn("session refresh failed", "session", sess.ID(), "error", err)
		writeServiceError(w, err, view)
		return
	}

	writeData(w, http.StatusOK, view)
}

// MergeSession merges a pull request within a session.
func (h *Handler) MergeSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}

	var req MergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid request body")
		return
	}
	if !isValidRepoPart(req.Owner) || !isValidRepoPart(req.Repo) || req.PullNumber <= 0 {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "owner, repo and a positive pull_number are required")
		return
	}

	record, err := sess.Merge(r.Context(), req.Owner, req.Repo, req.PullNumber)

	resp := MergeResponse{Session: sess.View()}
	if record != nil {
		resp.SHA = record.SHA
		resp.Merged = record.Merged
		resp.Message = record.Message
	}

	if err != nil {
		writeServiceError(w, err, resp)
		return
	}

	writeData(w, http.StatusOK, resp)
}

// GetIssue fetches a single issue from the tracker.
func (h *Handler) GetIssue(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("key")
	key, ok := model.ExtractIssueKey(raw)
	if !ok || string(key) != raw {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid issue key")
		return
	}

	issue, err := h.issues.FetchIssue(r.Context(), key)
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}

	writeData(w, http.StatusOK, application.NewIssueView(issue))
}

// ListSyncEvents returns recent webhook sync outcomes, newest first.
func (h *Handler) ListSyncEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultSyncEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, CodeInvalidRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxSyncEventLimit)
	}

	events, err := h.webhooks.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("listing sync events failed", "error", err)
		writeServiceError(w, err, nil)
		return
	}

	resp := make([]SyncEventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, toSyncEventResponse(e))
	}
	writeData(w, http.StatusOK, resp)
}

// isValidRepoPart reports whether s is a plausible owner or repository name:
// alphanumeric characters, hyphens, dots, or underscores.
func isValidRepoPart(s string) bool {
	if s == "" {
		return false
	}
	for _, ch := range s {
		if !isValidRepoChar(ch) {
			return false
		}
	}
	return true
}

// isValidRepoChar returns true if the rune is allowed in a repository owner or name.
func isValidRepoChar(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') ||
		(ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9') ||
		ch == '-' || ch == '.' || ch == '_'
}
