package httphandler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ericfisherdev/mergebridge/internal/application"
	"github.com/ericfisherdev/mergebridge/internal/domain/model"
	"github.com/ericfisherdev/mergebridge/internal/domain/port/driven"
)

// Error codes carried in the envelope.
const (
	CodeAuthMissing       = "auth_missing"
	CodeNotFound          = "not_found"
	CodeConflict          = "conflict"
	CodeMergePending      = "merge_pending"
	CodeTransport         = "transport"
	CodeInvalidRequest    = "invalid_request"
	CodeNotConfigured     = "not_configured"
	CodeInternal          = "internal"
	internalErrorFallback = `{"success":false,"error":"internal server error","code":"internal"}`
)

// Envelope is the body of every API response.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(internalErrorFallback))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Success: true, Data: data})
}

// writeError writes a failure envelope.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Envelope{Error: message, Code: code})
}

// writeServiceError maps err onto its status and code. data, when non-nil, is
// sent alongside the error.
func writeServiceError(w http.ResponseWriter, err error, data any) {
	status, code := classifyError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	writeJSON(w, status, Envelope{Data: data, Error: message, Code: code})
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, driven.ErrAuthMissing):
		return http.StatusUnauthorized, CodeAuthMissing
	case errors.Is(err, application.ErrMergePending):
		return http.StatusConflict, CodeMergePending
	case errors.Is(err, driven.ErrConflict):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, driven.ErrNotFound),
		errors.Is(err, application.ErrSessionNotFound),
		errors.Is(err, application.ErrSessionDisposed):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, application.ErrEmptySecret),
		errors.Is(err, application.ErrInvalidSecretKey):
		return http.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, application.ErrTrackerNotConfigured),
		errors.Is(err, driven.ErrEncryptionKeyNotSet):
		return http.StatusServiceUnavailable, CodeNotConfigured
	case errors.Is(err, driven.ErrTransport):
		return http.StatusBadGateway, CodeTransport
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// HealthResponse is the JSON body of the health endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Time     string `json:"time"`
	Sessions int    `json:"sessions"`
}

// SecretRequest is the body of PUT /api/v1/secrets/{key}.
type SecretRequest struct {
	Value string `json:"value"`
}

// SecretResponse carries a masked secret.
type SecretResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// MergeRequest is the body of POST /api/v1/sessions/{id}/merge.
type MergeRequest struct {
	Owner      string `json:"owner"`
	Repo       string `json:"repo"`
	PullNumber int    `json:"pull_number"`
}

// MergeResponse reports an upstream merge result with the updated view.
type MergeResponse struct {
	SHA     string                  `json:"sha,omitempty"`
	Merged  bool                    `json:"merged"`
	Message string                  `json:"message,omitempty"`
	Session application.SessionView `json:"session"`
}

// SyncEventResponse is the JSON representation of a recorded webhook outcome.
type SyncEventResponse struct {
	ID         int64  `json:"id"`
	IssueKey   string `json:"issue_key,omitempty"`
	PRNumber   int    `json:"pr_number,omitempty"`
	Outcome    string `json:"outcome"`
	Transition string `json:"transition,omitempty"`
	Detail     string `json:"detail,omitempty"`
	CreatedAt  string `json:"created_at"`
}

func toSyncEventResponse(e model.SyncEvent) SyncEventResponse {
	return SyncEventResponse{
		ID:         e.ID,
		IssueKey:   string(e.IssueKey),
		PRNumber:   e.PRNumber,
		Outcome:    string(e.Outcome),
		Transition: e.Transition,
		Detail:     e.Detail,
		CreatedAt:  e.CreatedAt.UTC().Format(time.RFC3339),
	}
}
