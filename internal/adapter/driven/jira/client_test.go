package jira_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/mergebridge/internal/adapter/driven/jira"
	"github.com/ericfisherdev/mergebridge/internal/domain/model"
	"github.com/ericfisherdev/mergebridge/internal/domain/port/driven"
)

func newTestClient(t *testing.T, handler http.Handler) *jira.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return jira.NewClient(server.URL, "dev@example.com", "api-token",
		jira.WithHTTPClient(server.Client()),
		jira.WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
		jira.WithMaxRetries(2),
	)
}

func TestFetchIssue(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /rest/api/3/issue/PROJ-9", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "dev@example.com", user)
		assert.Equal(t, "api-token", pass)
		assert.Equal(t, "summary,issuetype,status", r.URL.Query().Get("fields"))

		_, _ = w.Write([]byte(`{
			"key": "PROJ-9",
			"fields": {
				"summary": "Retry webhook deliveries",
				"issuetype": {"name": "Task"},
				"status": {"name": "In Review"}
			}
		}`))
	})

	client := newTestClient(t, mux)

	issue, err := client.FetchIssue(context.Background(), "PROJ-9")
	require.NoError(t, err)
	assert.Equal(t, model.IssueKey("PROJ-9"), issue.Key)
	assert.Equal(t, "Retry webhook deliveries", issue.Summary)
	assert.Equal(t, "Task", issue.Type)
	assert.Equal(t, "In Review", issue.Status)
}

func TestFetchIssue_NotFoundCases(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "404", status: http.StatusNotFound, body: `{"errorMessages":["Issue does not exist"]}`},
		{name: "403", status: http.StatusForbidden, body: `{}`},
		{name: "empty body", status: http.StatusOK, body: `{}`},
		{name: "missing key", status: http.StatusOK, body: `{"fields":{"summary":"x"}}`},
		{name: "persistent 5xx", status: http.StatusBadGateway, body: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("GET /rest/api/3/issue/PROJ-9", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			client := newTestClient(t, mux)

			issue, err := client.FetchIssue(context.Background(), "PROJ-9")
			assert.Nil(t, issue)
			assert.ErrorIs(t, err, driven.ErrNotFound)
		})
	}
}

func TestFetchIssue_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /rest/api/3/issue/PROJ-9", func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"key":"PROJ-9","fields":{"summary":"ok"}}`))
	})

	client := newTestClient(t, mux)

	issue, err := client.FetchIssue(context.Background(), "PROJ-9")
	require.NoError(t, err)
	assert.Equal(t, "ok", issue.Summary)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchIssue_TransportError(t *testing.T) {
	server := httptest.NewServer(http.NewServeMux())
	client := jira.NewClient(server.URL, "", "pat",
		jira.WithHTTPClient(server.Client()),
		jira.WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
		jira.WithMaxRetries(1),
	)
	server.Close()

	_, err := client.FetchIssue(context.Background(), "PROJ-9")
	assert.ErrorIs(t, err, driven.ErrTransport)
	assert.NotErrorIs(t, err, driven.ErrNotFound)
}

func TestListTransitions_PreservesOrder(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /rest/api/3/issue/PROJ-9/transitions", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"transitions":[{"id":"1","name":"In Review"},{"id":"2","name":"Done"}]}`))
	})

	client := newTestClient(t, mux)

	transitions, err := client.ListTransitions(context.Background(), "PROJ-9")
	require.NoError(t, err)
	assert.Equal(t, []model.Transition{{ID: "1", Name: "In Review"}, {ID: "2", Name: "Done"}}, transitions)
}

func TestApplyTransition(t *testing.T) {
	var got map[string]map[string]string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /rest/api/3/issue/PROJ-9/transitions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	})

	client := newTestClient(t, mux)

	err := client.ApplyTransition(context.Background(), "PROJ-9", "2")
	require.NoError(t, err)
	assert.Equal(t, "2", got["transition"]["id"])
}

func TestApplyTransition_NotRetried(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /rest/api/3/issue/PROJ-9/transitions", func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	client := newTestClient(t, mux)

	err := client.ApplyTransition(context.Background(), "PROJ-9", "2")
	assert.ErrorIs(t, err, driven.ErrTransport)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBearerAuthWithoutEmail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /rest/api/3/issue/PROJ-9/transitions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer pat", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"transitions":[]}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := jira.NewClient(server.URL+"/", "", "pat", jira.WithHTTPClient(server.Client()))

	transitions, err := client.ListTransitions(context.Background(), "PROJ-9")
	require.NoError(t, err)
	assert.Empty(t, transitions)
}
