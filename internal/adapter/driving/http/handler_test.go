package httphandler_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httphandler "github.com/ericfisherdev/mergebridge/internal/adapter/driving/http"
	"github.com/ericfisherdev/mergebridge/internal/application"
	"github.com/ericfisherdev/mergebridge/internal/domain/model"
	"github.com/ericfisherdev/mergebridge/internal/domain/port/driven"
)

// --- Fakes ---

type fakeSourceControl struct {
	mergeErr error
}

func (f *fakeSourceControl) ListRepositories(context.Context) ([]model.Repository, error) {
	return []model.Repository{{FullName: "acme/api", Owner: "acme", Name: "api", URL: "https://github.com/acme/api"}}, nil
}

func (f *fakeSourceControl) ListPullRequests(_ context.Context, owner, repo string) ([]model.PullRequest, error) {
	return []model.PullRequest{model.NewPullRequest(1, 7, owner+"/"+repo, "OPS-12 add retries", "", "feature", "main")}, nil
}

func (f *fakeSourceControl) GetPullRequest(_ context.Context, owner, repo string, number int) (*model.PullRequest, error) {
	pr := model.NewPullRequest(1, number, owner+"/"+repo, "OPS-12 add retries", "", "feature", "main")
	pr.MergeableStatus = model.MergeableMergeable
	pr.MergeableState = "clean"
	return &pr, nil
}

func (f *fakeSourceControl) IsMerged(context.Context, string, string, int) (bool, error) {
	return false, nil
}

func (f *fakeSourceControl) MergePullRequest(context.Context, string, string, int, string, string) (*model.MergeRecord, error) {
	if f.mergeErr != nil {
		return nil, f.mergeErr
	}
	return &model.MergeRecord{SHA: "6dcb09b5", Merged: true, Message: "Pull Request successfully merged"}, nil
}

func (f *fakeSourceControl) AuthenticatedUser(context.Context) (string, error) {
	return "octocat", nil
}

type fakeTracker struct {
	mu      sync.Mutex
	applied []string
}

func (f *fakeTracker) FetchIssue(_ context.Context, key model.IssueKey) (*model.Issue, error) {
	if key == "MISSING-1" {
		return nil, driven.ErrNotFound
	}
	return &model.Issue{Key: key, Summary: "Add retries", Type: "Task", Status: "In Review"}, nil
}

func (f *fakeTracker) ListTransitions(context.Context, model.IssueKey) ([]model.Transition, error) {
	return []model.Transition{{ID: "1", Name: "In Review"}, {ID: "2", Name: "Done"}}, nil
}

func (f *fakeTracker) ApplyTransition(_ context.Context, key model.IssueKey, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, string(key)+":"+id)
	return nil
}

func (f *fakeTracker) appliedTransitions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.applied...)
}

type memorySecrets struct {
	mu     sync.Mutex
	values map[string]string
}

func (m *memorySecrets) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *memorySecrets) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func (m *memorySecrets) List(context.Context) ([]model.Secret, error) { return nil, nil }

func (m *memorySecrets) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

type memoryEvents struct {
	mu     sync.Mutex
	events []model.SyncEvent
}

func (m *memoryEvents) Record(_ context.Context, e model.SyncEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = int64(len(m.events) + 1)
	e.CreatedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.events = append(m.events, e)
	return nil
}

func (m *memoryEvents) ListRecent(_ context.Context, limit int) ([]model.SyncEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.SyncEvent
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.events[i])
	}
	return out, nil
}

// --- Test environment ---

const testWebhookSecret = "s3cret"

type testEnv struct {
	server  *httptest.Server
	client  *fakeSourceControl
	tracker *fakeTracker
	events  *memoryEvents
}

func newTestEnv(t *testing.T, fallbackToken string) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &testEnv{client: &fakeSourceControl{}, tracker: &fakeTracker{}, events: &memoryEvents{}}
	secrets := &memorySecrets{values: map[string]string{}}
	factory := func(string) driven.SourceControlClient { return env.client }

	provider := application.NewSourceControlProvider(secrets, fallbackToken, factory)
	aggregator := application.NewRepoAggregator(provider, logger)
	issues := application.NewIssueService(env.tracker, logger)
	sessions := application.NewSessionManager(func(id string) *application.ViewSession {
		return application.NewViewSession(id, aggregator, provider, issues, application.DefaultTimings(), logger)
	}, time.Minute, logger)
	t.Cleanup(sessions.CloseAll)

	h := httphandler.NewHandler(
		application.NewSecretService(secrets, factory, logger),
		aggregator,
		sessions,
		issues,
		application.NewWebhookStatusSync(issues, env.events, logger),
		testWebhookSecret,
		logger,
	)

	mux := http.NewServeMux()
	httphandler.RegisterAPIRoutes(mux, h)
	env.server = httptest.NewServer(httphandler.ApplyMiddleware(mux, logger))
	t.Cleanup(env.server.Close)

	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, httphandler.Envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env httphandler.Envelope
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	}
	return resp, env
}

func decodeData(t *testing.T, env httphandler.Envelope, v any) {
	t.Helper()
	data, err := json.Marshal(env.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

// --- Tests ---

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "token")

	resp, body := env.do(t, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body.Success)

	var health httphandler.HealthResponse
	decodeData(t, body, &health)
	assert.Equal(t, "ok", health.Status)
}

func TestSecrets_PutThenGetMasked(t *testing.T) {
	env := newTestEnv(t, "")

	resp, body := env.do(t, http.MethodPut, "/api/v1/secrets/source-control-token",
		httphandler.SecretRequest{Value: "ghp_1234567890abcdef"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body.Success)

	resp, body = env.do(t, http.MethodGet, "/api/v1/secrets/source-control-token", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var secret httphandler.SecretResponse
	decodeData(t, body, &secret)
	assert.Equal(t, "ghp_1*****bcdef", secret.Value)
}

func TestSecrets_Errors(t *testing.T) {
	env := newTestEnv(t, "")

	resp, body := env.do(t, http.MethodGet, "/api/v1/secrets/source-control-username", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.False(t, body.Success)
	assert.Equal(t, httphandler.CodeNotFound, body.Code)

	resp, body = env.do(t, http.MethodPut, "/api/v1/secrets/source-control-token", httphandler.SecretRequest{Value: " "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, httphandler.CodeInvalidRequest, body.Code)
}

func TestListRepos(t *testing.T) {
	env := newTestEnv(t, "token")

	resp, body := env.do(t, http.MethodGet, "/api/v1/repos", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var repos []application.RepositoryView
	decodeData(t, body, &repos)
	require.Len(t, repos, 1)
	assert.Equal(t, "acme/api", repos[0].FullName)
	require.Len(t, repos[0].PullRequests, 1)
	assert.Equal(t, "OPS-12", repos[0].PullRequests[0].IssueKey)
	assert.True(t, repos[0].PullRequests[0].CanMerge)
}

func TestListRepos_AuthMissing(t *testing.T) {
	env := newTestEnv(t, "")

	resp, body := env.do(t, http.MethodGet, "/api/v1/repos", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, httphandler.CodeAuthMissing, body.Code)
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, "token")

	resp, body := env.do(t, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var view application.SessionView
	decodeData(t, body, &view)
	require.NotEmpty(t, view.ID)
	require.Len(t, view.Repositories, 1)
	assert.Equal(t, "found", view.Repositories[0].PullRequests[0].IssueState)

	base := "/api/v1/sessions/" + view.ID

	resp, _ = env.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = env.do(t, http.MethodPost, base+"/merge",
		httphandler.MergeRequest{Owner: "acme", Repo: "api", PullNumber: 7})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var merged httphandler.MergeResponse
	decodeData(t, body, &merged)
	assert.True(t, merged.Merged)
	assert.Equal(t, "6dcb09b5", merged.SHA)
	assert.True(t, merged.Session.Repositories[0].PullRequests[0].Merged)

	resp, _ = env.do(t, http.MethodPost, base+"/refresh", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, httphandler.CodeNotFound, body.Code)
}

func TestMergeSession_Errors(t *testing.T) {
	env := newTestEnv(t, "token")
	env.client.mergeErr = driven.ErrConflict

	_, body := env.do(t, http.MethodPost, "/api/v1/sessions", nil)
	var view application.SessionView
	decodeData(t, body, &view)
	base := "/api/v1/sessions/" + view.ID

	resp, body := env.do(t, http.MethodPost, base+"/merge",
		httphandler.MergeRequest{Owner: "acme", Repo: "api", PullNumber: 7})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, httphandler.CodeConflict, body.Code)

	resp, body = env.do(t, http.MethodPost, base+"/merge", httphandler.MergeRequest{Owner: "acme"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, httphandler.CodeInvalidRequest, body.Code)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/sessions/nope/merge",
		httphandler.MergeRequest{Owner: "acme", Repo: "api", PullNumber: 7})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetIssue(t *testing.T) {
	env := newTestEnv(t, "token")

	resp, body := env.do(t, http.MethodGet, "/api/v1/issues/OPS-12", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var issue application.IssueView
	decodeData(t, body, &issue)
	assert.Equal(t, "In Review", issue.Status)

	resp, body = env.do(t, http.MethodGet, "/api/v1/issues/MISSING-1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, httphandler.CodeNotFound, body.Code)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/issues/not-a-key", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(t *testing.T, env *testEnv, payload []byte, signature string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/webhooks/github", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "pull_request")
	req.Header.Set("X-GitHub-Delivery", "d-1")
	req.Header.Set("X-Hub-Signature-256", signature)

	resp, err := env.server.Client().Do(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Webhook triggered.", string(body))
	return resp
}

const mergedPayload = `{
	"action": "closed",
	"number": 4,
	"pull_request": {
		"number": 4,
		"title": "PROJ-9 fix",
		"head": {"ref": "feature"},
		"merged_at": "2026-03-01T12:00:00Z"
	}
}`

func TestGitHubWebhook_MergedTransitionsIssue(t *testing.T) {
	env := newTestEnv(t, "token")
	payload := []byte(mergedPayload)

	postWebhook(t, env, payload, sign(payload))

	assert.Equal(t, []string{"PROJ-9:2"}, env.tracker.appliedTransitions())

	resp, body := env.do(t, http.MethodGet, "/api/v1/sync-events?limit=5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var events []httphandler.SyncEventResponse
	decodeData(t, body, &events)
	require.Len(t, events, 1)
	assert.Equal(t, "transitioned", events[0].Outcome)
	assert.Equal(t, "Done", events[0].Transition)
}

func TestGitHubWebhook_UnmergedClose(t *testing.T) {
	env := newTestEnv(t, "token")
	payload := []byte(strings.Replace(mergedPayload, `"merged_at": "2026-03-01T12:00:00Z"`, `"merged_at": null`, 1))

	postWebhook(t, env, payload, sign(payload))

	assert.Empty(t, env.tracker.appliedTransitions())
}

func TestGitHubWebhook_InvalidSignature(t *testing.T) {
	env := newTestEnv(t, "token")

	postWebhook(t, env, []byte(mergedPayload), "sha256=deadbeef")

	assert.Empty(t, env.tracker.appliedTransitions())
	require.Len(t, env.events.events, 1)
	assert.Equal(t, model.SyncOutcomeRejected, env.events.events[0].Outcome)
}

func TestListSyncEvents_InvalidLimit(t *testing.T) {
	env := newTestEnv(t, "token")

	resp, body := env.do(t, http.MethodGet, "/api/v1/sync-events?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, httphandler.CodeInvalidRequest, body.Code)
}

func TestStreamSession_SendsInitialView(t *testing.T) {
	env := newTestEnv(t, "token")

	_, body := env.do(t, http.MethodPost, "/api/v1/sessions", nil)
	var view application.SessionView
	decodeData(t, body, &view)

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/api/v1/sessions/" + view.ID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg httphandler.WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, httphandler.MsgSessionView, msg.Type)

	var streamed application.SessionView
	require.NoError(t, json.Unmarshal(msg.Payload, &streamed))
	assert.Equal(t, view.ID, streamed.ID)
}

func TestNewWSMessage_InvalidPayload_ReturnsError(t *testing.T) {
	_, err := httphandler.NewWSMessage(httphandler.MsgSessionView, make(chan int))
	assert.Error(t, err)
}
