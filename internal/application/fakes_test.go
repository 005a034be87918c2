package application_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/ericfisherdev/mergebridge/internal/application"
	"github.com/ericfisherdev/mergebridge/internal/domain/model"
	"github.com/ericfisherdev/mergebridge/internal/domain/port/driven"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSourceControl is a hand-written SourceControlClient with optional
// per-method overrides.
type fakeSourceControl struct {
	listReposFn   func(ctx context.Context) ([]model.Repository, error)
	listPRsFn     func(ctx context.Context, owner, repo string) ([]model.PullRequest, error)
	getPRFn       func(ctx context.Context, owner, repo string, number int) (*model.PullRequest, error)
	isMergedFn    func(ctx context.Context, owner, repo string, number int) (bool, error)
	mergeFn       func(ctx context.Context, owner, repo string, number int, title, message string) (*model.MergeRecord, error)
	userFn        func(ctx context.Context) (string, error)
	listRepoCalls atomic.Int32
	mergeCalls    atomic.Int32
}

var _ driven.SourceControlClient = (*fakeSourceControl)(nil)

func (f *fakeSourceControl) ListRepositories(ctx context.Context) ([]model.Repository, error) {
	f.listRepoCalls.Add(1)
	if f.listReposFn != nil {
		return f.listReposFn(ctx)
	}
	return nil, nil
}

func (f *fakeSourceControl) ListPullRequests(ctx context.Context, owner, repo string) ([]model.PullRequest, error) {
	if f.listPRsFn != nil {
		return f.listPRsFn(ctx, owner, repo)
	}
	return nil, nil
}

func (f *fakeSourceControl) GetPullRequest(ctx context.Context, owner, repo string, number int) (*model.PullRequest, error) {
	if f.getPRFn != nil {
		return f.getPRFn(ctx, owner, repo, number)
	}
	return nil, driven.ErrNotFound
}

func (f *fakeSourceControl) IsMerged(ctx context.Context, owner, repo string, number int) (bool, error) {
	if f.isMergedFn != nil {
		return f.isMergedFn(ctx, owner, repo, number)
	}
	return false, nil
}

func (f *fakeSourceControl) MergePullRequest(ctx context.Context, owner, repo string, number int, title, message string) (*model.MergeRecord, error) {
	f.mergeCalls.Add(1)
	if f.mergeFn != nil {
		return f.mergeFn(ctx, owner, repo, number, title, message)
	}
	return &model.MergeRecord{SHA: "abc123", Merged: true, Message: "merged"}, nil
}

func (f *fakeSourceControl) AuthenticatedUser(ctx context.Context) (string, error) {
	if f.userFn != nil {
		return f.userFn(ctx)
	}
	return "octocat", nil
}

// staticClients always hands out the same client, or err when set.
type staticClients struct {
	client driven.SourceControlClient
	err    error
}

func (s staticClients) Client(context.Context) (driven.SourceControlClient, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.client, nil
}

// mockTracker is a testify mock of the IssueTracker port.
type mockTracker struct {
	mock.Mock
}

var _ driven.IssueTracker = (*mockTracker)(nil)

func (m *mockTracker) FetchIssue(ctx context.Context, key model.IssueKey) (*model.Issue, error) {
	args := m.Called(ctx, key)
	issue, _ := args.Get(0).(*model.Issue)
	return issue, args.Error(1)
}

func (m *mockTracker) ListTransitions(ctx context.Context, key model.IssueKey) ([]model.Transition, error) {
	args := m.Called(ctx, key)
	transitions, _ := args.Get(0).([]model.Transition)
	return transitions, args.Error(1)
}

func (m *mockTracker) ApplyTransition(ctx context.Context, key model.IssueKey, transitionID string) error {
	args := m.Called(ctx, key, transitionID)
	return args.Error(0)
}

// memorySecrets is an in-memory SecretStore.
type memorySecrets struct {
	mu     sync.Mutex
	values map[string]string
	getErr error
}

var _ driven.SecretStore = (*memorySecrets)(nil)

func newMemorySecrets() *memorySecrets {
	return &memorySecrets{values: make(map[string]string)}
}

func (m *memorySecrets) Set(_ context.Context, key, plaintext string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = plaintext
	return nil
}

func (m *memorySecrets) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", m.getErr
	}
	return m.values[key], nil
}

func (m *memorySecrets) List(context.Context) ([]model.Secret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Secret, 0, len(m.values))
	for k := range m.values {
		out = append(out, model.Secret{Key: k, UpdatedAt: time.Now()})
	}
	return out, nil
}

func (m *memorySecrets) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// memoryEvents is an in-memory SyncEventStore.
type memoryEvents struct {
	mu     sync.Mutex
	events []model.SyncEvent
}

func (m *memoryEvents) Record(_ context.Context, event model.SyncEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *memoryEvents) ListRecent(_ context.Context, limit int) ([]model.SyncEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.SyncEvent, 0, limit)
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.events[i])
	}
	return out, nil
}

// snapshotFunc adapts a func to application.SnapshotSource.
type snapshotFunc func(ctx context.Context) ([]model.Repository, error)

func (f snapshotFunc) Aggregate(ctx context.Context) ([]model.Repository, error) { return f(ctx) }

var _ application.SnapshotSource = snapshotFunc(nil)

func linkedPR(repo string, number int, title string, status model.MergeableStatus) model.PullRequest {
	pr := model.NewPullRequest(int64(number), number, repo, title, "https://github.com/"+repo+"/pull/1", "feature", "main")
	pr.MergeableStatus = status
	if status == model.MergeableMergeable {
		pr.MergeableState = "clean"
	}
	return pr
}

func fastTimings() application.Timings {
	return application.Timings{
		IssueRefreshDelay: 10 * time.Millisecond,
		RepoRefreshDelay:  15 * time.Millisecond,
		LastMergedTTL:     40 * time.Millisecond,
		PollInterval:      10 * time.Millisecond,
		RecentMergeWindow: 60 * time.Millisecond,
	}
}
