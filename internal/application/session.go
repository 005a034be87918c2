package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/mergebridge/internal/domain/model"
	"github.com/ericfisherdev/mergebridge/internal/domain/port/driven"
)

// ErrSessionDisposed is returned by operations on a disposed session.
var ErrSessionDisposed = errors.New("session disposed")

// SnapshotSource produces a repository snapshot. RepoAggregator is the
// production implementation.
type SnapshotSource interface {
	Aggregate(ctx context.Context) ([]model.Repository, error)
}

// ViewSession is one dashboard view: a snapshot plus its merge state, issue
// cache, deferred tasks and reconciliation poller. Everything it owns is torn
// down by Dispose.
type ViewSession struct {
	id      string
	source  SnapshotSource
	issues  *IssueService
	cache   *IssueCache
	state   *SessionState
	timings Timings
	logger  *slog.Logger

	scheduler    *Scheduler
	orchestrator *MergeOrchestrator
	poller       *ReconciliationPoller

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	disposed    bool
	lastUsed    time.Time
	nextSubID   int
	subscribers map[int]chan SessionView
}

// NewViewSession wires a session. issues may be disabled, in which case no
// issue lookups are attempted.
func NewViewSession(
	id string,
	source SnapshotSource,
	clients ClientSource,
	issues *IssueService,
	timings Timings,
	logger *slog.Logger,
) *ViewSession {
	ctx, cancel := context.WithCancel(context.Background())

	s := &ViewSession{
		id:          id,
		source:      source,
		issues:      issues,
		cache:       NewIssueCache(),
		state:       NewSessionState(),
		timings:     timings,
		logger:      logger.With("session", id),
		scheduler:   NewScheduler(),
		ctx:         ctx,
		cancel:      cancel,
		lastUsed:    time.Now(),
		subscribers: make(map[int]chan SessionView),
	}

	s.orchestrator = NewMergeOrchestrator(clients, s.state, s.scheduler, timings, MergeHooks{
		RefreshIssue:        s.refreshIssue,
		RefreshRepositories: s.refreshRepositories,
		Changed: func() {
			s.poller.Evaluate()
			s.notify()
		},
	}, s.logger)

	s.poller = NewReconciliationPoller(timings.PollInterval, s.shouldPoll, s.pollTick, s.logger)

	return s
}

// ID returns the session identifier.
func (s *ViewSession) ID() string { return s.id }

// LastUsed returns the time of the most recent caller interaction.
func (s *ViewSession) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Refresh performs a manual full refresh. The optimistic merged set and the
// last-merged marker are reset before the new snapshot is installed.
func (s *ViewSession) Refresh(ctx context.Context) (SessionView, error) {
	if err := s.touch(); err != nil {
		return SessionView{}, err
	}

	repos, err := s.source.Aggregate(ctx)
	if err != nil {
		return s.View(), err
	}

	s.applySnapshot(ctx, repos, true)
	return s.View(), nil
}

// Merge merges a pull request through the session's orchestrator.
func (s *ViewSession) Merge(ctx context.Context, owner, repo string, number int) (*model.MergeRecord, error) {
	if err := s.touch(); err != nil {
		return nil, err
	}
	return s.orchestrator.Merge(ctx, owner, repo, number)
}

// Issue returns key from the cache, fetching it on a miss.
func (s *ViewSession) Issue(ctx context.Context, key model.IssueKey) (*model.Issue, IssueState, error) {
	if err := s.touch(); err != nil {
		return nil, IssueAbsent, err
	}

	if issue, state := s.cache.Lookup(key); state != IssueAbsent {
		return issue, state, nil
	}

	issue, err := s.issues.FetchIssue(ctx, key)
	switch {
	case err == nil:
		s.cache.StoreFound(key, issue)
		return issue, IssueFound, nil
	case errors.Is(err, driven.ErrNotFound):
		s.cache.StoreNotFound(key)
		return nil, IssueNotFound, nil
	default:
		return nil, IssueAbsent, err
	}
}

// View returns the current snapshot joined with merge and issue state.
func (s *ViewSession) View() SessionView {
	var cache *IssueCache
	if s.issues.Enabled() {
		cache = s.cache
	}

	view := buildView(s.state, cache)
	view.ID = s.id
	view.Polling = s.poller.Running()
	view.IssueTrackerEnabled = cache != nil
	return view
}

// Subscribe returns a channel that receives a view after every change. Slow
// subscribers only ever see the latest view. The returned func unsubscribes.
func (s *ViewSession) Subscribe() (<-chan SessionView, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan SessionView, 1)
	if s.disposed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(sub)
			s.lastUsed = time.Now()
		}
	}
}

// Watched reports whether any subscriber is attached.
func (s *ViewSession) Watched() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers) > 0
}

// Dispose cancels pending tasks, stops the poller, and closes subscribers.
// Late snapshots and timers are ignored afterwards. Dispose is idempotent.
func (s *ViewSession) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
	s.mu.Unlock()

	s.cancel()
	s.scheduler.Close()
	s.poller.Stop()
	s.logger.Debug("session disposed")
}

// Disposed reports whether Dispose has been called.
func (s *ViewSession) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

func (s *ViewSession) touch() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return ErrSessionDisposed
	}
	s.lastUsed = time.Now()
	return nil
}

// applySnapshot installs repos, loads missing issues, re-evaluates the poller
// and notifies subscribers.
func (s *ViewSession) applySnapshot(ctx context.Context, repos []model.Repository, reset bool) {
	if s.Disposed() {
		return
	}

	s.state.ReplaceSnapshot(repos, reset)
	s.loadMissingIssues(ctx)
	s.poller.Evaluate()
	s.notify()
}

func (s *ViewSession) loadMissingIssues(ctx context.Context) {
	if !s.issues.Enabled() {
		return
	}

	missing := s.cache.Missing(s.state.IssueKeys())
	if len(missing) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(DefaultFetchConcurrency)
	for _, key := range missing {
		g.Go(func() error {
			s.fetchIntoCache(ctx, key)
			return nil
		})
	}
	_ = g.Wait()
}

// fetchIntoCache stores a found issue or a negative entry. Transport errors
// leave the key absent so a later snapshot retries it.
func (s *ViewSession) fetchIntoCache(ctx context.Context, key model.IssueKey) {
	issue, err := s.issues.FetchIssue(ctx, key)
	switch {
	case err == nil:
		s.cache.StoreFound(key, issue)
	case errors.Is(err, driven.ErrNotFound):
		s.cache.StoreNotFound(key)
	default:
		s.logger.Warn("fetching issue failed", "issue", key, "error", err)
	}
}

func (s *ViewSession) refreshIssue(key model.IssueKey) {
	if s.Disposed() || !s.issues.Enabled() {
		return
	}

	s.cache.Evict(key)
	s.fetchIntoCache(s.ctx, key)
	s.notify()
}

func (s *ViewSession) refreshRepositories() {
	if s.Disposed() {
		return
	}

	repos, err := s.source.Aggregate(s.ctx)
	if err != nil {
		s.logger.Warn("scheduled refresh failed", "error", err)
		return
	}
	s.applySnapshot(s.ctx, repos, false)
}

func (s *ViewSession) shouldPoll() bool {
	return s.state.HasUndetermined() || s.state.MergedWithin(s.timings.RecentMergeWindow)
}

func (s *ViewSession) pollTick(ctx context.Context) error {
	repos, err := s.source.Aggregate(ctx)
	if err != nil {
		return err
	}
	s.applySnapshot(ctx, repos, false)
	return nil
}

func (s *ViewSession) notify() {
	s.mu.Lock()
	if s.disposed || len(s.subscribers) == 0 {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	view := s.View()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- view:
		default:
		}
	}
}
