package application

import (
	"sync"
	"time"

	"github.com/ericfisherdev/mergebridge/internal/domain/model"
)

// PRRef identifies a pull request within a session.
type PRRef struct {
	RepoFullName string
	Number       int
}

// SessionState is the mutable per-session view state: the latest snapshot and
// the merge bookkeeping layered on top of it. All methods are safe for
// concurrent use.
type SessionState struct {
	mu          sync.RWMutex
	snapshot    []model.Repository
	pending     map[PRRef]struct{}
	succeeded   map[PRRef]struct{}
	failures    map[PRRef]string
	lastMerged  *PRRef
	lastMergeAt time.Time
	now         func() time.Time
}

// NewSessionState creates an empty state.
func NewSessionState() *SessionState {
	return &SessionState{
		pending:   make(map[PRRef]struct{}),
		succeeded: make(map[PRRef]struct{}),
		failures:  make(map[PRRef]string),
		now:       time.Now,
	}
}

// Snapshot returns the current repositories. Callers must not mutate it.
func (s *SessionState) Snapshot() []model.Repository {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// ReplaceSnapshot installs repos wholesale; the last writer wins. With reset
// set, the optimistic merged set and the last-merged marker are cleared too.
// Failure notes for pull requests no longer present are dropped.
func (s *SessionState) ReplaceSnapshot(repos []model.Repository, reset bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot = repos
	if reset {
		clear(s.succeeded)
		s.lastMerged = nil
	}

	present := make(map[PRRef]struct{})
	for _, repo := range repos {
		for _, pr := range repo.PullRequests {
			present[PRRef{RepoFullName: repo.FullName, Number: pr.Number}] = struct{}{}
		}
	}
	for ref := range s.failures {
		if _, ok := present[ref]; !ok {
			delete(s.failures, ref)
		}
	}
}

// BeginMerge marks ref as in flight. It returns false when a merge for ref is
// already pending.
func (s *SessionState) BeginMerge(ref PRRef) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[ref]; ok {
		return false
	}
	s.pending[ref] = struct{}{}
	delete(s.failures, ref)
	return true
}

// EndMerge releases the in-flight mark for ref.
func (s *SessionState) EndMerge(ref PRRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, ref)
}

// RecordMerged marks ref as optimistically merged and as the last merged PR.
func (s *SessionState) RecordMerged(ref PRRef) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.succeeded[ref] = struct{}{}
	s.lastMerged = &ref
	s.lastMergeAt = s.now()
}

// RecordMergeFailure keeps a message to show next to ref.
func (s *SessionState) RecordMergeFailure(ref PRRef, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[ref] = message
}

// ClearLastMerged drops the last-merged marker if it still points at ref.
func (s *SessionState) ClearLastMerged(ref PRRef) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastMerged == nil || *s.lastMerged != ref {
		return false
	}
	s.lastMerged = nil
	return true
}

// HasUndetermined reports whether any open PR still awaits mergeability.
func (s *SessionState) HasUndetermined() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, repo := range s.snapshot {
		for _, pr := range repo.PullRequests {
			if !pr.Merged && pr.IsUndetermined() {
				return true
			}
		}
	}
	return false
}

// MergedWithin reports whether a merge completed less than window ago.
func (s *SessionState) MergedWithin(window time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.lastMergeAt.IsZero() {
		return false
	}
	return s.now().Sub(s.lastMergeAt) < window
}

// IssueKeyFor returns the issue key of ref in the current snapshot.
func (s *SessionState) IssueKeyFor(ref PRRef) model.IssueKey {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, repo := range s.snapshot {
		if repo.FullName != ref.RepoFullName {
			continue
		}
		for _, pr := range repo.PullRequests {
			if pr.Number == ref.Number {
				return pr.IssueKey
			}
		}
	}
	return ""
}

// IssueKeys returns the distinct issue keys in the snapshot in order of appearance.
func (s *SessionState) IssueKeys() []model.IssueKey {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[model.IssueKey]struct{})
	var keys []model.IssueKey
	for _, repo := range s.snapshot {
		for _, pr := range repo.PullRequests {
			if pr.IssueKey == "" {
				continue
			}
			if _, ok := seen[pr.IssueKey]; ok {
				continue
			}
			seen[pr.IssueKey] = struct{}{}
			keys = append(keys, pr.IssueKey)
		}
	}
	return keys
}
