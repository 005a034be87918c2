package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/mergebridge/internal/domain/model"
	"github.com/ericfisherdev/mergebridge/internal/domain/port/driven"
)

// ErrTrackerNotConfigured is returned by IssueService when no issue tracker
// credentials were supplied.
var ErrTrackerNotConfigured = errors.New("issue tracker not configured")

// TransitionResult describes how far TransitionToDone got.
type TransitionResult struct {
	Outcome    model.SyncOutcome
	Transition model.Transition
	Issue      *model.Issue
}

// IssueService wraps the issue tracker port. The tracker may be nil, in which
// case every call fails with ErrTrackerNotConfigured.
type IssueService struct {
	tracker driven.IssueTracker
	logger  *slog.Logger
}

// NewIssueService creates an IssueService.
func NewIssueService(tracker driven.IssueTracker, logger *slog.Logger) *IssueService {
	return &IssueService{tracker: tracker, logger: logger}
}

// Enabled reports whether a tracker is wired.
func (s *IssueService) Enabled() bool {
	return s != nil && s.tracker != nil
}

// FetchIssue retrieves a single issue.
func (s *IssueService) FetchIssue(ctx context.Context, key model.IssueKey) (*model.Issue, error) {
	if !s.Enabled() {
		return nil, ErrTrackerNotConfigured
	}
	return s.tracker.FetchIssue(ctx, key)
}

// ListTransitions returns the transitions available for key in tracker order.
func (s *IssueService) ListTransitions(ctx context.Context, key model.IssueKey) ([]model.Transition, error) {
	if !s.Enabled() {
		return nil, ErrTrackerNotConfigured
	}
	return s.tracker.ListTransitions(ctx, key)
}

// ApplyTransition posts a transition once. Failures are logged and returned;
// callers are free to ignore the result.
func (s *IssueService) ApplyTransition(ctx context.Context, key model.IssueKey, transitionID string) error {
	if !s.Enabled() {
		return ErrTrackerNotConfigured
	}

	if err := s.tracker.ApplyTransition(ctx, key, transitionID); err != nil {
		s.logger.Warn("applying transition failed", "issue", key, "transition", transitionID, "error", err)
		return err
	}

	s.logger.Info("transition applied", "issue", key, "transition", transitionID)
	return nil
}

// TransitionToDone fetches key, resolves its terminal transition, and applies
// it. The returned outcome is meaningful even when err is non-nil.
func (s *IssueService) TransitionToDone(ctx context.Context, key model.IssueKey) (TransitionResult, error) {
	issue, err := s.FetchIssue(ctx, key)
	if err != nil {
		if errors.Is(err, driven.ErrNotFound) {
			return TransitionResult{Outcome: model.SyncOutcomeNotFound}, err
		}
		return TransitionResult{Outcome: model.SyncOutcomeFailed}, err
	}

	transitions, err := s.ListTransitions(ctx, key)
	if err != nil {
		return TransitionResult{Outcome: model.SyncOutcomeFailed, Issue: issue}, err
	}
	issue.Transitions = transitions

	done, ok := model.ResolveDoneTransition(transitions)
	if !ok {
		return TransitionResult{Outcome: model.SyncOutcomeNoTransition, Issue: issue}, nil
	}

	result := TransitionResult{Outcome: model.SyncOutcomeTransitioned, Transition: done, Issue: issue}
	if err := s.ApplyTransition(ctx, key, done.ID); err != nil {
		result.Outcome = model.SyncOutcomeFailed
		return result, fmt.Errorf("transitioning %s to %q: %w", key, done.Name, err)
	}
	return result, nil
}
