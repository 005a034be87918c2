package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/mergebridge/internal/application"
	"github.com/ericfisherdev/mergebridge/internal/domain/model"
	"github.com/ericfisherdev/mergebridge/internal/domain/port/driven"
)

func mergedAt() *time.Time {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &ts
}

func TestWebhookStatusSync_UnmergedCloseMakesNoCalls(t *testing.T) {
	tracker := new(mockTracker)
	events := &memoryEvents{}
	syncer := application.NewWebhookStatusSync(application.NewIssueService(tracker, discardLogger()), events, discardLogger())

	got := syncer.Handle(context.Background(), model.PullRequestEvent{Action: "closed", Number: 4, Title: "PROJ-9 fix"})

	assert.Equal(t, model.SyncOutcomeIgnored, got.Outcome)
	tracker.AssertNotCalled(t, "FetchIssue", mock.Anything, mock.Anything)
	tracker.AssertNotCalled(t, "ApplyTransition", mock.Anything, mock.Anything, mock.Anything)
	require.Len(t, events.events, 1)
}

func TestWebhookStatusSync_MergedTransitionsIssue(t *testing.T) {
	tracker := new(mockTracker)
	tracker.On("FetchIssue", mock.Anything, model.IssueKey("PROJ-9")).Return(&model.Issue{Key: "PROJ-9"}, nil)
	tracker.On("ListTransitions", mock.Anything, model.IssueKey("PROJ-9")).
		Return([]model.Transition{{ID: "1", Name: "In Review"}, {ID: "2", Name: "Done"}}, nil)
	tracker.On("ApplyTransition", mock.Anything, model.IssueKey("PROJ-9"), "2").Return(nil).Once()

	events := &memoryEvents{}
	syncer := application.NewWebhookStatusSync(application.NewIssueService(tracker, discardLogger()), events, discardLogger())

	got := syncer.Handle(context.Background(), model.PullRequestEvent{
		Action: "closed", Number: 4, Title: "PROJ-9 fix", HeadRef: "feature", MergedAt: mergedAt(),
	})

	assert.Equal(t, model.SyncOutcomeTransitioned, got.Outcome)
	assert.Equal(t, model.IssueKey("PROJ-9"), got.IssueKey)
	assert.Equal(t, "Done", got.Transition)
	tracker.AssertExpectations(t)

	recent, err := syncer.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, 4, recent[0].PRNumber)
}

func TestWebhookStatusSync_KeyFromBranch(t *testing.T) {
	tracker := new(mockTracker)
	tracker.On("FetchIssue", mock.Anything, model.IssueKey("CORE-3")).Return(nil, driven.ErrNotFound)

	syncer := application.NewWebhookStatusSync(application.NewIssueService(tracker, discardLogger()), nil, discardLogger())

	got := syncer.Handle(context.Background(), model.PullRequestEvent{
		Action: "closed", Title: "Bump deps", HeadRef: "deps/CORE-3", MergedAt: mergedAt(),
	})

	assert.Equal(t, model.SyncOutcomeNotFound, got.Outcome)
	assert.Equal(t, model.IssueKey("CORE-3"), got.IssueKey)
}

func TestWebhookStatusSync_NoKey(t *testing.T) {
	tracker := new(mockTracker)
	syncer := application.NewWebhookStatusSync(application.NewIssueService(tracker, discardLogger()), &memoryEvents{}, discardLogger())

	got := syncer.Handle(context.Background(), model.PullRequestEvent{
		Action: "closed", Title: "Docs", HeadRef: "docs", MergedAt: mergedAt(),
	})

	assert.Equal(t, model.SyncOutcomeNoKey, got.Outcome)
	tracker.AssertNotCalled(t, "FetchIssue", mock.Anything, mock.Anything)
}

func TestWebhookStatusSync_Reject(t *testing.T) {
	events := &memoryEvents{}
	syncer := application.NewWebhookStatusSync(application.NewIssueService(nil, discardLogger()), events, discardLogger())

	got := syncer.Reject(context.Background(), "invalid signature")
	assert.Equal(t, model.SyncOutcomeRejected, got.Outcome)
	require.Len(t, events.events, 1)
	assert.Equal(t, "invalid signature", events.events[0].Detail)
}
