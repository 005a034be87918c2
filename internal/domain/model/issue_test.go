package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ericfisherdev/mergebridge/internal/domain/model"
)

func TestResolveDoneTransition(t *testing.T) {
	tests := []struct {
		name        string
		transitions []model.Transition
		wantID      string
		wantOK      bool
	}{
		{
			name:        "done after in review",
			transitions: []model.Transition{{ID: "1", Name: "In Review"}, {ID: "2", Name: "Done"}},
			wantID:      "2",
			wantOK:      true,
		},
		{
			name:        "close matches case-insensitively",
			transitions: []model.Transition{{ID: "4", Name: "Start"}, {ID: "5", Name: "CLOSE ISSUE"}},
			wantID:      "5",
			wantOK:      true,
		},
		{
			name:        "mark as done",
			transitions: []model.Transition{{ID: "9", Name: "Mark as done"}},
			wantID:      "9",
			wantOK:      true,
		},
		{
			name:        "first match wins",
			transitions: []model.Transition{{ID: "3", Name: "Closed"}, {ID: "2", Name: "Done"}},
			wantID:      "3",
			wantOK:      true,
		},
		{
			name:        "no terminal transition",
			transitions: []model.Transition{{ID: "1", Name: "In Progress"}, {ID: "6", Name: "Reopen"}},
			wantOK:      false,
		},
		{
			name:   "empty",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := model.ResolveDoneTransition(tt.transitions)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}
}

func TestPullRequestEvent_IsMergedClose(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, model.PullRequestEvent{Action: "closed", MergedAt: &now}.IsMergedClose())
	assert.False(t, model.PullRequestEvent{Action: "closed"}.IsMergedClose())
	assert.False(t, model.PullRequestEvent{Action: "opened", MergedAt: &now}.IsMergedClose())
}

func TestPullRequest_IsMergeable(t *testing.T) {
	clean := model.PullRequest{MergeableStatus: model.MergeableMergeable, MergeableState: "clean"}
	dirty := model.PullRequest{MergeableStatus: model.MergeableMergeable, MergeableState: "dirty"}
	conflicted := model.PullRequest{MergeableStatus: model.MergeableConflicted}

	assert.True(t, clean.IsMergeable())
	assert.False(t, dirty.IsMergeable())
	assert.False(t, conflicted.IsMergeable())
}

func TestRepository_HasLinkedPullRequest(t *testing.T) {
	linked := model.Repository{PullRequests: []model.PullRequest{{Title: "chore"}, {IssueKey: "AB-1"}}}
	unlinked := model.Repository{PullRequests: []model.PullRequest{{Title: "chore"}}}

	assert.True(t, linked.HasLinkedPullRequest())
	assert.False(t, unlinked.HasLinkedPullRequest())
	assert.False(t, model.Repository{}.HasLinkedPullRequest())
}
