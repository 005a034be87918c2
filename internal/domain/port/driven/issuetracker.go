package driven

import (
	"context"

	"github.com/ericfisherdev/mergebridge/internal/domain/model"
)

// IssueTracker defines the driven port for the issue tracker REST surface.
type IssueTracker interface {
	// FetchIssue returns ErrNotFound for any non-success status or a payload
	// without an issue key.
	FetchIssue(ctx context.Context, key model.IssueKey) (*model.Issue, error)
	ListTransitions(ctx context.Context, key model.IssueKey) ([]model.Transition, error)
	ApplyTransition(ctx context.Context, key model.IssueKey, transitionID string) error
}
