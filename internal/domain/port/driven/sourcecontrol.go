package driven

import (
	"context"

	"github.com/ericfisherdev/mergebridge/internal/domain/model"
)

// SourceControlClient defines the driven port for the source-control host
// REST surface. Implementations classify failures with the sentinels in
// errors.go.
type SourceControlClient interface {
	// ListRepositories returns every repository visible to the authenticated
	// identity, in upstream order.
	ListRepositories(ctx context.Context) ([]model.Repository, error)

	// ListPullRequests returns up to one page of the most recent open PRs.
	ListPullRequests(ctx context.Context, owner, repo string) ([]model.PullRequest, error)

	// GetPullRequest returns PR detail including authoritative mergeability.
	GetPullRequest(ctx context.Context, owner, repo string, number int) (*model.PullRequest, error)

	// IsMerged reports whether the merge-status endpoint answered 204.
	IsMerged(ctx context.Context, owner, repo string, number int) (bool, error)

	MergePullRequest(ctx context.Context, owner, repo string, number int, commitTitle, commitMessage string) (*model.MergeRecord, error)

	// AuthenticatedUser returns the login the credential belongs to.
	AuthenticatedUser(ctx context.Context) (string, error)
}

// SourceControlFactory builds a client bound to a token.
type SourceControlFactory func(token string) SourceControlClient
