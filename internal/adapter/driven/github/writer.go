package github

import (
	"context"
	"fmt"

	gh "github.com/google/go-github/v82/github"

	"github.com/ericfisherdev/mergebridge/internal/domain/model"
)

// MergePullRequest merges a pull request with the given commit title and
// message. GitHub answers 405 when the PR is not mergeable and 409 when the
// head moved; both are reported as driven.ErrConflict.
func (c *Client) MergePullRequest(
	ctx context.Context,
	owner, repo string,
	number int,
	commitTitle, commitMessage string,
) (*model.MergeRecord, error) {
	result, resp, err := c.gh.PullRequests.Merge(ctx, owner, repo, number, commitMessage, &gh.PullRequestOptions{
		CommitTitle: commitTitle,
	})
	if err != nil {
		return nil, fmt.Errorf("merging %s/%s#%d: %w", owner, repo, number, classify(resp, err))
	}

	logRateLimit(resp, owner+"/"+repo+"/merge", 0, 1)

	return &model.MergeRecord{
		SHA:     result.GetSHA(),
		Merged:  result.GetMerged(),
		Message: result.GetMessage(),
	}, nil
}
