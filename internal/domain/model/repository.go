package model

// Repository is a source-control repository assembled by one aggregation
// cycle. It is never persisted.
type Repository struct {
	ID           int64
	FullName     string
	Owner        string
	Name         string
	Language     string
	Description  string
	URL          string
	PullRequests []PullRequest

	// PullRequestsUnavailable is set when listing this repository's PRs failed
	// and PullRequests is an empty fallback rather than an authoritative result.
	PullRequestsUnavailable bool
}

// HasLinkedPullRequest reports whether at least one PR carries an issue key.
func (r Repository) HasLinkedPullRequest() bool {
	for _, pr := range r.PullRequests {
		if pr.IssueKey != "" {
			return true
		}
	}
	return false
}
