package model

// PullRequest represents an open pull request within an aggregation snapshot.
type PullRequest struct {
	ID              int64
	Number          int
	RepoFullName    string
	Title           string
	URL             string
	Branch          string
	BaseBranch      string
	MergeableStatus MergeableStatus // Default MergeableUnknown.
	MergeableState  string          // Raw upstream value: "clean", "dirty", "blocked", ...

	// Merged is authoritative only when set from the merge-status endpoint.
	Merged bool

	// IssueKey is derived from Title and Branch at fetch time; empty when
	// neither matches.
	IssueKey IssueKey
}

// NewPullRequest builds a PullRequest and derives its issue key. Adapters
// must construct PRs through here so the key stays a pure function of the
// fetched title and branch.
func NewPullRequest(id int64, number int, repoFullName, title, url, branch, baseBranch string) PullRequest {
	key, _ := IssueKeyFor(title, branch)
	return PullRequest{
		ID:              id,
		Number:          number,
		RepoFullName:    repoFullName,
		Title:           title,
		URL:             url,
		Branch:          branch,
		BaseBranch:      baseBranch,
		MergeableStatus: MergeableUnknown,
		IssueKey:        key,
	}
}

// IsUndetermined reports whether upstream has not yet computed mergeability.
func (pr PullRequest) IsUndetermined() bool {
	return pr.MergeableStatus == "" || pr.MergeableStatus == MergeableUnknown
}

// IsMergeable reports whether the PR can be merged from the dashboard.
func (pr PullRequest) IsMergeable() bool {
	return pr.MergeableStatus == MergeableMergeable && pr.MergeableState != mergeableStateDirty
}
