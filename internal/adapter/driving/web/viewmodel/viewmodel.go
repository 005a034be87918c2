// Package viewmodel defines presentation-ready structs for the dashboard
// components. View models decouple rendering from application types.
package viewmodel

// DashboardViewModel holds everything the dashboard page renders.
type DashboardViewModel struct {
	SessionID           string
	CSRFToken           string
	Notice              string
	Error               string
	Polling             bool
	IssueTrackerEnabled bool
	Repositories        []RepoViewModel
}

// RepoViewModel is one repository section.
type RepoViewModel struct {
	FullName        string
	URL             string
	Language        string
	DescriptionHTML string // Sanitized HTML rendered from markdown.
	Unavailable     bool
	PullRequests    []PRViewModel
}

// PRViewModel is one pull request row.
type PRViewModel struct {
	Owner      string
	Repo       string
	Number     int
	Title      string
	URL        string
	Branch     string
	BaseBranch string

	IssueKey     string
	IssueState   string // loading, found, not_found; empty when no tracker.
	IssueSummary string
	IssueType    string
	IssueStatus  string

	StatusLabel string // Mergeable, Conflicted, Checking, Merged, Merging...
	StatusClass string
	CanMerge    bool
	Settling    bool
	MergeError  string
}
