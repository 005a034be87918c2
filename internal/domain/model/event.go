package model

import "time"

// PullRequestEvent is the subset of a pull_request webhook payload used for
// status sync.
type PullRequestEvent struct {
	Action   string
	Number   int
	Title    string
	HeadRef  string
	MergedAt *time.Time
}

// IsMergedClose reports whether the event closes the PR by merging it.
// A PR closed without merging has a nil MergedAt.
func (e PullRequestEvent) IsMergedClose() bool {
	return e.Action == "closed" && e.MergedAt != nil
}
