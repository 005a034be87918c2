package model

import "time"

// SyncEvent records the outcome of one webhook-driven issue status sync.
type SyncEvent struct {
	ID         int64
	IssueKey   IssueKey
	PRNumber   int
	Outcome    SyncOutcome
	Transition string // Name of the applied transition, if any.
	Detail     string
	CreatedAt  time.Time
}
