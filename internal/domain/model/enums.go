package model

// MergeableStatus is the upstream-computed tri-state merge readiness of a PR.
type MergeableStatus string

const (
	MergeableMergeable  MergeableStatus = "mergeable"
	MergeableConflicted MergeableStatus = "conflicted"
	MergeableUnknown    MergeableStatus = "unknown"
)

// mergeableStateDirty is the GitHub mergeable_state reported for PRs with conflicts.
const mergeableStateDirty = "dirty"

// SyncOutcome describes how far a webhook-driven status sync progressed.
type SyncOutcome string

const (
	SyncOutcomeTransitioned SyncOutcome = "transitioned"
	SyncOutcomeIgnored      SyncOutcome = "ignored"  // Event was not a merged close.
	SyncOutcomeRejected     SyncOutcome = "rejected" // Signature validation failed.
	SyncOutcomeNoKey        SyncOutcome = "no_key"
	SyncOutcomeNotFound     SyncOutcome = "not_found"
	SyncOutcomeNoTransition SyncOutcome = "no_transition"
	SyncOutcomeFailed       SyncOutcome = "failed"
)
