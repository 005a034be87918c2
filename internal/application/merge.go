package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/mergebridge/internal/domain/model"
	"github.com/ericfisherdev/mergebridge/internal/domain/port/driven"
)

// ErrMergePending is returned when a merge for the same pull request is
// already in flight in this session.
var ErrMergePending = errors.New("merge already in progress")

// Commit metadata sent with every merge.
const (
	MergeCommitTitle   = "Merge pull request"
	MergeCommitMessage = "Merged via mergebridge"
)

// Timings holds the delays used after a merge and by the poller. They are
// fixed when a session is constructed.
type Timings struct {
	IssueRefreshDelay time.Duration
	RepoRefreshDelay  time.Duration
	LastMergedTTL     time.Duration
	PollInterval      time.Duration
	RecentMergeWindow time.Duration
}

// DefaultTimings returns the production delays.
func DefaultTimings() Timings {
	return Timings{
		IssueRefreshDelay: 2 * time.Second,
		RepoRefreshDelay:  3 * time.Second,
		LastMergedTTL:     15 * time.Second,
		PollInterval:      10 * time.Second,
		RecentMergeWindow: 30 * time.Second,
	}
}

// MergeHooks are the session callbacks the orchestrator drives. Nil hooks are
// skipped.
type MergeHooks struct {
	RefreshIssue        func(key model.IssueKey)
	RefreshRepositories func()
	Changed             func()
}

// MergeOrchestrator merges pull requests on behalf of one session and
// schedules the follow-up refreshes.
type MergeOrchestrator struct {
	clients   ClientSource
	state     *SessionState
	scheduler *Scheduler
	timings   Timings
	hooks     MergeHooks
	logger    *slog.Logger
}

// NewMergeOrchestrator creates a MergeOrchestrator bound to a session's state.
func NewMergeOrchestrator(
	clients ClientSource,
	state *SessionState,
	scheduler *Scheduler,
	timings Timings,
	hooks MergeHooks,
	logger *slog.Logger,
) *MergeOrchestrator {
	return &MergeOrchestrator{
		clients:   clients,
		state:     state,
		scheduler: scheduler,
		timings:   timings,
		hooks:     hooks,
		logger:    logger,
	}
}

// Merge merges owner/repo#number. A concurrent call for the same PR returns
// ErrMergePending without contacting upstream. When upstream answers but
// declines the merge, the record is returned together with driven.ErrConflict.
func (o *MergeOrchestrator) Merge(ctx context.Context, owner, repo string, number int) (*model.MergeRecord, error) {
	ref := PRRef{RepoFullName: owner + "/" + repo, Number: number}
	if !o.state.BeginMerge(ref) {
		return nil, ErrMergePending
	}
	o.changed()

	record, err := o.merge(ctx, owner, repo, number)
	o.state.EndMerge(ref)
	if err != nil {
		o.logger.Warn("merge failed", "repo", ref.RepoFullName, "number", number, "error", err)
		o.state.RecordMergeFailure(ref, err.Error())
		o.changed()
		return record, err
	}

	o.logger.Info("pull request merged", "repo", ref.RepoFullName, "number", number, "sha", record.SHA)
	o.state.RecordMerged(ref)
	o.scheduleFollowUps(ref)
	o.changed()
	return record, nil
}

func (o *MergeOrchestrator) merge(ctx context.Context, owner, repo string, number int) (*model.MergeRecord, error) {
	client, err := o.clients.Client(ctx)
	if err != nil {
		return nil, err
	}

	record, err := client.MergePullRequest(ctx, owner, repo, number, MergeCommitTitle, MergeCommitMessage)
	if err != nil {
		return nil, err
	}
	if !record.Merged {
		return record, fmt.Errorf("%w: %s", driven.ErrConflict, record.Message)
	}
	return record, nil
}

func (o *MergeOrchestrator) scheduleFollowUps(ref PRRef) {
	if key := o.state.IssueKeyFor(ref); key != "" && o.hooks.RefreshIssue != nil {
		o.scheduler.After(o.timings.IssueRefreshDelay, func() { o.hooks.RefreshIssue(key) })
	}
	if o.hooks.RefreshRepositories != nil {
		o.scheduler.After(o.timings.RepoRefreshDelay, o.hooks.RefreshRepositories)
	}
	o.scheduler.After(o.timings.LastMergedTTL, func() {
		if o.state.ClearLastMerged(ref) {
			o.changed()
		}
	})
}

func (o *MergeOrchestrator) changed() {
	if o.hooks.Changed != nil {
		o.hooks.Changed()
	}
}
