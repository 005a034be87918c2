package application

import (
	"context"
	"log/slog"

	"github.com/ericfisherdev/mergebridge/internal/domain/model"
	"github.com/ericfisherdev/mergebridge/internal/domain/port/driven"
)

// WebhookStatusSync moves an issue to its terminal status when the pull
// request that references it is merged.
type WebhookStatusSync struct {
	issues *IssueService
	events driven.SyncEventStore
	logger *slog.Logger
}

// NewWebhookStatusSync creates a WebhookStatusSync. events may be nil.
func NewWebhookStatusSync(issues *IssueService, events driven.SyncEventStore, logger *slog.Logger) *WebhookStatusSync {
	return &WebhookStatusSync{issues: issues, events: events, logger: logger}
}

// Handle processes one pull_request event and returns the recorded outcome.
func (w *WebhookStatusSync) Handle(ctx context.Context, ev model.PullRequestEvent) model.SyncEvent {
	event := model.SyncEvent{PRNumber: ev.Number}

	if !ev.IsMergedClose() {
		event.Outcome = model.SyncOutcomeIgnored
		event.Detail = "action " + ev.Action
		return w.record(ctx, event)
	}

	key, ok := model.IssueKeyFor(ev.Title, ev.HeadRef)
	if !ok {
		event.Outcome = model.SyncOutcomeNoKey
		event.Detail = "no issue key in title or branch"
		return w.record(ctx, event)
	}
	event.IssueKey = key

	result, err := w.issues.TransitionToDone(ctx, key)
	event.Outcome = result.Outcome
	event.Transition = result.Transition.Name
	if err != nil {
		event.Detail = err.Error()
	}
	return w.record(ctx, event)
}

// Reject records an event that was refused before parsing, such as one with
// an invalid signature.
func (w *WebhookStatusSync) Reject(ctx context.Context, reason string) model.SyncEvent {
	return w.record(ctx, model.SyncEvent{Outcome: model.SyncOutcomeRejected, Detail: reason})
}

// ListRecent returns the most recent recorded outcomes.
func (w *WebhookStatusSync) ListRecent(ctx context.Context, limit int) ([]model.SyncEvent, error) {
	if w.events == nil {
		return []model.SyncEvent{}, nil
	}
	return w.events.ListRecent(ctx, limit)
}

func (w *WebhookStatusSync) record(ctx context.Context, event model.SyncEvent) model.SyncEvent {
	level := slog.LevelInfo
	if event.Outcome == model.SyncOutcomeFailed || event.Outcome == model.SyncOutcomeRejected {
		level = slog.LevelWarn
	}
	w.logger.Log(ctx, level, "webhook sync",
		"outcome", event.Outcome,
		"issue", event.IssueKey,
		"pr_number", event.PRNumber,
		"transition", event.Transition,
		"detail", event.Detail,
	)

	if w.events != nil {
		if err := w.events.Record(ctx, event); err != nil {
			w.logger.Error("recording sync event failed", "error", err)
		}
	}
	return event
}
