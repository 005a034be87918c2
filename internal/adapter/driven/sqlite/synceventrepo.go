package sqlite

import (
	"context"
	"fmt"

	"github.com/ericfisherdev/mergebridge/internal/domain/model"
	"github.com/ericfisherdev/mergebridge/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SyncEventStore = (*SyncEventRepo)(nil)

// SyncEventRepo is the SQLite implementation of the SyncEventStore port.
type SyncEventRepo struct {
	db *DB
}

// NewSyncEventRepo creates a new SyncEventRepo backed by the given DB.
func NewSyncEventRepo(db *DB) *SyncEventRepo {
	return &SyncEventRepo{db: db}
}

// Record appends a sync outcome. CreatedAt defaults to the database clock
// when zero.
func (r *SyncEventRepo) Record(ctx context.Context, event model.SyncEvent) error {
	const query = `
		INSERT INTO sync_events (issue_key, pr_number, outcome, transition, detail, created_at)
		VALUES (?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))`

	var createdAt any
	if !event.CreatedAt.IsZero() {
		createdAt = event.CreatedAt.UTC().Format("2006-01-02 15:04:05")
	}

	_, err := r.db.Writer.ExecContext(ctx, query,
		string(event.IssueKey),
		event.PRNumber,
		string(event.Outcome),
		event.Transition,
		event.Detail,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("record sync event for %q: %w", event.IssueKey, err)
	}
	return nil
}

// ListRecent returns up to limit events, newest first.
func (r *SyncEventRepo) ListRecent(ctx context.Context, limit int) ([]model.SyncEvent, error) {
	const query = `
		SELECT id, issue_key, pr_number, outcome, transition, detail, created_at
		FROM sync_events
		ORDER BY created_at DESC, id DESC
		LIMIT ?`

	rows, err := r.db.Reader.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list sync events: %w", err)
	}
	defer rows.Close()

	events := []model.SyncEvent{}
	for rows.Next() {
		var (
			event     model.SyncEvent
			issueKey  string
			outcome   string
			createdAt string
		)
		if err := rows.Scan(&event.ID, &issueKey, &event.PRNumber, &outcome, &event.Transition, &event.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scan sync event: %w", err)
		}
		event.IssueKey = model.IssueKey(issueKey)
		event.Outcome = model.SyncOutcome(outcome)

		event.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at for sync event %d: %w", event.ID, err)
		}

		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync events: %w", err)
	}

	return events, nil
}
