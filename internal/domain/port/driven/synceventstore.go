package driven

import (
	"context"

	"github.com/ericfisherdev/mergebridge/internal/domain/model"
)

// SyncEventStore persists webhook sync outcomes for auditing.
type SyncEventStore interface {
	Record(ctx context.Context, event model.SyncEvent) error
	// ListRecent returns up to limit events, newest first.
	ListRecent(ctx context.Context, limit int) ([]model.SyncEvent, error)
}
