package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/mergebridge/internal/domain/model"
)

func TestSyncEventRepo_RecordAndListRecent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSyncEventRepo(db)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Record(ctx, model.SyncEvent{
		IssueKey: "PROJ-1", PRNumber: 10, Outcome: model.SyncOutcomeTransitioned, Transition: "Done", CreatedAt: base,
	}))
	require.NoError(t, repo.Record(ctx, model.SyncEvent{
		IssueKey: "PROJ-2", PRNumber: 11, Outcome: model.SyncOutcomeNotFound, Detail: "issue missing", CreatedAt: base.Add(time.Minute),
	}))
	require.NoError(t, repo.Record(ctx, model.SyncEvent{
		PRNumber: 12, Outcome: model.SyncOutcomeNoKey, CreatedAt: base.Add(2 * time.Minute),
	}))

	events, err := repo.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, model.SyncOutcomeNoKey, events[0].Outcome)
	assert.Empty(t, events[0].IssueKey)
	assert.Equal(t, model.IssueKey("PROJ-2"), events[1].IssueKey)
	assert.Equal(t, "issue missing", events[1].Detail)
	assert.True(t, base.Add(time.Minute).Equal(events[1].CreatedAt))
}

func TestSyncEventRepo_DefaultsCreatedAt(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSyncEventRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, model.SyncEvent{IssueKey: "OPS-4", Outcome: model.SyncOutcomeFailed}))

	events, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].CreatedAt.IsZero())
}

func TestSyncEventRepo_ListEmpty(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSyncEventRepo(db)

	events, err := repo.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}
