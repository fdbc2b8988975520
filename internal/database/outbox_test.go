package database

import (
	"context"
	"testing"
	"time"

	"skillconnect/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	task := &models.OutboxTask{
		TaskType:    models.TaskRealtime,
		AggregateID: 100,
		Payload:     `{"event":"booking-updated"}`,
	}
	require.NoError(t, db.CreateOutboxTask(ctx, task))
	assert.Equal(t, models.TaskPending, task.Status)

	tasks, err := db.GetPendingOutboxTasks(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, int64(100), tasks[0].AggregateID)

	t.Run("ClaimOnce", func(t *testing.T) {
		ok, err := db.ClaimOutboxTask(ctx, task.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = db.ClaimOutboxTask(ctx, task.ID)
		require.NoError(t, err)
		assert.False(t, ok)

		pending, err := db.GetPendingOutboxTasks(ctx, time.Now(), 10)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("Retry", func(t *testing.T) {
		next := time.Now().Add(time.Hour)
		require.NoError(t, db.UpdateOutboxTaskStatus(ctx, task.ID, models.TaskRetry, "temporary error", &next))

		got, err := db.GetOutboxTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TaskRetry, got.Status)
		assert.Equal(t, 1, got.RetryCount)
		require.NotNil(t, got.LastError)
		assert.Equal(t, "temporary error", *got.LastError)

		pending, err := db.GetPendingOutboxTasks(ctx, time.Now(), 10)
		require.NoError(t, err)
		assert.Empty(t, pending, "not due yet")

		pending, err = db.GetPendingOutboxTasks(ctx, time.Now().Add(2*time.Hour), 10)
		require.NoError(t, err)
		assert.Len(t, pending, 1)
	})

	t.Run("Complete", func(t *testing.T) {
		require.NoError(t, db.UpdateOutboxTaskStatus(ctx, task.ID, models.TaskCompleted, "", nil))
		got, err := db.GetOutboxTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TaskCompleted, got.Status)
		assert.NotNil(t, got.ProcessedAt)
		assert.Nil(t, got.NextRetryAt)
		assert.Nil(t, got.LastError)
	})

	t.Run("Failed", func(t *testing.T) {
		failed := &models.OutboxTask{TaskType: models.TaskLedgerUpsert, AggregateID: 7, Payload: `{}`}
		require.NoError(t, db.CreateOutboxTask(ctx, failed))
		require.NoError(t, db.UpdateOutboxTaskStatus(ctx, failed.ID, models.TaskFailed, "sheet missing", nil))

		list, err := db.GetFailedOutboxTasks(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "sheet missing", *list[0].LastError)
	})

	t.Run("ReleaseStale", func(t *testing.T) {
		stuck := &models.OutboxTask{TaskType: models.TaskRealtime, Payload: `{}`}
		require.NoError(t, db.CreateOutboxTask(ctx, stuck))
		ok, err := db.ClaimOutboxTask(ctx, stuck.ID)
		require.NoError(t, err)
		require.True(t, ok)

		n, err := db.ReleaseStaleOutboxTasks(ctx, time.Now().Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		got, err := db.GetOutboxTask(ctx, stuck.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TaskPending, got.Status)
	})

	_, err = db.GetOutboxTask(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPendingOutboxOrder(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, db.CreateOutboxTask(ctx, &models.OutboxTask{TaskType: models.TaskRealtime, AggregateID: i, Payload: `{}`}))
	}

	tasks, err := db.GetPendingOutboxTasks(ctx, time.Now(), 2)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, int64(1), tasks[0].AggregateID)
	assert.Equal(t, int64(2), tasks[1].AggregateID)
}
