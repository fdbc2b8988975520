package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"skillconnect/internal/models"
)

const outboxColumns = `id, task_type, aggregate_id, payload, status, retry_count, last_error, created_at,
       processed_at, next_retry_at`

func insertOutboxTask(ctx context.Context, q querier, task *models.OutboxTask, now time.Time) error {
	if task.Status == "" {
		task.Status = models.TaskPending
	}
	query := `INSERT INTO outbox (task_type, aggregate_id, payload, status, retry_count, last_error, created_at, next_retry_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := q.ExecContext(ctx, query,
		task.TaskType,
		task.AggregateID,
		task.Payload,
		task.Status,
		task.RetryCount,
		task.LastError,
		now,
		nullableTime(task.NextRetryAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	task.ID = id
	task.CreatedAt = now
	return nil
}

func (db *DB) CreateOutboxTask(ctx context.Context, task *models.OutboxTask) error {
	return insertOutboxTask(ctx, db, task, utc(time.Now()))
}

func scanOutboxTask(row rowScanner) (*models.OutboxTask, error) {
	var t models.OutboxTask
	var lastError sql.NullString
	var processedAt, nextRetryAt sql.NullTime
	err := row.Scan(
		&t.ID, &t.TaskType, &t.AggregateID, &t.Payload, &t.Status, &t.RetryCount, &lastError, &t.CreatedAt,
		&processedAt, &nextRetryAt,
	)
	if err != nil {
		return nil, err
	}
	if lastError.Valid {
		msg := lastError.String
		t.LastError = &msg
	}
	t.ProcessedAt = timePtr(processedAt)
	t.NextRetryAt = timePtr(nextRetryAt)
	return &t, nil
}

func (db *DB) queryOutbox(ctx context.Context, query string, args ...interface{}) ([]*models.OutboxTask, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var tasks []*models.OutboxTask
	for rows.Next() {
		t, err := scanOutboxTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (db *DB) GetOutboxTask(ctx context.Context, id int64) (*models.OutboxTask, error) {
	t, err := scanOutboxTask(db.QueryRowContext(ctx, `SELECT `+outboxColumns+` FROM outbox WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get outbox task: %w", err)
	}
	return t, nil
}

// GetPendingOutboxTasks returns tasks due at now in insertion order.
func (db *DB) GetPendingOutboxTasks(ctx context.Context, now time.Time, limit int) ([]*models.OutboxTask, error) {
	query := `SELECT ` + outboxColumns + ` FROM outbox
              WHERE status IN (?, ?) AND (next_retry_at IS NULL OR next_retry_at <= ?)
              ORDER BY id ASC LIMIT ?`
	return db.queryOutbox(ctx, query, models.TaskPending, models.TaskRetry, utc(now), limit)
}

// ClaimOutboxTask moves a due task to processing. It returns false when another
// worker got there first.
func (db *DB) ClaimOutboxTask(ctx context.Context, id int64) (bool, error) {
	res, execErr := db.ExecContext(ctx,
		`UPDATE outbox SET status = ?, claimed_at = ? WHERE id = ? AND status IN (?, ?)`,
		models.TaskProcessing, utc(time.Now()), id, models.TaskPending, models.TaskRetry)
	err := mustAffect(res, execErr, ErrConcurrentModification)
	if errors.Is(err, ErrConcurrentModification) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to claim outbox task: %w", err)
	}
	return true, nil
}

func (db *DB) UpdateOutboxTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	var args []interface{}
	now := utc(time.Now())

	var lastError interface{}
	if errMsg != "" {
		lastError = errMsg
	}

	switch status {
	case models.TaskRetry:
		query = `UPDATE outbox SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []interface{}{status, lastError, nullableTime(nextRetryAt), id}
	case models.TaskCompleted, models.TaskFailed:
		query = `UPDATE outbox SET status = ?, last_error = ?, next_retry_at = NULL, processed_at = ? WHERE id = ?`
		args = []interface{}{status, lastError, now, id}
	default:
		query = `UPDATE outbox SET status = ?, last_error = ?, next_retry_at = ? WHERE id = ?`
		args = []interface{}{status, lastError, nullableTime(nextRetryAt), id}
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update outbox task status: %w", err)
	}
	return nil
}

// ReleaseStaleOutboxTasks returns tasks claimed before cutoff to pending,
// which recovers work claimed by a process that died.
func (db *DB) ReleaseStaleOutboxTasks(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE outbox SET status = ?, claimed_at = NULL WHERE status = ? AND claimed_at < ?`,
		models.TaskPending, models.TaskProcessing, utc(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to release stale outbox tasks: %w", err)
	}
	return result.RowsAffected()
}

func (db *DB) GetFailedOutboxTasks(ctx context.Context) ([]*models.OutboxTask, error) {
	return db.queryOutbox(ctx, `SELECT `+outboxColumns+` FROM outbox WHERE status = ? ORDER BY id DESC`, models.TaskFailed)
}
