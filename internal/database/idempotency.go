package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"skillconnect/internal/models"
)

// BeginIdempotent reserves key for userID. When the key already exists the
// stored record is returned with created=false.
func (db *DB) BeginIdempotent(ctx context.Context, userID int64, key, method, path string) (*models.IdempotencyRecord, bool, error) {
	now := utc(time.Now())
	_, err := db.ExecContext(ctx,
		`INSERT INTO idempotency_keys (user_id, key, method, path, created_at) VALUES (?, ?, ?, ?, ?)`,
		userID, key, method, path, now)
	if err == nil {
		return &models.IdempotencyRecord{Key: key, UserID: userID, Method: method, Path: path, CreatedAt: now}, true, nil
	}
	if !isUniqueViolation(err) {
		return nil, false, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}

	rec, err := db.GetIdempotencyRecord(ctx, userID, key)
	if err != nil {
		return nil, false, err
	}
	return rec, false, nil
}

func (db *DB) GetIdempotencyRecord(ctx context.Context, userID int64, key string) (*models.IdempotencyRecord, error) {
	var rec models.IdempotencyRecord
	var body []byte
	err := db.QueryRowContext(ctx,
		`SELECT user_id, key, method, path, status_code, body, completed, created_at
         FROM idempotency_keys WHERE user_id = ? AND key = ?`, userID, key).
		Scan(&rec.UserID, &rec.Key, &rec.Method, &rec.Path, &rec.StatusCode, &body, &rec.Completed, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get idempotency record: %w", err)
	}
	rec.Body = body
	return &rec, nil
}

// CompleteIdempotent stores the response produced for a reserved key.
func (db *DB) CompleteIdempotent(ctx context.Context, userID int64, key string, status int, body []byte) error {
	res, execErr := db.ExecContext(ctx,
		`UPDATE idempotency_keys SET status_code = ?, body = ?, completed = 1 WHERE user_id = ? AND key = ?`,
		status, body, userID, key)
	err := mustAffect(res, execErr, ErrNotFound)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to complete idempotency record: %w", err)
	}
	return err
}

// ReleaseIdempotent forgets a reservation so the client may retry.
func (db *DB) ReleaseIdempotent(ctx context.Context, userID int64, key string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE user_id = ? AND key = ?`, userID, key); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

// PurgeIdempotencyKeys drops records created before cutoff.
func (db *DB) PurgeIdempotencyKeys(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE created_at < ?`, utc(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to purge idempotency keys: %w", err)
	}
	return result.RowsAffected()
}
