package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"skillconnect/internal/models"
)

func insertNotification(ctx context.Context, q querier, n *models.Notification, now time.Time) error {
	query := `INSERT INTO notifications (user_id, title, message, type, service_request_id, booking_id, is_read, created_at)
              VALUES (?, ?, ?, ?, ?, ?, 0, ?)`
	result, err := q.ExecContext(ctx, query,
		n.UserID, n.Title, n.Message, n.Type, nullableID(n.ServiceRequestID), nullableID(n.BookingID), now)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	n.ID = id
	n.Read = false
	n.CreatedAt = now
	return nil
}

func (db *DB) CreateNotification(ctx context.Context, n *models.Notification) error {
	return insertNotification(ctx, db, n, utc(time.Now()))
}

// ListNotifications returns the newest notifications of a user.
func (db *DB) ListNotifications(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, user_id, title, message, type, service_request_id, booking_id, is_read, created_at
              FROM notifications WHERE user_id = ?`
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	notifications := []*models.Notification{}
	for rows.Next() {
		var n models.Notification
		var requestID, bookingID sql.NullInt64
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &requestID, &bookingID, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.ServiceRequestID = idPtr(requestID)
		n.BookingID = idPtr(bookingID)
		notifications = append(notifications, &n)
	}
	return notifications, rows.Err()
}

// MarkNotificationRead flags one notification owned by userID.
func (db *DB) MarkNotificationRead(ctx context.Context, id, userID int64) error {
	res, execErr := db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE id = ? AND user_id = ?`, id, userID)
	err := mustAffect(res, execErr, ErrNotFound)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return err
}

// MarkAllNotificationsRead returns the number of notifications changed.
func (db *DB) MarkAllNotificationsRead(ctx context.Context, userID int64) (int64, error) {
	result, err := db.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return result.RowsAffected()
}
