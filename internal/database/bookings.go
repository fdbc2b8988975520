package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"skillconnect/internal/domain"
	"skillconnect/internal/models"
)

const bookingColumns = `id, requester_id, provider_id, service_request_id, status, created_at, updated_at,
       completed_at, version`

func insertBooking(ctx context.Context, q querier, booking *models.Booking, now time.Time) error {
	query := `INSERT INTO bookings (requester_id, provider_id, service_request_id, status, created_at, updated_at, version)
              VALUES (?, ?, ?, ?, ?, ?, 1)`
	result, err := q.ExecContext(ctx, query,
		booking.RequesterID,
		booking.ProviderID,
		booking.ServiceRequestID,
		booking.Status,
		now,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	booking.ID = id
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1
	return nil
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var completedAt sql.NullTime
	err := row.Scan(
		&b.ID, &b.RequesterID, &b.ProviderID, &b.ServiceRequestID, &b.Status, &b.CreatedAt, &b.UpdatedAt,
		&completedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}
	b.CompletedAt = timePtr(completedAt)
	return &b, nil
}

func getBooking(ctx context.Context, q querier, query string, args ...interface{}) (*models.Booking, error) {
	b, err := scanBooking(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return getBooking(ctx, db, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
}

func (db *DB) GetBookingByServiceRequest(ctx context.Context, requestID int64) (*models.Booking, error) {
	return getBooking(ctx, db, `SELECT `+bookingColumns+` FROM bookings WHERE service_request_id = ?`, requestID)
}

// ListBookingsForUser returns bookings where the user is either party, newest first.
func (db *DB) ListBookingsForUser(ctx context.Context, userID int64) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE requester_id = ? OR provider_id = ?
              ORDER BY created_at DESC, id DESC`
	rows, err := db.QueryContext(ctx, query, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	bookings := []*models.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// CompleteBooking marks a Working booking and its request Complete.
func (db *DB) CompleteBooking(ctx context.Context, b *models.Booking, effects domain.EffectsFunc) (*models.Booking, error) {
	var updated *models.Booking
	now := utc(time.Now())

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		query := `UPDATE bookings SET status = ?, completed_at = ?, updated_at = ?, version = version + 1
                  WHERE id = ? AND version = ? AND status = ?`
		res, execErr := tx.ExecContext(ctx, query,
			models.BookingComplete, now, now, b.ID, b.Version, models.BookingWorking,
		)
		err := mustAffect(res, execErr, ErrConcurrentModification)
		if err != nil {
			if errors.Is(err, ErrConcurrentModification) {
				return err
			}
			return fmt.Errorf("failed to complete booking: %w", err)
		}

		// The linked request may be missing; nothing to update then.
		_, err = tx.ExecContext(ctx,
			`UPDATE service_requests SET status = ?, updated_at = ?, version = version + 1 WHERE id = ?`,
			models.RequestComplete, now, b.ServiceRequestID)
		if err != nil {
			return fmt.Errorf("failed to complete service request: %w", err)
		}

		if updated, err = getBooking(ctx, tx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, b.ID); err != nil {
			return err
		}

		request, err := getServiceRequest(ctx, tx, b.ServiceRequestID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		return applyEffects(ctx, tx, effects, updated, request)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
