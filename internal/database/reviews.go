package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"skillconnect/internal/domain"
	"skillconnect/internal/models"
)

// CreateReview inserts the review and refreshes the reviewee's rating aggregate atomically.
func (db *DB) CreateReview(ctx context.Context, review *models.Review, extra domain.Effects) error {
	images, err := encodeStrings(review.Images)
	if err != nil {
		return err
	}
	now := utc(time.Now())

	return db.withTx(ctx, func(tx *sql.Tx) error {
		query := `INSERT INTO reviews (booking_id, reviewer_id, reviewee_id, rating, comment, images, created_at)
                  VALUES (?, ?, ?, ?, ?, ?, ?)`
		result, err := tx.ExecContext(ctx, query,
			review.BookingID, review.ReviewerID, review.RevieweeID, review.Rating, review.Comment, images, now)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("failed to insert review: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		review.ID = id
		review.CreatedAt = now

		if err := refreshRating(ctx, tx, review.RevieweeID, now); err != nil {
			return err
		}
		return writeEffects(ctx, tx, extra)
	})
}

func refreshRating(ctx context.Context, q querier, userID int64, now time.Time) error {
	query := `UPDATE users SET
                average_rating = COALESCE((SELECT AVG(rating) FROM reviews WHERE reviewee_id = ?), 0),
                total_reviews = (SELECT COUNT(*) FROM reviews WHERE reviewee_id = ?),
                updated_at = ?
              WHERE id = ?`
	res, execErr := q.ExecContext(ctx, query, userID, userID, now, userID)
	err := mustAffect(res, execErr, ErrNotFound)
	if err != nil {
		return fmt.Errorf("failed to refresh rating of user %d: %w", userID, err)
	}
	return nil
}

func (db *DB) ListReviewsForUser(ctx context.Context, revieweeID int64) ([]*models.Review, error) {
	query := `SELECT id, booking_id, reviewer_id, reviewee_id, rating, comment, images, created_at
              FROM reviews WHERE reviewee_id = ? ORDER BY created_at DESC, id DESC`
	rows, err := db.QueryContext(ctx, query, revieweeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	reviews := []*models.Review{}
	for rows.Next() {
		var r models.Review
		var images string
		if err := rows.Scan(&r.ID, &r.BookingID, &r.ReviewerID, &r.RevieweeID, &r.Rating, &r.Comment, &images, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		if r.Images, err = decodeStrings(images); err != nil {
			return nil, fmt.Errorf("failed to decode review images: %w", err)
		}
		reviews = append(reviews, &r)
	}
	return reviews, rows.Err()
}
