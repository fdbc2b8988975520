package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"skillconnect/internal/domain"
	"skillconnect/internal/models"
)

const requestColumns = `r.id, r.requester_id, r.type_of_work, r.budget, r.notes, r.status, r.target_provider_id,
       r.service_provider_id, r.eta, r.expires_at, r.created_at, r.updated_at, r.version,
       u.id, u.username, u.email, u.phone, u.profile_pic, u.average_rating, u.total_reviews, u.verified`

const requestFrom = ` FROM service_requests r JOIN users u ON u.id = r.requester_id`

func scanServiceRequest(row rowScanner) (*models.ServiceRequest, error) {
	var r models.ServiceRequest
	var requester models.PublicUser
	var target, provider sql.NullInt64
	var eta sql.NullTime
	err := row.Scan(
		&r.ID, &r.RequesterID, &r.TypeOfWork, &r.Budget, &r.Notes, &r.Status, &target,
		&provider, &eta, &r.ExpiresAt, &r.CreatedAt, &r.UpdatedAt, &r.Version,
		&requester.ID, &requester.Username, &requester.Email, &requester.Phone, &requester.ProfilePic,
		&requester.AverageRating, &requester.TotalReviews, &requester.Verified,
	)
	if err != nil {
		return nil, err
	}
	r.TargetProviderID = idPtr(target)
	r.ServiceProviderID = idPtr(provider)
	r.ETA = timePtr(eta)
	r.Requester = &requester
	return &r, nil
}

func queryServiceRequests(ctx context.Context, q querier, query string, args ...interface{}) ([]*models.ServiceRequest, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query service requests: %w", err)
	}
	defer rows.Close()

	requests := []*models.ServiceRequest{}
	for rows.Next() {
		r, err := scanServiceRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan service request: %w", err)
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

func getServiceRequest(ctx context.Context, q querier, id int64) (*models.ServiceRequest, error) {
	r, err := scanServiceRequest(q.QueryRowContext(ctx, `SELECT `+requestColumns+requestFrom+` WHERE r.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get service request: %w", err)
	}
	return r, nil
}

func (db *DB) GetServiceRequest(ctx context.Context, id int64) (*models.ServiceRequest, error) {
	return getServiceRequest(ctx, db, id)
}

// CreateServiceRequest inserts the request and its side effects in one transaction.
func (db *DB) CreateServiceRequest(ctx context.Context, r *models.ServiceRequest, effects domain.EffectsFunc) error {
	now := utc(time.Now())
	return db.withTx(ctx, func(tx *sql.Tx) error {
		query := `INSERT INTO service_requests (requester_id, type_of_work, budget, notes, status,
                      target_provider_id, expires_at, created_at, updated_at, version)
                  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`
		result, err := tx.ExecContext(ctx, query,
			r.RequesterID,
			r.TypeOfWork,
			r.Budget,
			r.Notes,
			models.RequestWaiting,
			nullableID(r.TargetProviderID),
			utc(r.ExpiresAt),
			now,
			now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert service request: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}

		created, err := getServiceRequest(ctx, tx, id)
		if err != nil {
			return err
		}
		*r = *created

		return applyEffects(ctx, tx, effects, nil, created)
	})
}

// ListAvailableServiceRequests returns open requests a provider may claim, newest first.
func (db *DB) ListAvailableServiceRequests(ctx context.Context, providerID int64, now time.Time) ([]*models.ServiceRequest, error) {
	query := `SELECT ` + requestColumns + requestFrom + `
              WHERE r.status = ? AND r.expires_at > ?
                AND (r.target_provider_id = ? OR r.target_provider_id IS NULL)
              ORDER BY r.created_at DESC, r.id DESC`
	return queryServiceRequests(ctx, db, query, models.RequestWaiting, utc(now), providerID)
}

// ListServiceRequestsForUser returns requests the user created or works on, newest first.
func (db *DB) ListServiceRequestsForUser(ctx context.Context, userID int64) ([]*models.ServiceRequest, error) {
	query := `SELECT ` + requestColumns + requestFrom + `
              WHERE r.requester_id = ? OR r.target_provider_id = ? OR r.service_provider_id = ?
              ORDER BY r.created_at DESC, r.id DESC`
	return queryServiceRequests(ctx, db, query, userID, userID, userID)
}

// ListServiceRequests backs the admin listing.
func (db *DB) ListServiceRequests(ctx context.Context, filter models.ServiceRequestFilter) (*models.ServiceRequestPage, error) {
	filter.Normalize()

	var conds []string
	var args []interface{}
	if filter.Skill != "" {
		conds = append(conds, "lower(r.type_of_work) LIKE ?")
		args = append(args, "%"+strings.ToLower(filter.Skill)+"%")
	}
	if filter.Status != "" {
		conds = append(conds, "r.status = ?")
		args = append(args, filter.Status)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM service_requests r`+where, args...).Scan(&count); err != nil {
		return nil, fmt.Errorf("failed to count service requests: %w", err)
	}

	order := map[string]string{
		"newest":      "r.created_at DESC, r.id DESC",
		"oldest":      "r.created_at ASC, r.id ASC",
		"budget_asc":  "r.budget ASC, r.id ASC",
		"budget_desc": "r.budget DESC, r.id DESC",
	}[filter.Sort]

	query := `SELECT ` + requestColumns + requestFrom + where + ` ORDER BY ` + order + ` LIMIT ? OFFSET ?`
	pageArgs := append(append([]interface{}{}, args...), filter.Limit, (filter.Page-1)*filter.Limit)
	requests, err := queryServiceRequests(ctx, db, query, pageArgs...)
	if err != nil {
		return nil, err
	}

	return &models.ServiceRequestPage{
		Count:      count,
		TotalPages: (count + filter.Limit - 1) / filter.Limit,
		Requests:   requests,
	}, nil
}

// AcceptOffer turns a targeted Waiting request into Working and creates its booking.
// The update is conditioned on the version and target the caller observed.
func (db *DB) AcceptOffer(
	ctx context.Context,
	r *models.ServiceRequest,
	providerID int64,
	eta time.Time,
	effects domain.EffectsFunc,
) (*models.Booking, *models.ServiceRequest, error) {
	var booking *models.Booking
	var updated *models.ServiceRequest
	now := utc(time.Now())

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		query := `UPDATE service_requests
                  SET status = ?, service_provider_id = ?, eta = ?, updated_at = ?, version = version + 1
                  WHERE id = ? AND version = ? AND status = ? AND target_provider_id = ?`
		res, execErr := tx.ExecContext(ctx, query,
			models.RequestWorking, providerID, utc(eta), now,
			r.ID, r.Version, models.RequestWaiting, providerID,
		)
		err := mustAffect(res, execErr, ErrConcurrentModification)
		if err != nil {
			if errors.Is(err, ErrConcurrentModification) {
				return err
			}
			return fmt.Errorf("failed to update service request: %w", err)
		}

		booking = &models.Booking{
			RequesterID:      r.RequesterID,
			ProviderID:       providerID,
			ServiceRequestID: r.ID,
			Status:           models.BookingWorking,
		}
		if err := insertBooking(ctx, tx, booking, now); err != nil {
			return err
		}

		if updated, err = getServiceRequest(ctx, tx, r.ID); err != nil {
			return err
		}
		return applyEffects(ctx, tx, effects, booking, updated)
	})
	if err != nil {
		return nil, nil, err
	}
	return booking, updated, nil
}

// RejectOffer clears the target of a Waiting request.
func (db *DB) RejectOffer(ctx context.Context, r *models.ServiceRequest, providerID int64, effects domain.EffectsFunc) (*models.ServiceRequest, error) {
	query := `UPDATE service_requests
              SET status = ?, target_provider_id = NULL, service_provider_id = NULL, updated_at = ?, version = version + 1
              WHERE id = ? AND version = ? AND status = ? AND target_provider_id = ?`
	return db.updateServiceRequest(ctx, r.ID, effects, query,
		models.RequestWaiting, utc(time.Now()), r.ID, r.Version, models.RequestWaiting, providerID)
}

// CancelServiceRequest moves a Waiting request to Cancelled.
func (db *DB) CancelServiceRequest(ctx context.Context, r *models.ServiceRequest, effects domain.EffectsFunc) (*models.ServiceRequest, error) {
	query := `UPDATE service_requests SET status = ?, updated_at = ?, version = version + 1
              WHERE id = ? AND version = ? AND status = ?`
	return db.updateServiceRequest(ctx, r.ID, effects, query,
		models.RequestCancelled, utc(time.Now()), r.ID, r.Version, models.RequestWaiting)
}

// RetargetServiceRequest points a Waiting request at another provider, or opens it when target is nil.
func (db *DB) RetargetServiceRequest(
	ctx context.Context,
	r *models.ServiceRequest,
	target *int64,
	effects domain.EffectsFunc,
) (*models.ServiceRequest, error) {
	query := `UPDATE service_requests SET target_provider_id = ?, updated_at = ?, version = version + 1
              WHERE id = ? AND version = ? AND status = ?`
	return db.updateServiceRequest(ctx, r.ID, effects, query,
		nullableID(target), utc(time.Now()), r.ID, r.Version, models.RequestWaiting)
}

func (db *DB) updateServiceRequest(
	ctx context.Context,
	id int64,
	effects domain.EffectsFunc,
	query string,
	args ...interface{},
) (*models.ServiceRequest, error) {
	var updated *models.ServiceRequest
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, execErr := tx.ExecContext(ctx, query, args...)
		err := mustAffect(res, execErr, ErrConcurrentModification)
		if err != nil {
			if errors.Is(err, ErrConcurrentModification) {
				return err
			}
			return fmt.Errorf("failed to update service request: %w", err)
		}
		if updated, err = getServiceRequest(ctx, tx, id); err != nil {
			return err
		}
		return applyEffects(ctx, tx, effects, nil, updated)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
