package database

import (
	"context"
	"fmt"
	"time"

	"skillconnect/internal/models"
)

func (db *DB) count(ctx context.Context, query string, args ...interface{}) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count: %w", err)
	}
	return n, nil
}

func (db *DB) Totals(ctx context.Context) (*models.Totals, error) {
	var t models.Totals
	err := db.QueryRowContext(ctx, `SELECT
            (SELECT COUNT(*) FROM users),
            (SELECT COUNT(*) FROM users WHERE role = ?),
            (SELECT COUNT(*) FROM users WHERE role = ?),
            (SELECT COUNT(*) FROM service_requests),
            (SELECT COUNT(*) FROM service_requests WHERE status = ?),
            (SELECT COUNT(*) FROM bookings),
            (SELECT COUNT(*) FROM bookings WHERE status = ?),
            (SELECT COUNT(*) FROM reviews)`,
		models.RoleServiceProvider, models.RoleCommunityMember, models.RequestWaiting, models.BookingComplete,
	).Scan(&t.Users, &t.ServiceProviders, &t.CommunityMembers, &t.ServiceRequests, &t.OpenRequests,
		&t.Bookings, &t.CompletedBookings, &t.Reviews)
	if err != nil {
		return nil, fmt.Errorf("failed to compute totals: %w", err)
	}
	return &t, nil
}

func (db *DB) Demographics(ctx context.Context) (*models.Demographics, error) {
	d := &models.Demographics{ByRole: map[string]int{}}

	rows, err := db.QueryContext(ctx, `SELECT role, COUNT(*) FROM users GROUP BY role`)
	if err != nil {
		return nil, fmt.Errorf("failed to group users by role: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var role string
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return nil, fmt.Errorf("failed to scan role count: %w", err)
		}
		d.ByRole[role] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if d.Verified, err = db.count(ctx, `SELECT COUNT(*) FROM users WHERE verified = 1`); err != nil {
		return nil, err
	}
	if d.Unverified, err = db.count(ctx, `SELECT COUNT(*) FROM users WHERE verified = 0`); err != nil {
		return nil, err
	}
	if d.Banned, err = db.count(ctx, `SELECT COUNT(*) FROM users WHERE banned = 1`); err != nil {
		return nil, err
	}
	return d, nil
}

// ProviderSkills returns the skill sets of all non-banned providers.
func (db *DB) ProviderSkills(ctx context.Context) ([][]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT skills FROM users WHERE role = ? AND banned = 0`, models.RoleServiceProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to load provider skills: %w", err)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan skills: %w", err)
		}
		skills, err := decodeStrings(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode skills: %w", err)
		}
		out = append(out, skills)
	}
	return out, rows.Err()
}

// MostBookedServices ranks typeOfWork values by number of bookings.
func (db *DB) MostBookedServices(ctx context.Context, limit int) ([]models.ServiceCount, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.QueryContext(ctx, `SELECT r.type_of_work, COUNT(b.id) AS n
            FROM bookings b JOIN service_requests r ON r.id = b.service_request_id
            GROUP BY r.type_of_work ORDER BY n DESC, r.type_of_work ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to rank services: %w", err)
	}
	defer rows.Close()

	out := []models.ServiceCount{}
	for rows.Next() {
		var sc models.ServiceCount
		if err := rows.Scan(&sc.TypeOfWork, &sc.Bookings); err != nil {
			return nil, fmt.Errorf("failed to scan service count: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// TotalsOverTime counts new users, requests and bookings per month for the
// months ending with now, oldest first. Timestamps are stored in UTC so the
// first seven characters are the month.
func (db *DB) TotalsOverTime(ctx context.Context, now time.Time, months int) ([]models.PeriodTotals, error) {
	periods := models.MonthsBack(utc(now), months)
	if len(periods) == 0 {
		return []models.PeriodTotals{}, nil
	}

	index := make(map[string]*models.PeriodTotals, len(periods))
	out := make([]models.PeriodTotals, len(periods))
	for i, p := range periods {
		out[i].Period = p
		index[p] = &out[i]
	}

	sources := []struct {
		table string
		apply func(*models.PeriodTotals, int)
	}{
		{"users", func(p *models.PeriodTotals, n int) { p.Users = n }},
		{"service_requests", func(p *models.PeriodTotals, n int) { p.ServiceRequests = n }},
		{"bookings", func(p *models.PeriodTotals, n int) { p.Bookings = n }},
	}

	for _, src := range sources {
		query := fmt.Sprintf(`SELECT substr(created_at, 1, 7) AS period, COUNT(*) FROM %s
                              WHERE substr(created_at, 1, 7) >= ? GROUP BY period`, src.table)
		rows, err := db.QueryContext(ctx, query, periods[0])
		if err != nil {
			return nil, fmt.Errorf("failed to group %s by month: %w", src.table, err)
		}
		for rows.Next() {
			var period string
			var n int
			if err := rows.Scan(&period, &n); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan monthly count: %w", err)
			}
			if p, ok := index[period]; ok {
				src.apply(p, n)
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
