package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"skillconnect/internal/models"
)

const userColumns = `id, email, username, password_hash, role, skills, phone, average_rating,
       total_reviews, verified, banned, profile_pic, created_at, updated_at`

func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	skills, err := encodeStrings(user.Skills)
	if err != nil {
		return err
	}

	now := utc(time.Now())
	query := `INSERT INTO users (email, username, password_hash, role, skills, phone, verified, banned,
                  profile_pic, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := db.ExecContext(ctx, query,
		strings.TrimSpace(user.Email),
		user.Username,
		user.PasswordHash,
		user.Role,
		skills,
		user.Phone,
		user.Verified,
		user.Banned,
		user.ProfilePic,
		now,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return queryUser(ctx, db, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return queryUser(ctx, db, `SELECT `+userColumns+` FROM users WHERE email = ?`, strings.TrimSpace(email))
}

func queryUser(ctx context.Context, q querier, query string, args ...interface{}) (*models.User, error) {
	user, err := scanUser(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var skills string
	err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Role, &skills, &u.Phone, &u.AverageRating,
		&u.TotalReviews, &u.Verified, &u.Banned, &u.ProfilePic, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if u.Skills, err = decodeStrings(skills); err != nil {
		return nil, fmt.Errorf("failed to decode skills of user %d: %w", u.ID, err)
	}
	return &u, nil
}

// UpdateUserProfile stores the editable profile fields.
func (db *DB) UpdateUserProfile(ctx context.Context, user *models.User) error {
	skills, err := encodeStrings(user.Skills)
	if err != nil {
		return err
	}

	now := utc(time.Now())
	query := `UPDATE users SET username = ?, phone = ?, skills = ?, profile_pic = ?, updated_at = ? WHERE id = ?`
	res, execErr := db.ExecContext(ctx, query, user.Username, user.Phone, skills, user.ProfilePic, now, user.ID)
	err = mustAffect(res, execErr, ErrNotFound)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to update user profile: %w", err)
	}
	user.UpdatedAt = now
	return nil
}

func (db *DB) SetUserBanned(ctx context.Context, id int64, banned bool) error {
	return db.setUserFlag(ctx, "banned", id, banned)
}

func (db *DB) SetUserVerified(ctx context.Context, id int64, verified bool) error {
	return db.setUserFlag(ctx, "verified", id, verified)
}

func (db *DB) setUserFlag(ctx context.Context, column string, id int64, value bool) error {
	query := fmt.Sprintf(`UPDATE users SET %s = ?, updated_at = ? WHERE id = ?`, column)
	res, execErr := db.ExecContext(ctx, query, value, utc(time.Now()), id)
	err := mustAffect(res, execErr, ErrNotFound)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to update user %s: %w", column, err)
	}
	return err
}

func (db *DB) ListUsers(ctx context.Context, filter models.UserFilter) ([]*models.User, error) {
	var conds []string
	var args []interface{}

	if filter.Role != "" {
		conds = append(conds, "role = ?")
		args = append(args, filter.Role)
	}
	if filter.Banned != nil {
		conds = append(conds, "banned = ?")
		args = append(args, *filter.Banned)
	}
	if filter.Skill != "" {
		conds = append(conds, "EXISTS (SELECT 1 FROM json_each(users.skills) WHERE lower(json_each.value) = lower(?))")
		args = append(args, filter.Skill)
	}

	query := `SELECT ` + userColumns + ` FROM users`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY verified DESC, average_rating DESC, id ASC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func encodeStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("failed to encode list: %w", err)
	}
	return string(data), nil
}

func decodeStrings(raw string) ([]string, error) {
	values := []string{}
	if raw == "" {
		return values, nil
	}
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, err
	}
	return values, nil
}
