package database

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"skillconnect/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(io.Discard)

	// TEST_DB_PATH points the tests at a directory of real files instead of memory.
	path := ":memory:"
	if dir := os.Getenv("TEST_DB_PATH"); dir != "" {
		path = filepath.Join(dir, fmt.Sprintf("test-%d.db", time.Now().UnixNano()))
		t.Cleanup(func() { _ = os.Remove(path) })
	}

	db, err := NewDB(path, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

var userSeq int

func createTestUser(t *testing.T, db *DB, role string, skills ...string) *models.User {
	t.Helper()
	userSeq++
	u := &models.User{
		Email:        fmt.Sprintf("user%d@example.com", userSeq),
		Username:     fmt.Sprintf("user%d", userSeq),
		PasswordHash: "hash",
		Role:         role,
		Skills:       skills,
	}
	require.NoError(t, db.CreateUser(context.Background(), u))
	return u
}

func createTestRequest(t *testing.T, db *DB, requesterID int64, target *int64, expiresIn time.Duration) *models.ServiceRequest {
	t.Helper()
	r := &models.ServiceRequest{
		RequesterID:      requesterID,
		TypeOfWork:       "Plumbing",
		Budget:           100,
		Notes:            "leaking tap",
		TargetProviderID: target,
		ExpiresAt:        time.Now().Add(expiresIn),
	}
	require.NoError(t, db.CreateServiceRequest(context.Background(), r, nil))
	return r
}

func idOf(u *models.User) *int64 {
	id := u.ID
	return &id
}

func countRows(t *testing.T, db *DB, query string, args ...interface{}) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRowContext(context.Background(), query, args...).Scan(&n))
	return n
}
