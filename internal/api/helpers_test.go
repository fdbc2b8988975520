package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"skillconnect/internal/auth"
	"skillconnect/internal/config"
	"skillconnect/internal/database"
	"skillconnect/internal/realtime"
	"skillconnect/internal/repository"
	"skillconnect/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "admin-password"
)

type testEnv struct {
	db     *database.DB
	server *httptest.Server
	hub    *realtime.Hub
}

func testAPIConfig() config.APIConfig {
	return config.APIConfig{
		HTTP: config.APIHTTPConfig{Port: 8080},
		CORS: config.APICORSConfig{AllowedOrigins: []string{"*"}},
	}
}

func newTestEnv(t *testing.T, cfg config.APIConfig) *testEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)

	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := repository.NewMemoryStore()
	users := service.NewUserService(db, auth.NewBcryptHasher(bcrypt.MinCost),
		auth.NewJWTIssuer("test-secret-0123456789", time.Hour), store, nil, &logger)
	require.NoError(t, users.SeedAdmin(context.Background(), config.AdminSeedConfig{
		Email:    adminEmail,
		Password: adminPassword,
	}))

	marketplace := service.NewMarketplaceService(db, db, db, nil, service.MarketplaceOptions{
		RequestTTL: 24 * time.Hour,
		OfferETA:   30 * time.Minute,
	}, &logger)
	hub := realtime.NewHub(marketplace, realtime.Options{PingInterval: time.Second}, &logger)

	srv := NewHTTPServer(cfg, Deps{
		Users:         users,
		Marketplace:   marketplace,
		Reviews:       service.NewReviewService(db, db, &logger),
		Notifications: service.NewNotificationService(db),
		Reports:       service.NewReportService(db, store, nil, time.Minute, 12, &logger),
		Hub:           hub,
		Idempotency:   db,
		DB:            db,
	}, &logger)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})
	return &testEnv{db: db, server: ts, hub: hub}
}

type response struct {
	status int
	header http.Header
	raw    []byte
	body   map[string]any
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any, headers ...string) response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := response{status: resp.StatusCode, header: resp.Header, raw: raw}
	_ = json.Unmarshal(raw, &out.body)
	return out
}

// register creates an account and returns its token and id.
func (e *testEnv) register(t *testing.T, email, role string, skills ...string) (string, int64) {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/auth/register", "", map[string]any{
		"email":    email,
		"username": email[:3],
		"password": "password123",
		"role":     role,
		"skills":   skills,
	})
	require.Equal(t, http.StatusCreated, resp.status, string(resp.raw))
	user := resp.body["user"].(map[string]any)
	return resp.body["token"].(string), int64(user["id"].(float64))
}

func (e *testEnv) login(t *testing.T, email, password string) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/auth/login", "", map[string]any{"email": email, "password": password})
	require.Equal(t, http.StatusOK, resp.status, string(resp.raw))
	return resp.body["token"].(string)
}

func (e *testEnv) createRequest(t *testing.T, token string, target int64) int64 {
	t.Helper()
	body := map[string]any{"typeOfWork": "Plumbing", "budget": 80, "notes": "kitchen sink"}
	if target > 0 {
		body["targetProviderId"] = target
	}
	resp := e.do(t, http.MethodPost, "/service-request", token, body)
	require.Equal(t, http.StatusCreated, resp.status, string(resp.raw))
	return int64(resp.body["request"].(map[string]any)["id"].(float64))
}
