package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"skillconnect/internal/models"
	"skillconnect/internal/offline"
)

// ErrQueued is returned by Submit when the server could not be reached and
// the operation was stored for a later Sync.
var ErrQueued = errors.New("operation queued for replay")

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// Client calls the SkillConnect REST API. With a cache and outbox attached it
// keeps working when the network drops.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client

	cache  *offline.Cache
	outbox *offline.Outbox
	logger *zerolog.Logger
}

func New(baseURL string, logger *zerolog.Logger) *Client {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// UseOffline attaches the offline cache and outbox. Either may be nil.
func (c *Client) UseOffline(cache *offline.Cache, outbox *offline.Outbox) {
	c.cache = cache
	c.outbox = outbox
}

func (c *Client) SetToken(token string) {
	c.token = token
}

// ServiceRequestList is a fetched or cached list of requests.
type ServiceRequestList struct {
	Requests  []*models.ServiceRequest
	FetchedAt time.Time
	Stale     bool
}

// ProviderList is a fetched or cached list of providers.
type ProviderList struct {
	Providers []*models.PublicUser
	FetchedAt time.Time
	Stale     bool
}

// Login stores the returned token for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (*models.User, error) {
	var out struct {
		Token string       `json:"token"`
		User  *models.User `json:"user"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.call(ctx, http.MethodPost, "/auth/login", body, "", &out); err != nil {
		return nil, err
	}
	c.token = out.Token
	return out.User, nil
}

// AvailableServiceRequests lists the offers addressed to the signed-in
// provider, falling back to the cached copy when offline.
func (c *Client) AvailableServiceRequests(ctx context.Context) (*ServiceRequestList, error) {
	var out struct {
		Requests []*models.ServiceRequest `json:"requests"`
	}
	fetchedAt, stale, err := c.cachedGet(ctx, "/user/available-service-requests", "available-service-requests", &out)
	if err != nil {
		return nil, err
	}
	return &ServiceRequestList{Requests: out.Requests, FetchedAt: fetchedAt, Stale: stale}, nil
}

// Providers lists providers, optionally filtered by skill.
func (c *Client) Providers(ctx context.Context, skill string) (*ProviderList, error) {
	path := "/user/providers"
	key := "providers"
	if skill != "" {
		path += "?skill=" + url.QueryEscape(skill)
		key += ":" + strings.ToLower(skill)
	}

	var out struct {
		Providers []*models.PublicUser `json:"providers"`
	}
	fetchedAt, stale, err := c.cachedGet(ctx, path, key, &out)
	if err != nil {
		return nil, err
	}
	return &ProviderList{Providers: out.Providers, FetchedAt: fetchedAt, Stale: stale}, nil
}

// Submit sends a mutating call under a fresh idempotency key. When the server
// is unreachable and an outbox is attached the call is queued and ErrQueued
// returned.
func (c *Client) Submit(ctx context.Context, method, path string, body, out interface{}) error {
	key := uuid.NewString()
	err := c.call(ctx, method, path, body, key, out)
	var apiErr *APIError
	if err == nil || errors.As(err, &apiErr) || c.outbox == nil {
		return err
	}

	// The server may have applied the call before the connection dropped,
	// so the queued replay reuses the key.
	entry, qerr := c.outbox.EnqueueWithID(ctx, key, method, path, body)
	if qerr != nil {
		return fmt.Errorf("%v (and queueing failed: %w)", err, qerr)
	}
	c.logger.Info().Str("id", entry.ID).Str("path", path).Msg("offline, operation queued")
	return ErrQueued
}

// Sync replays queued operations.
func (c *Client) Sync(ctx context.Context) (*offline.ReplayResult, error) {
	if c.outbox == nil {
		return &offline.ReplayResult{}, nil
	}
	return c.outbox.Replay(ctx, c)
}

// Send performs a raw call and reports the status code.
func (c *Client) Send(ctx context.Context, method, path string, body []byte, idempotencyKey string) (int, error) {
	req, err := c.newRequest(ctx, method, path, body, idempotencyKey)
	if err != nil {
		return 0, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (c *Client) cachedGet(ctx context.Context, path, cacheKey string, out interface{}) (time.Time, bool, error) {
	err := c.call(ctx, http.MethodGet, path, nil, "", out)
	if err == nil {
		if c.cache != nil {
			if serr := c.cache.Save(ctx, cacheKey, out); serr != nil {
				c.logger.Warn().Err(serr).Str("key", cacheKey).Msg("offline cache write failed")
			}
		}
		return time.Now().UTC(), false, nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) || c.cache == nil {
		return time.Time{}, false, err
	}

	savedAt, ok, cerr := c.cache.Load(ctx, cacheKey, out)
	if cerr != nil || !ok {
		return time.Time{}, false, err
	}
	c.logger.Debug().Err(err).Str("key", cacheKey).Msg("serving cached copy")
	return savedAt, true, nil
}

func (c *Client) call(ctx context.Context, method, path string, body interface{}, idempotencyKey string, out interface{}) error {
	var data []byte
	if body != nil {
		var err error
		if data, err = json.Marshal(body); err != nil {
			return err
		}
	}

	req, err := c.newRequest(ctx, method, path, data, idempotencyKey)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &APIError{Status: resp.StatusCode, Message: e.Message}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte, idempotencyKey string) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	return req, nil
}
