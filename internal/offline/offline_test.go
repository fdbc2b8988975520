package offline

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skillconnect/internal/config"
	"skillconnect/internal/repository"
)

type sentCall struct {
	method, path, key string
	body              string
}

// scriptedSender answers calls with the queued statuses; an empty script
// behaves like a dropped connection.
type scriptedSender struct {
	statuses []int
	calls    []sentCall
}

func (s *scriptedSender) Send(_ context.Context, method, path string, body []byte, key string) (int, error) {
	s.calls = append(s.calls, sentCall{method: method, path: path, key: key, body: string(body)})
	if len(s.statuses) == 0 {
		return 0, errors.New("connection refused")
	}
	status := s.statuses[0]
	s.statuses = s.statuses[1:]
	return status, nil
}

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(repository.NewMemoryStore())

	type provider struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	require.NoError(t, cache.Save(ctx, "providers", []provider{{ID: 1, Name: "Sam"}}))

	var got []provider
	savedAt, ok, err := cache.Load(ctx, "providers", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, savedAt.IsZero())
	assert.Equal(t, []provider{{ID: 1, Name: "Sam"}}, got)

	_, ok, err = cache.Load(ctx, "missing", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheExpiresAfterADay(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(repository.NewMemoryStore())

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return base }
	require.NoError(t, cache.Save(ctx, "available", []int{1, 2}))

	cache.now = func() time.Time { return base.Add(23 * time.Hour) }
	var got []int
	_, ok, err := cache.Load(ctx, "available", &got)
	require.NoError(t, err)
	assert.True(t, ok)

	cache.now = func() time.Time { return base.Add(CacheTTL) }
	_, ok, err = cache.Load(ctx, "available", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOutboxReplayInOrder(t *testing.T) {
	ctx := context.Background()
	outbox := NewOutbox(repository.NewMemoryStore(), "user-1", nil)

	first, err := outbox.Enqueue(ctx, http.MethodPost, "/service-request", map[string]any{"typeOfWork": "Plumbing"})
	require.NoError(t, err)
	second, err := outbox.Enqueue(ctx, http.MethodPut, "/booking/3/complete", nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	sender := &scriptedSender{statuses: []int{http.StatusCreated, http.StatusOK}}
	res, err := outbox.Replay(ctx, sender)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Sent)
	assert.Empty(t, res.Rejected)
	assert.Zero(t, res.Remaining)
	require.Len(t, sender.calls, 2)
	assert.Equal(t, sentCall{method: http.MethodPost, path: "/service-request", key: first.ID, body: `{"typeOfWork":"Plumbing"}`}, sender.calls[0])
	assert.Equal(t, second.ID, sender.calls[1].key)
	assert.Empty(t, sender.calls[1].body)

	pending, err := outbox.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOutboxStopsAtTransportFailure(t *testing.T) {
	ctx := context.Background()
	outbox := NewOutbox(repository.NewMemoryStore(), "user-1", nil)

	for _, path := range []string{"/a", "/b", "/c"} {
		_, err := outbox.Enqueue(ctx, http.MethodPost, path, nil)
		require.NoError(t, err)
	}

	sender := &scriptedSender{statuses: []int{http.StatusOK}}
	res, err := outbox.Replay(ctx, sender)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 2, res.Remaining)
	assert.Len(t, sender.calls, 2, "the third entry is not attempted")

	pending, err := outbox.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "/b", pending[0].Path)

	// A later pass retries /b with the same key.
	retry := &scriptedSender{statuses: []int{http.StatusOK, http.StatusOK}}
	_, err = outbox.Replay(ctx, retry)
	require.NoError(t, err)
	assert.Equal(t, pending[0].ID, retry.calls[0].key)
}

func TestOutboxRejectedAndRetryableStatuses(t *testing.T) {
	ctx := context.Background()
	outbox := NewOutbox(repository.NewMemoryStore(), "user-1", nil)

	conflicted, err := outbox.Enqueue(ctx, http.MethodPost, "/service-request/1/accept-offer", nil)
	require.NoError(t, err)
	_, err = outbox.Enqueue(ctx, http.MethodPost, "/service-request", nil)
	require.NoError(t, err)

	sender := &scriptedSender{statuses: []int{http.StatusConflict, http.StatusServiceUnavailable}}
	res, err := outbox.Replay(ctx, sender)
	require.NoError(t, err)

	require.Len(t, res.Rejected, 1)
	assert.Equal(t, conflicted.ID, res.Rejected[0].ID)
	assert.Zero(t, res.Sent)
	assert.Equal(t, 1, res.Remaining)

	pending, err := outbox.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "/service-request", pending[0].Path)
}

func TestOutboxConfirm(t *testing.T) {
	ctx := context.Background()
	outbox := NewOutbox(repository.NewMemoryStore(), "user-1", nil)

	a, err := outbox.Enqueue(ctx, http.MethodPost, "/a", nil)
	require.NoError(t, err)
	b, err := outbox.Enqueue(ctx, http.MethodPost, "/b", nil)
	require.NoError(t, err)

	require.NoError(t, outbox.Confirm(ctx, a.ID))
	require.NoError(t, outbox.Confirm(ctx, "unknown"))

	pending, err := outbox.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, b.ID, pending[0].ID)
}

func TestOutboxEnqueueWithIDReplaysThatKey(t *testing.T) {
	ctx := context.Background()
	outbox := NewOutbox(repository.NewMemoryStore(), "user-1", nil)

	entry, err := outbox.EnqueueWithID(ctx, "key-from-first-try", http.MethodPost, "/service-request/3/complete", nil)
	require.NoError(t, err)
	assert.Equal(t, "key-from-first-try", entry.ID)

	sender := &scriptedSender{statuses: []int{http.StatusOK}}
	res, err := outbox.Replay(ctx, sender)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	require.Len(t, sender.calls, 1)
	assert.Equal(t, "key-from-first-try", sender.calls[0].key)
}

func TestOutboxOnRedis(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := repository.NewRedisClient(config.RedisConfig{Address: s.Addr()})
	defer client.Close()

	ctx := context.Background()
	outbox := NewOutbox(repository.NewRedisStore(client), "user-9", nil)
	entry, err := outbox.Enqueue(ctx, http.MethodPut, "/notifications/read-all", nil)
	require.NoError(t, err)

	// A second handle over the same store sees the queue.
	reopened := NewOutbox(repository.NewRedisStore(client), "user-9", nil)
	pending, err := reopened.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, entry.ID, pending[0].ID)

	res, err := reopened.Replay(ctx, &scriptedSender{statuses: []int{http.StatusOK}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
}
