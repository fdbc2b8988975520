package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"skillconnect/internal/domain"
)

const outboxPrefix = "offline:outbox:"

// Entry is one mutating call queued while offline. ID doubles as the
// Idempotency-Key so a replay never applies twice on the server.
type Entry struct {
	ID         string          `json:"id"`
	Method     string          `json:"method"`
	Path       string          `json:"path"`
	Body       json.RawMessage `json:"body,omitempty"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
}

// Sender performs one API call and returns the HTTP status. A non-nil error
// means the server was not reached.
type Sender interface {
	Send(ctx context.Context, method, path string, body []byte, idempotencyKey string) (int, error)
}

// ReplayResult summarizes one Replay pass.
type ReplayResult struct {
	Sent      int
	Rejected  []Entry
	Remaining int
}

// Outbox is a FIFO queue of pending operations for one account.
type Outbox struct {
	store  domain.ListStore
	list   string
	now    func() time.Time
	logger *zerolog.Logger
}

func NewOutbox(store domain.ListStore, owner string, logger *zerolog.Logger) *Outbox {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Outbox{store: store, list: outboxPrefix + owner, now: time.Now, logger: logger}
}

// Enqueue appends an operation and returns it with its idempotency token.
func (o *Outbox) Enqueue(ctx context.Context, method, path string, body interface{}) (*Entry, error) {
	return o.EnqueueWithID(ctx, uuid.NewString(), method, path, body)
}

// EnqueueWithID queues an operation under id, which is replayed as its
// Idempotency-Key. Use it when the operation was already attempted with that key.
func (o *Outbox) EnqueueWithID(ctx context.Context, id, method, path string, body interface{}) (*Entry, error) {
	entry := &Entry{
		ID:         id,
		Method:     method,
		Path:       path,
		EnqueuedAt: o.now().UTC(),
	}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode offline body: %w", err)
		}
		entry.Body = data
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	if err := o.store.Append(ctx, o.list, raw); err != nil {
		return nil, fmt.Errorf("enqueue offline operation: %w", err)
	}
	return entry, nil
}

// Pending returns the queued operations in order.
func (o *Outbox) Pending(ctx context.Context) ([]Entry, error) {
	items, err := o.items(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(items))
	for _, it := range items {
		out = append(out, it.entry)
	}
	return out, nil
}

// Confirm removes the entry with the given id.
func (o *Outbox) Confirm(ctx context.Context, id string) error {
	items, err := o.items(ctx)
	if err != nil {
		return err
	}
	for _, it := range items {
		if it.entry.ID == id {
			return o.store.Remove(ctx, o.list, it.raw)
		}
	}
	return nil
}

// Replay sends pending entries oldest first. An entry leaves the queue once the
// server answered it for good; the pass stops at the first entry that may still
// succeed later so ordering is kept.
func (o *Outbox) Replay(ctx context.Context, sender Sender) (*ReplayResult, error) {
	items, err := o.items(ctx)
	if err != nil {
		return nil, err
	}

	res := &ReplayResult{}
	for i, it := range items {
		status, err := sender.Send(ctx, it.entry.Method, it.entry.Path, it.entry.Body, it.entry.ID)
		if err != nil || retryable(status) {
			o.logger.Debug().Err(err).Int("status", status).Str("id", it.entry.ID).Msg("offline replay paused")
			res.Remaining = len(items) - i
			return res, nil
		}

		if status >= http.StatusBadRequest {
			o.logger.Warn().Int("status", status).Str("id", it.entry.ID).Str("path", it.entry.Path).Msg("offline operation rejected")
			res.Rejected = append(res.Rejected, it.entry)
		} else {
			res.Sent++
		}
		if err := o.store.Remove(ctx, o.list, it.raw); err != nil {
			res.Remaining = len(items) - i
			return res, fmt.Errorf("remove replayed operation: %w", err)
		}
	}
	return res, nil
}

type outboxItem struct {
	raw   []byte
	entry Entry
}

func (o *Outbox) items(ctx context.Context) ([]outboxItem, error) {
	raws, err := o.store.Range(ctx, o.list)
	if err != nil {
		return nil, fmt.Errorf("read offline outbox: %w", err)
	}
	out := make([]outboxItem, 0, len(raws))
	for _, raw := range raws {
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			o.logger.Warn().Err(err).Msg("dropping corrupt offline entry")
			_ = o.store.Remove(ctx, o.list, raw)
			continue
		}
		out = append(out, outboxItem{raw: raw, entry: e})
	}
	return out, nil
}

// retryable reports statuses that may succeed on a later attempt.
func retryable(status int) bool {
	switch {
	case status >= http.StatusInternalServerError:
		return true
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return true
	case status == http.StatusUnauthorized:
		// The token may be refreshed before the next pass.
		return true
	}
	return false
}
