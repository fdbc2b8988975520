package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"skillconnect/internal/domain"
)

// CacheTTL is how long a fetched list stays usable offline.
const CacheTTL = 24 * time.Hour

const cachePrefix = "offline:cache:"

type cacheEntry struct {
	SavedAt time.Time       `json:"savedAt"`
	Data    json.RawMessage `json:"data"`
}

// Cache keeps the last fetched copy of list endpoints for offline reads.
type Cache struct {
	store domain.CacheStore
	now   func() time.Time
}

func NewCache(store domain.CacheStore) *Cache {
	return &Cache{store: store, now: time.Now}
}

// Save stores value under key, replacing any older copy.
func (c *Cache) Save(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cached %s: %w", key, err)
	}
	raw, err := json.Marshal(cacheEntry{SavedAt: c.now().UTC(), Data: data})
	if err != nil {
		return err
	}
	return c.store.Set(ctx, cachePrefix+key, raw, CacheTTL)
}

// Load decodes the cached copy of key into out. It reports false when
// nothing usable is cached; expired copies are dropped.
func (c *Cache) Load(ctx context.Context, key string, out interface{}) (time.Time, bool, error) {
	raw, err := c.store.Get(ctx, cachePrefix+key)
	if err != nil || raw == nil {
		return time.Time{}, false, err
	}

	var entry cacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		_ = c.store.Delete(ctx, cachePrefix+key)
		return time.Time{}, false, nil
	}
	if c.now().Sub(entry.SavedAt) >= CacheTTL {
		_ = c.store.Delete(ctx, cachePrefix+key)
		return time.Time{}, false, nil
	}
	if err := json.Unmarshal(entry.Data, out); err != nil {
		return time.Time{}, false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return entry.SavedAt, true, nil
}

func (c *Cache) Forget(ctx context.Context, key string) error {
	return c.store.Delete(ctx, cachePrefix+key)
}
