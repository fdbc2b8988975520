package repository

import (
	"bytes"
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

// MemoryStore keeps cache entries, lists and rate counters in process memory.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	lists      map[string][][]byte
	rateLimits map[string]*rateLimitEntry
	now        func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:    make(map[string]memoryEntry),
		lists:      make(map[string][][]byte),
		rateLimits: make(map[string]*rateLimitEntry),
		now:        time.Now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	if e.expired(s.now()) {
		delete(s.entries, key)
		return nil, nil
	}
	return append([]byte(nil), e.value...), nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Append(ctx context.Context, list string, value []byte) error {
	s.mu.Lock()
	s.lists[list] = append(s.lists[list], append([]byte(nil), value...))
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Range(ctx context.Context, list string) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.lists[list]
	out := make([][]byte, len(items))
	for i, v := range items {
		out[i] = append([]byte(nil), v...)
	}
	return out, nil
}

// Remove drops the first element equal to value.
func (s *MemoryStore) Remove(ctx context.Context, list string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.lists[list]
	for i, v := range items {
		if bytes.Equal(v, value) {
			s.lists[list] = append(items[:i:i], items[i+1:]...)
			break
		}
	}
	if len(s.lists[list]) == 0 {
		delete(s.lists, list)
	}
	return nil
}

func (s *MemoryStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry, ok := s.rateLimits[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{count: 1, expiresAt: now.Add(window)}
		s.rateLimits[key] = entry
	} else {
		entry.count++
	}

	return entry.count <= limit, nil
}
