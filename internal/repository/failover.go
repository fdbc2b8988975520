package repository

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"skillconnect/internal/domain"
)

// Store is the union of the shared key-value capabilities.
type Store interface {
	domain.CacheStore
	domain.ListStore
	domain.RateCounter
}

// RecoveryInterval is how long the failover store waits before retrying the primary.
const RecoveryInterval = time.Minute

// FailoverStore serves from primary and switches to fallback while primary is failing.
type FailoverStore struct {
	primary   Store
	fallback  Store
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverStore(primary, fallback Store, logger *zerolog.Logger) *FailoverStore {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &FailoverStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// usePrimary reports whether the next call should go to primary. While
// primary is down it allows one probe per RecoveryInterval.
func (s *FailoverStore) usePrimary() bool {
	if !s.isDown.Load() {
		return true
	}
	last := time.Unix(0, s.lastCheck.Load())
	return s.now().Sub(last) > RecoveryInterval
}

func (s *FailoverStore) record(err error) {
	if err == nil {
		if s.isDown.Swap(false) {
			s.logger.Info().Msg("Primary store recovered")
		}
		return
	}
	if !s.isDown.Swap(true) {
		s.logger.Error().Err(err).Msg("Primary store failed, falling back to memory")
	}
	s.lastCheck.Store(s.now().UnixNano())
}

func (s *FailoverStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.usePrimary() {
		val, err := s.primary.Get(ctx, key)
		s.record(err)
		if err == nil {
			return val, nil
		}
	}
	return s.fallback.Get(ctx, key)
}

func (s *FailoverStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.usePrimary() {
		err := s.primary.Set(ctx, key, value, ttl)
		s.record(err)
		if err == nil {
			return nil
		}
	}
	return s.fallback.Set(ctx, key, value, ttl)
}

func (s *FailoverStore) Delete(ctx context.Context, key string) error {
	if s.usePrimary() {
		err := s.primary.Delete(ctx, key)
		s.record(err)
		if err == nil {
			return nil
		}
	}
	return s.fallback.Delete(ctx, key)
}

func (s *FailoverStore) Append(ctx context.Context, list string, value []byte) error {
	if s.usePrimary() {
		err := s.primary.Append(ctx, list, value)
		s.record(err)
		if err == nil {
			return nil
		}
	}
	return s.fallback.Append(ctx, list, value)
}

func (s *FailoverStore) Range(ctx context.Context, list string) ([][]byte, error) {
	if s.usePrimary() {
		vals, err := s.primary.Range(ctx, list)
		s.record(err)
		if err == nil {
			return vals, nil
		}
	}
	return s.fallback.Range(ctx, list)
}

func (s *FailoverStore) Remove(ctx context.Context, list string, value []byte) error {
	if s.usePrimary() {
		err := s.primary.Remove(ctx, list, value)
		s.record(err)
		if err == nil {
			return nil
		}
	}
	return s.fallback.Remove(ctx, list, value)
}

func (s *FailoverStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if s.usePrimary() {
		allowed, err := s.primary.CheckRateLimit(ctx, key, limit, window)
		s.record(err)
		if err == nil {
			return allowed, nil
		}
	}
	return s.fallback.CheckRateLimit(ctx, key, limit, window)
}
