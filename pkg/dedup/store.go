package dedup

import (
	"context"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Store records keys for a limited time. Add must check and record in one
// atomic step: it reports true only for the caller that inserted the key.
type Store interface {
	Add(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Forget(ctx context.Context, key string) error
}

// MemoryStore keeps keys in process memory. Expired keys are evicted by the
// cache janitor and by Cleanup.
type MemoryStore struct {
	c *gocache.Cache
}

// NewMemoryStore creates a MemoryStore whose janitor runs every
// cleanupInterval. A non-positive interval disables the janitor.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{c: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func (s *MemoryStore) Add(_ context.Context, key string, ttl time.Duration) (bool, error) {
	// go-cache's Add fails when an unexpired item already holds the key.
	if err := s.c.Add(key, struct{}{}, ttl); err != nil {
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) Forget(_ context.Context, key string) error {
	s.c.Delete(key)
	return nil
}

// Cleanup evicts expired keys.
func (s *MemoryStore) Cleanup() {
	s.c.DeleteExpired()
}

// Len returns the number of stored keys, including expired ones not yet evicted.
func (s *MemoryStore) Len() int {
	return s.c.ItemCount()
}

// RedisStore shares keys between processes through Redis SET NX.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix namespaces every key.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore creates a RedisStore.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: "dedup:"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) Add(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+key, 1, ttl).Result()
	if err != nil {
		return false, errors.Join(ErrStoreUnavailable, err)
	}
	return ok, nil
}

func (s *RedisStore) Forget(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}
