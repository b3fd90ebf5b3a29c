package execution

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyStore claims execution keys. A key can be claimed once per TTL.
type IdempotencyStore interface {
	// Claim returns true if this call took the key, false if it was already held.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// MemoryIdempotencyStore is a process-local IdempotencyStore.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

// NewMemoryIdempotencyStore creates an empty store.
func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Claim takes key unless it is held and not yet expired.
func (s *MemoryIdempotencyStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if exp, ok := s.expires[key]; ok && now.Before(exp) {
		return false, nil
	}
	s.expires[key] = now.Add(ttl)

	// Sweep expired keys opportunistically.
	for k, exp := range s.expires {
		if !now.Before(exp) {
			delete(s.expires, k)
		}
	}
	return true, nil
}

// RedisIdempotencyStore shares claims across processes via SET NX.
type RedisIdempotencyStore struct {
	client *redis.Client
	prefix string
}

// NewRedisIdempotencyStore creates a store on client. Keys are namespaced by prefix.
func NewRedisIdempotencyStore(client *redis.Client, prefix string) *RedisIdempotencyStore {
	if prefix == "" {
		prefix = "graduation-engine:exec:"
	}
	return &RedisIdempotencyStore{client: client, prefix: prefix}
}

// Claim sets the key if absent, with ttl.
func (s *RedisIdempotencyStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.prefix+key, time.Now().UnixMilli(), ttl).Result()
}

var (
	_ IdempotencyStore = (*MemoryIdempotencyStore)(nil)
	_ IdempotencyStore = (*RedisIdempotencyStore)(nil)
)
