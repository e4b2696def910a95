package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists the shared cooldown instant.
type Store interface {
	// BlockedUntil returns the current cooldown end, or the zero time if none.
	BlockedUntil(ctx context.Context) (time.Time, error)

	// Block extends the cooldown to until. A later instant already stored
	// is kept.
	Block(ctx context.Context, until time.Time) error
}

// extendScript only moves the cooldown forward and expires the key with it.
var extendScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local target = tonumber(ARGV[1])
if target > current then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
	return 1
end
return 0
`)

// RedisStore shares the cooldown between processes through Redis.
type RedisStore struct {
	redis *redis.Client
	key   string
}

// NewRedisStore creates a Redis-backed store using RedisKeyBlockedUntil.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis: redisClient,
		key:   RedisKeyBlockedUntil,
	}
}

// BlockedUntil implements Store.
func (s *RedisStore) BlockedUntil(ctx context.Context) (time.Time, error) {
	raw, err := s.redis.Get(ctx, s.key).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get blocked until: %w", err)
	}

	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse blocked until %q: %w", raw, err)
	}
	return time.UnixMilli(millis), nil
}

// Block implements Store.
func (s *RedisStore) Block(ctx context.Context, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}

	err := extendScript.Run(ctx, s.redis, []string{s.key}, until.UnixMilli(), ttl.Milliseconds()).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("store blocked until in redis: %w", err)
	}
	return nil
}

// MemoryStore keeps the cooldown in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	until time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// BlockedUntil implements Store.
func (s *MemoryStore) BlockedUntil(_ context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.until, nil
}

// Block implements Store.
func (s *MemoryStore) Block(_ context.Context, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if until.After(s.until) {
		s.until = until
	}
	return nil
}
