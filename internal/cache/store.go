package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/leadbridge/internal/clock"
)

// Store holds JSON-encoded values with a TTL. Implementations are safe for
// concurrent use.
type Store interface {
	// Get decodes the value under key into dst and reports whether it exists.
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// memorySweepInterval bounds how often Set walks the map for expired keys.
const memorySweepInterval = time.Minute

type memoryStore struct {
	items *TTLCache[string, []byte]
	clock clock.Clock

	mu      sync.Mutex
	sweepAt time.Time
}

// NewMemoryStore returns a process-local Store. Expired entries are swept
// from Set at most once per sweep interval, so keys that are never read
// again do not accumulate.
func NewMemoryStore(c clock.Clock) Store {
	if c == nil {
		c = clock.New()
	}
	return &memoryStore{
		items: NewTTLCacheWithClock[string, []byte](c),
		clock: c,
	}
}

func (s *memoryStore) sweep() {
	now := s.clock.Now()
	s.mu.Lock()
	if now.Before(s.sweepAt) {
		s.mu.Unlock()
		return
	}
	s.sweepAt = now.Add(memorySweepInterval)
	s.mu.Unlock()

	s.items.Purge()
}

func (s *memoryStore) Get(_ context.Context, key string, dst any) (bool, error) {
	raw, ok := s.items.Get(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode cache entry %q: %w", key, err)
	}
	return true, nil
}

func (s *memoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache entry %q: %w", key, err)
	}
	s.sweep()
	s.items.Set(key, raw, ttl)
	return nil
}

func (s *memoryStore) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		s.items.Delete(key)
	}
	return nil
}

func (s *memoryStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	return s.items.DeleteMatching(func(key string) bool {
		return strings.HasPrefix(key, prefix)
	}), nil
}

type redisStore struct {
	client redis.UniversalClient
}

// NewRedisStore returns a Store backed by redis.
func NewRedisStore(client redis.UniversalClient) Store {
	return &redisStore{client: client}
}

func (s *redisStore) Get(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode cache entry %q: %w", key, err)
	}
	return true, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache entry %q: %w", key, err)
	}
	if ttl < 0 {
		ttl = 0
	}
	return s.client.Set(ctx, key, raw, ttl).Err()
}

func (s *redisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *redisStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if prefix == "" {
		return 0, errors.New("cache prefix is empty")
	}
	removed := 0
	iter := s.client.Scan(ctx, 0, prefix+"*", 200).Iterator()
	batch := make([]string, 0, 200)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			n, err := s.client.Del(ctx, batch...).Result()
			if err != nil {
				return removed, err
			}
			removed += int(n)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return removed, err
	}
	if len(batch) > 0 {
		n, err := s.client.Del(ctx, batch...).Result()
		if err != nil {
			return removed, err
		}
		removed += int(n)
	}
	return removed, nil
}
