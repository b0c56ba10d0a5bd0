package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/smallbiznis/leadbridge/internal/clock"
)

type bucketState struct {
	tokens float64
	seen   time.Time
}

// MemoryBucket is the process-local equivalent of TokenBucket.
type MemoryBucket struct {
	mu      sync.Mutex
	clock   clock.Clock
	buckets map[string]*bucketState
	sweepAt time.Time
}

func NewMemoryBucket(c clock.Clock) *MemoryBucket {
	if c == nil {
		c = clock.New()
	}
	return &MemoryBucket{
		clock:   c,
		buckets: make(map[string]*bucketState),
	}
}

func (m *MemoryBucket) Allow(_ context.Context, key string, rate float64, burst int) (Result, error) {
	if err := checkArgs(key, rate, burst); err != nil {
		return Result{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	m.sweep(now, defaultBucketTTL(rate, burst))

	state, ok := m.buckets[key]
	if !ok {
		state = &bucketState{tokens: float64(burst), seen: now}
		m.buckets[key] = state
	} else if delta := now.Sub(state.seen); delta > 0 {
		state.tokens = math.Min(float64(burst), state.tokens+delta.Seconds()*rate)
		state.seen = now
	}

	allowed := false
	if state.tokens >= 1 {
		allowed = true
		state.tokens--
	}
	return newResult(allowed, state.tokens, rate, burst), nil
}

// sweep drops idle buckets at most once per idle window.
func (m *MemoryBucket) sweep(now time.Time, idle time.Duration) {
	if now.Before(m.sweepAt) {
		return
	}
	for key, state := range m.buckets {
		if now.Sub(state.seen) > idle {
			delete(m.buckets, key)
		}
	}
	m.sweepAt = now.Add(idle)
}
