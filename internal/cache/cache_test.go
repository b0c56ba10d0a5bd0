package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/leadbridge/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCacheExpiresEntries(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	c := NewTTLCacheWithClock[string, int](fake)

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, 0)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	fake.Advance(time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)

	v, ok = c.Get("b")
	require.True(t, ok, "entries without ttl never expire")
	assert.Equal(t, 2, v)
}

func TestTTLCachePurge(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	c := NewTTLCacheWithClock[string, string](fake)
	c.Set("x", "1", time.Second)
	c.Set("y", "2", time.Hour)

	fake.Advance(2 * time.Second)
	assert.Equal(t, 1, c.Purge())
	assert.Equal(t, 1, c.Len())
}

func TestMemoryStoreSweepsExpiredEntries(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	store := NewMemoryStore(fake)

	for i := 0; i < 100; i++ {
		require.NoError(t, store.Set(ctx, fmt.Sprintf("geo_%d", i), i, 72*time.Hour))
	}
	fake.Advance(73 * time.Hour)
	require.NoError(t, store.Set(ctx, "fresh", "v", time.Hour))

	assert.Equal(t, 1, store.(*memoryStore).items.Len())
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	store := NewMemoryStore(fake)

	type payload struct {
		City string `json:"city"`
	}
	require.NoError(t, store.Set(ctx, "k", payload{City: "Recife"}, time.Hour))

	var got payload
	ok, err := store.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Recife", got.City)

	require.NoError(t, store.Delete(ctx, "k"))
	ok, err = store.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreDeletePrefix(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(clock.New())
	require.NoError(t, store.Set(ctx, "geo_a", 1, time.Hour))
	require.NoError(t, store.Set(ctx, "geo_b", 2, time.Hour))
	require.NoError(t, store.Set(ctx, "other", 3, time.Hour))

	n, err := store.DeletePrefix(ctx, "geo_")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var v int
	ok, _ := store.Get(ctx, "other", &v)
	assert.True(t, ok)
}

func TestMemoryStoreMissDoesNotTouchDst(t *testing.T) {
	store := NewMemoryStore(clock.New())
	dst := []string{"keep"}
	ok, err := store.Get(context.Background(), "missing", &dst)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{"keep"}, dst)
}

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	km := NewKeyedMutex()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("form")
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, km.size())
}

func TestNilLockerIsDisabled(t *testing.T) {
	var l *Locker
	assert.False(t, l.Enabled())
	_, ok, err := l.TryLock(context.Background(), "k", time.Second)
	assert.Error(t, err)
	assert.False(t, ok)
	assert.NoError(t, l.Release(context.Background(), "k", "token"))
}
