package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type regimeEntry struct {
	Probabilities []float64 `json:"probabilities"`
	Stale         bool      `json:"stale"`
}

func TestMemoryCache_SetGetStruct(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	in := regimeEntry{Probabilities: []float64{0.2, 0.8}}
	require.NoError(t, mc.Set(ctx, "regime:BTC", in, time.Minute))

	var out regimeEntry
	require.NoError(t, mc.Get(ctx, "regime:BTC", &out))
	assert.Equal(t, in, out)
}

func TestMemoryCache_StringRoundTrip(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "k", "plain", time.Minute))
	var s string
	require.NoError(t, mc.Get(ctx, "k", &s))
	assert.Equal(t, "plain", s)
}

func TestMemoryCache_MissAndExpiry(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	var out regimeEntry
	assert.ErrorIs(t, mc.Get(ctx, "absent", &out), ErrCacheMiss)

	require.NoError(t, mc.Set(ctx, "short", regimeEntry{}, time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	assert.ErrorIs(t, mc.Get(ctx, "short", &out), ErrCacheMiss)

	assert.Zero(t, mc.Len())
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	mc := NewMemoryCache(WithMaxEntries(2))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", "1", time.Minute))
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "b", "2", time.Minute))
	time.Sleep(time.Millisecond)

	var s string
	require.NoError(t, mc.Get(ctx, "a", &s)) // touch a, b becomes oldest
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "c", "3", time.Minute))

	assert.Equal(t, 2, mc.Len())
	assert.ErrorIs(t, mc.Get(ctx, "b", &s), ErrCacheMiss)
	assert.NoError(t, mc.Get(ctx, "a", &s))
	assert.NoError(t, mc.Get(ctx, "c", &s))
}

func TestMemoryCache_Delete(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", "1", time.Minute))
	require.NoError(t, mc.Delete(ctx, "a", "missing"))

	var s string
	assert.ErrorIs(t, mc.Get(ctx, "a", &s), ErrCacheMiss)
	assert.NoError(t, mc.Close())
	assert.NoError(t, mc.Close())
}

func TestMemoryCache_PurgeExpired(t *testing.T) {
	mc := NewMemoryCache(WithCleanupInterval(time.Hour))
	defer mc.Close()
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return base }
	require.NoError(t, mc.Set(ctx, "short", "1", time.Second))
	require.NoError(t, mc.Set(ctx, "long", "2", time.Hour))
	require.NoError(t, mc.Set(ctx, "short", "3", time.Second))

	mc.now = func() time.Time { return base.Add(time.Minute) }
	mc.purgeExpired()

	assert.Equal(t, 1, mc.Len())
	var s string
	require.NoError(t, mc.Get(ctx, "long", &s))
	assert.Equal(t, "2", s)
}
