package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	now := time.Date(2024, 12, 12, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	var out map[string]int64
	assert.ErrorIs(t, c.Get(ctx, "counts", &out), ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "counts", map[string]int64{"Pending": 3}, 5*time.Second))
	require.NoError(t, c.Get(ctx, "counts", &out))
	assert.Equal(t, int64(3), out["Pending"])

	now = now.Add(6 * time.Second)
	assert.ErrorIs(t, c.Get(ctx, "counts", &out), ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "counts", map[string]int64{}, time.Minute))
	require.NoError(t, c.Delete(ctx, "counts"))
	assert.ErrorIs(t, c.Get(ctx, "counts", &out), ErrCacheMiss)
}

func TestMultiLevelCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 12, 12, 10, 0, 0, 0, time.UTC)
	local, remote := NewMemoryCache(), NewMemoryCache()
	local.now = func() time.Time { return now }
	remote.now = func() time.Time { return now }
	c := NewMultiLevelCache(local, remote, time.Second)

	require.NoError(t, c.Set(ctx, "counts", map[string]int64{"Pending": 3}, 5*time.Second))

	// 本地层先过期，从远程层读取并回填
	now = now.Add(2 * time.Second)
	var out map[string]int64
	assert.ErrorIs(t, local.Get(ctx, "counts", &out), ErrCacheMiss)
	require.NoError(t, c.Get(ctx, "counts", &out))
	assert.Equal(t, int64(3), out["Pending"])
	require.NoError(t, local.Get(ctx, "counts", &out))

	now = now.Add(10 * time.Second)
	assert.ErrorIs(t, c.Get(ctx, "counts", &out), ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "counts", map[string]int64{}, time.Minute))
	require.NoError(t, c.Delete(ctx, "counts"))
	assert.ErrorIs(t, remote.Get(ctx, "counts", &out), ErrCacheMiss)
	assert.ErrorIs(t, local.Get(ctx, "counts", &out), ErrCacheMiss)
}
