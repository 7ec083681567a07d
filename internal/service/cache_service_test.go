package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRememberComputesOnceThenHits(t *testing.T) {
	repo := newMemoryCacheRepo()
	metrics := NewMetricsService()
	cache := NewCacheService(repo, metrics, time.Minute, nil, true)
	ctx := context.Background()

	calls := 0
	load := func() ([]int, error) {
		calls++
		return []int{3, 1}, nil
	}

	first, hit, err := remember(ctx, cache, "scheduler:teacher-load:s1:4", load)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []int{3, 1}, first)

	second, hit, err := remember(ctx, cache, "scheduler:teacher-load:s1:4", load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)

	snapshot := metrics.Snapshot()
	assert.Equal(t, uint64(1), snapshot.CacheHits)
	assert.Equal(t, uint64(1), snapshot.CacheMisses)
}

func TestRememberPropagatesLoadError(t *testing.T) {
	cache := NewCacheService(newMemoryCacheRepo(), nil, time.Minute, nil, true)
	_, _, err := remember(context.Background(), cache, "k", func() (int, error) {
		return 0, errors.New("boom")
	})
	assert.EqualError(t, err, "boom")
}

func TestCacheServiceDisabledSkipsRepository(t *testing.T) {
	repo := newMemoryCacheRepo()
	cache := NewCacheService(repo, nil, time.Minute, nil, false)

	value, hit, err := remember(context.Background(), cache, "k", func() (string, error) { return "fresh", nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "fresh", value)
	assert.False(t, repo.has("k"))

	var nilCache *CacheService
	assert.False(t, nilCache.Enabled())
	assert.NoError(t, nilCache.InvalidateSession(context.Background(), "s1"))
}

func TestInvalidateSessionDropsEveryRevision(t *testing.T) {
	repo := newMemoryCacheRepo()
	cache := NewCacheService(repo, nil, time.Minute, nil, true)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, teacherLoadCacheKey("s1", 1), 1, 0))
	require.NoError(t, cache.Set(ctx, roomUsageCacheKey("s1", 2), 2, 0))
	require.NoError(t, cache.Set(ctx, teacherLoadCacheKey("s2", 1), 3, 0))

	require.NoError(t, cache.InvalidateSession(ctx, "s1"))
	assert.False(t, repo.has(teacherLoadCacheKey("s1", 1)))
	assert.False(t, repo.has(roomUsageCacheKey("s1", 2)))
	assert.True(t, repo.has(teacherLoadCacheKey("s2", 1)))
}
