package execcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelfi/patternrunner/core"
)

func TestInMemoryCache_MissThenHit(t *testing.T) {
	c := NewInMemoryCache(10)
	ctx := context.Background()

	_, ok := c.Get(ctx, "fp1")
	assert.False(t, ok)

	result := &core.StepResult{Value: map[string]interface{}{"x": 1}}
	c.Set(ctx, "fp1", result, time.Minute)

	got, ok := c.Get(ctx, "fp1")
	require.True(t, ok)
	assert.Same(t, result, got)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Size)
}

func TestInMemoryCache_ZeroTTLNeverStores(t *testing.T) {
	c := NewInMemoryCache(10)
	ctx := context.Background()

	c.Set(ctx, "fp1", &core.StepResult{}, 0)
	_, ok := c.Get(ctx, "fp1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats().Size)
}

func TestInMemoryCache_ExpiredEntryEvictedOnGet(t *testing.T) {
	c := NewInMemoryCache(10)
	ctx := context.Background()

	c.Set(ctx, "fp1", &core.StepResult{}, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get(ctx, "fp1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats().Size, "an expired entry must be removed, not just reported stale")
}

func TestInMemoryCache_OverwriteRefreshesExpiryAndValue(t *testing.T) {
	c := NewInMemoryCache(10)
	ctx := context.Background()

	c.Set(ctx, "fp1", &core.StepResult{Value: "first"}, time.Minute)
	c.Set(ctx, "fp1", &core.StepResult{Value: "second"}, time.Minute)

	got, ok := c.Get(ctx, "fp1")
	require.True(t, ok)
	assert.Equal(t, "second", got.Value)
	assert.Equal(t, 1, c.Stats().Size, "overwriting an existing fingerprint must not grow the cache")
}

func TestInMemoryCache_EvictsLeastRecentlyUsedAtCapacity(t *testing.T) {
	c := NewInMemoryCache(2)
	ctx := context.Background()

	c.Set(ctx, "a", &core.StepResult{Value: "a"}, time.Minute)
	c.Set(ctx, "b", &core.StepResult{Value: "b"}, time.Minute)
	// touching "a" makes "b" the least recently used entry
	_, _ = c.Get(ctx, "a")
	c.Set(ctx, "c", &core.StepResult{Value: "c"}, time.Minute)

	_, aOK := c.Get(ctx, "a")
	_, bOK := c.Get(ctx, "b")
	_, cOK := c.Get(ctx, "c")

	assert.True(t, aOK, "recently touched entry should survive eviction")
	assert.False(t, bOK, "least recently used entry should be evicted")
	assert.True(t, cOK)
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestInMemoryCache_DefaultCapacityAppliedForNonPositiveInput(t *testing.T) {
	c := NewInMemoryCache(0)
	assert.Equal(t, 100000, c.capacity)

	c2 := NewInMemoryCache(-5)
	assert.Equal(t, 100000, c2.capacity)
}
