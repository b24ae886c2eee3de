package stock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *ConsolidationCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewConsolidationCache(client, time.Minute)
}

func TestConsolidationCacheRoundTrip(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	want := Consolidation{
		Summary: []SummaryRow{{WoodTypeID: 1, Thickness: 25, Totals: BucketTotals{NotDried: 10, Total: 10, Available: 10}}},
	}
	require.NoError(t, cache.Set(ctx, want))

	got, ok, err := cache.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, want.Summary, got.Summary)

	require.NoError(t, cache.Invalidate(ctx))
	_, ok, err = cache.Get(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestConsolidationCacheNilClient(t *testing.T) {
	var cache *ConsolidationCache
	ctx := context.Background()

	_, ok, err := cache.Get(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, cache.Set(ctx, Consolidation{}))
	require.NoError(t, cache.Invalidate(ctx))
}
