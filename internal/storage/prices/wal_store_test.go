package prices

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/tickbot/internal/domain"
)

func TestWALStore_RecentPricesOldestFirst(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 1; i <= 7; i++ {
		require.NoError(t, store.SavePrice(ctx, domain.PricePoint{
			Symbol:    "BTCUSDT",
			Price:     decimal.NewFromInt(int64(100 + i)),
			Timestamp: start.Add(time.Duration(i) * time.Second),
		}))
		require.NoError(t, store.SavePrice(ctx, domain.PricePoint{
			Symbol:    "ETHUSDT",
			Price:     decimal.NewFromInt(int64(10 + i)),
			Timestamp: start.Add(time.Duration(i) * time.Second),
		}))
	}

	points, err := store.RecentPrices(ctx, "BTCUSDT", 3)
	require.NoError(t, err)
	require.Len(t, points, 3)

	got := make([]int64, 0, len(points))
	for _, p := range points {
		got = append(got, p.Price.IntPart())
		assert.Equal(t, "BTCUSDT", p.Symbol)
	}
	assert.Equal(t, []int64{105, 106, 107}, got)
	assert.True(t, points[2].Timestamp.Equal(start.Add(7*time.Second)))
}

func TestWALStore_RecentPricesFewerThanRequested(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.SavePrice(ctx, domain.PricePoint{Symbol: "BTCUSDT", Price: decimal.NewFromInt(1), Timestamp: time.Now()}))

	points, err := store.RecentPrices(ctx, "BTCUSDT", 10)
	require.NoError(t, err)
	assert.Len(t, points, 1)

	empty, err := store.RecentPrices(ctx, "SOLUSDT", 10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	none, err := store.RecentPrices(ctx, "BTCUSDT", 0)
	require.NoError(t, err)
	assert.Nil(t, none)
}
