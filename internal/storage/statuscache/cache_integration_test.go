//go:build integration

package statuscache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/tickbot/internal/domain"
)

func TestCache_PublishAndGet(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR is not set")
	}

	ctx := context.Background()
	cache, err := New(ctx, addr, os.Getenv("REDIS_PASSWORD"), 0, WithPrefix("tickbot:test:"), WithTTL(time.Minute))
	require.NoError(t, err)
	defer cache.Close()
	defer cache.Delete(ctx, "BTCUSDT")

	_, err = cache.Get(ctx, "BTCUSDT")
	require.ErrorIs(t, err, domain.ErrNotFound)

	traded := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, cache.PublishStatus(ctx, domain.BotSnapshot{
		Symbol:        "BTCUSDT",
		Status:        domain.BotRunning,
		State:         domain.StateStreaming,
		User:          "user-1",
		LastTradeTime: &traded,
	}))

	got, err := cache.Get(ctx, "btcusdt")
	require.NoError(t, err)
	assert.Equal(t, domain.BotRunning, got.Status)
	assert.Equal(t, domain.StateStreaming, got.State)
	require.NotNil(t, got.LastTradeTime)
	assert.True(t, got.LastTradeTime.Equal(traded))
}
