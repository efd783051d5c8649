package pricehistory

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/tickbot/internal/domain"
)

func point(price float64) domain.PricePoint {
	return domain.PricePoint{
		Timestamp: time.Now(),
		Symbol:    "BTCUSDT",
		Price:     decimal.NewFromFloat(price),
	}
}

func TestHistory_RetainsLastWindow(t *testing.T) {
	h := New(3)
	for _, p := range []float64{1, 2, 3, 4, 5} {
		h.Append(point(p))
	}

	assert.Equal(t, 3, h.Len())
	assert.Equal(t, []float64{3, 4, 5}, h.Prices())
	assert.Len(t, h.Log(), 5)
}

func TestHistory_WindowNeverExceedsSize(t *testing.T) {
	h := New(10)
	for i := 1; i <= 100; i++ {
		h.Append(point(float64(i)))
		assert.LessOrEqual(t, h.Len(), 10)
	}

	assert.Equal(t, []float64{91, 92, 93, 94, 95, 96, 97, 98, 99, 100}, h.Prices())
}

func TestHistory_InsufficientData(t *testing.T) {
	h := New(5)
	assert.Zero(t, h.Mean())
	assert.Zero(t, h.StdDev())
	assert.Zero(t, h.Volatility())
	assert.False(t, h.Stable(1))

	h.Append(point(100))
	assert.Zero(t, h.Mean())
	assert.Zero(t, h.StdDev())
	assert.False(t, h.Stable(1))
}

func TestHistory_Statistics(t *testing.T) {
	h := New(8)
	for _, p := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		h.Append(point(p))
	}

	assert.InDelta(t, 5.0, h.Mean(), 1e-9)
	assert.InDelta(t, 2.0, h.StdDev(), 1e-9)
	assert.InDelta(t, 0.4, h.Volatility(), 1e-9)
	assert.True(t, h.Stable(0.5))
	assert.False(t, h.Stable(0.4))
}

func TestHistory_FlatSeriesIsStable(t *testing.T) {
	h := New(5)
	for i := 0; i < 5; i++ {
		h.Append(point(100))
	}

	assert.InDelta(t, 100.0, h.Mean(), 1e-9)
	assert.Zero(t, h.Volatility())
	assert.True(t, h.Stable(0.02))
}

func TestHistory_Seed(t *testing.T) {
	h := New(2)
	h.Seed([]domain.PricePoint{point(1), point(2), point(3)})

	assert.Equal(t, []float64{2, 3}, h.Prices())
}

func TestHistory_Trend(t *testing.T) {
	h := New(3)
	_, ok := h.Trend(5)
	assert.False(t, ok)

	for i := 0; i < 10; i++ {
		h.Append(point(50))
	}

	v, ok := h.Trend(5)
	require.True(t, ok)
	assert.InDelta(t, 50.0, v, 1e-9)
}

func TestHistory_LogSMAOutlivesWindow(t *testing.T) {
	h := New(2)
	_, ok := h.LogSMA(4)
	assert.False(t, ok)

	for _, p := range []float64{10, 20, 30, 40} {
		h.Append(point(p))
	}

	// the window holds only 30 and 40, the log still has every point
	assert.InDelta(t, 35.0, h.Mean(), 1e-9)
	v, ok := h.LogSMA(4)
	require.True(t, ok)
	assert.InDelta(t, 25.0, v, 1e-9)
}
