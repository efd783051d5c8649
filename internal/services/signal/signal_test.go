package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vadiminshakov/tickbot/internal/domain"
)

type fakeWindow struct {
	n          int
	mean       float64
	volatility float64
}

func (w fakeWindow) Len() int            { return w.n }
func (w fakeWindow) Mean() float64       { return w.mean }
func (w fakeWindow) Volatility() float64 { return w.volatility }

func testConfig() domain.TradingPairConfig {
	return domain.NewTradingPairConfig("BTCUSDT", "USDT", "user-1")
}

func TestEvaluate_Thresholds(t *testing.T) {
	cfg := testConfig()
	window := fakeWindow{n: 10, mean: 100, volatility: 0.001}
	now := time.Now()

	tests := []struct {
		name    string
		price   float64
		want    domain.Side
		percent float64
	}{
		{name: "below buy threshold", price: 97, want: domain.SideBuy, percent: 3},
		{name: "above sell threshold", price: 103, want: domain.SideSell, percent: 3},
		{name: "at average", price: 100, want: domain.SideNone, percent: 0},
		{name: "inside buy band", price: 98.5, want: domain.SideNone, percent: 1.5},
		{name: "inside sell band", price: 101.5, want: domain.SideNone, percent: 1.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.price, window, cfg, time.Time{}, now)
			assert.Equal(t, tt.want, got.Side)
			assert.InDelta(t, 100.0, got.AveragePrice, 1e-9)
			assert.InDelta(t, tt.percent, got.PercentChange, 1e-9)
		})
	}
}

func TestEvaluate_Cooldown(t *testing.T) {
	cfg := testConfig()
	cfg.CooldownSeconds = 300
	window := fakeWindow{n: 10, mean: 100, volatility: 0.001}
	now := time.Now()

	got := Evaluate(97, window, cfg, now.Add(-299*time.Second), now)
	assert.Equal(t, domain.SideNone, got.Side)
	assert.Equal(t, ReasonCooldown, got.Reason)

	got = Evaluate(97, window, cfg, now.Add(-301*time.Second), now)
	assert.Equal(t, domain.SideBuy, got.Side)
}

func TestEvaluate_WarmUp(t *testing.T) {
	got := Evaluate(50, fakeWindow{n: 4, mean: 100}, testConfig(), time.Time{}, time.Now())
	assert.Equal(t, domain.SideNone, got.Side)
	assert.Equal(t, ReasonWarmUp, got.Reason)
}

func TestEvaluate_StabilityGate(t *testing.T) {
	cfg := testConfig()
	cfg.MaxVolatility = 0.02

	got := Evaluate(50, fakeWindow{n: 10, mean: 100, volatility: 0.05}, cfg, time.Time{}, time.Now())
	assert.Equal(t, domain.SideNone, got.Side)
	assert.Equal(t, ReasonVolatile, got.Reason)

	got = Evaluate(50, fakeWindow{n: 10, mean: 100, volatility: 0.02}, cfg, time.Time{}, time.Now())
	assert.Equal(t, ReasonVolatile, got.Reason)
}

func TestEvaluate_BuyWinsOnOverlappingThresholds(t *testing.T) {
	cfg := testConfig()
	cfg.BuyThreshold = 1.05
	cfg.SellThreshold = 0.95

	got := Evaluate(100, fakeWindow{n: 10, mean: 100, volatility: 0.001}, cfg, time.Time{}, time.Now())
	assert.Equal(t, domain.SideBuy, got.Side)
}
