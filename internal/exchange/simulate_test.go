package exchange

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/tickbot/internal/domain"
	"github.com/vadiminshakov/tickbot/internal/services/stream"
	"github.com/vadiminshakov/tickbot/internal/storage/simstate"
	"go.uber.org/zap"
)

type fixedMarket struct {
	price decimal.Decimal
	step  decimal.Decimal
}

func (m fixedMarket) SubscribeTicker(ctx context.Context, symbol string) (stream.TickStream, error) {
	return newChanStream(1, zap.NewNop()), nil
}

func (m fixedMarket) LotStepSize(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return m.step, nil
}

func (m fixedMarket) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return m.price, nil
}

func TestSimulate_BuySellAndRestore(t *testing.T) {
	dir := t.TempDir()
	store, err := simstate.NewStore(dir, "paper")
	require.NoError(t, err)

	market := fixedMarket{price: decimal.NewFromInt(50000), step: decimal.RequireFromString("0.0001")}
	sim, err := NewSimulate(market, store, zap.NewNop())
	require.NoError(t, err)

	pair := domain.Pair{From: "BTC", To: "USDT"}
	sim.Track(pair)
	ctx := context.Background()

	receipt, err := sim.PlaceMarketOrder(ctx, "BTCUSDT", domain.SideBuy, decimal.RequireFromString("0.1"), "c1")
	require.NoError(t, err)
	assert.Equal(t, "sim-1", receipt.OrderID)
	assert.True(t, receipt.Price.Equal(decimal.NewFromInt(50000)))

	usdt, _ := sim.Balance(ctx, "USDT")
	btc, _ := sim.Balance(ctx, "BTC")
	assert.True(t, usdt.Equal(decimal.NewFromInt(5000)), usdt.String())
	assert.True(t, btc.Equal(decimal.RequireFromString("0.1")), btc.String())

	_, err = sim.PlaceMarketOrder(ctx, "BTCUSDT", domain.SideSell, decimal.RequireFromString("0.05"), "c2")
	require.NoError(t, err)

	restoredStore, err := simstate.NewStore(dir, "paper")
	require.NoError(t, err)
	restored, err := NewSimulate(market, restoredStore, zap.NewNop())
	require.NoError(t, err)
	restored.Track(pair)

	usdt, _ = restored.Balance(ctx, "USDT")
	btc, _ = restored.Balance(ctx, "BTC")
	assert.True(t, usdt.Equal(decimal.NewFromInt(7500)), usdt.String())
	assert.True(t, btc.Equal(decimal.RequireFromString("0.05")), btc.String())
}

func TestSimulate_InsufficientBalance(t *testing.T) {
	sim, err := NewSimulate(fixedMarket{price: decimal.NewFromInt(100)}, nil, zap.NewNop())
	require.NoError(t, err)
	sim.Track(domain.Pair{From: "ETH", To: "USDT"})

	_, err = sim.PlaceMarketOrder(context.Background(), "ETHUSDT", domain.SideSell, decimal.NewFromInt(1), "c")
	assert.Error(t, err)

	_, err = sim.PlaceMarketOrder(context.Background(), "ETHUSDT", domain.SideBuy, decimal.NewFromInt(1000), "c")
	assert.Error(t, err)

	_, err = sim.PlaceMarketOrder(context.Background(), "DOGEUSDT", domain.SideBuy, decimal.NewFromInt(1), "c")
	assert.Error(t, err)
}
