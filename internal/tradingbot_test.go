package internal

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/tickbot/internal/domain"
	"github.com/vadiminshakov/tickbot/internal/exchange"
	"github.com/vadiminshakov/tickbot/internal/registry"
	"github.com/vadiminshakov/tickbot/internal/services/executor"
	"github.com/vadiminshakov/tickbot/internal/services/stream"
	"github.com/vadiminshakov/tickbot/internal/storage/simstate"
	"go.uber.org/zap"
)

// idleMarket delivers no ticks at all.
type idleMarket struct{}

type idleStream struct{}

func (idleStream) Next(ctx context.Context, timeout time.Duration) (domain.Tick, error) {
	select {
	case <-ctx.Done():
		return domain.Tick{}, ctx.Err()
	case <-time.After(time.Millisecond):
		return domain.Tick{}, domain.ErrTickTimeout
	}
}

func (idleStream) Close() error { return nil }

func (idleMarket) SubscribeTicker(ctx context.Context, symbol string) (stream.TickStream, error) {
	return idleStream{}, nil
}

func (idleMarket) LotStepSize(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return decimal.RequireFromString("0.001"), nil
}

func (idleMarket) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return decimal.NewFromInt(100), nil
}

type memRecorder struct {
	id     string
	err    error
	orders []domain.OrderRecord
}

func (m *memRecorder) RecordOrder(_ context.Context, order domain.OrderRecord) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.orders = append(m.orders, order)
	return m.id, nil
}

func TestNewExchange_UnsupportedClient(t *testing.T) {
	_, err := NewExchange("not a client", zap.NewNop())
	assert.Error(t, err)
}

func TestTradingBot_FactoryRunsSupervisor(t *testing.T) {
	store, err := simstate.NewStore(t.TempDir(), "test")
	require.NoError(t, err)
	sim, err := exchange.NewSimulate(idleMarket{}, store, zap.NewNop())
	require.NoError(t, err)

	bot, err := NewTradingBot(zap.NewNop(), sim, []executor.OrderRecorder{&memRecorder{id: "1"}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := registry.New(ctx, zap.NewNop(), bot.Factory())
	cfg := domain.NewTradingPairConfig("BTCUSDT", "USDT", "u1")

	_, err = reg.Start(cfg)
	require.NoError(t, err)

	// the paper wallet is funded once the pair is tracked
	balance, err := sim.Balance(ctx, "USDT")
	require.NoError(t, err)
	assert.True(t, balance.Equal(exchange.DefaultSimulateQuoteBalance))

	require.Eventually(t, func() bool {
		s, err := reg.Status("BTCUSDT")
		return err == nil && s.State == domain.StateStreaming
	}, 2*time.Second, 10*time.Millisecond)

	_, err = reg.Stop("BTCUSDT")
	require.NoError(t, err)

	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	require.NoError(t, reg.Wait(waitCtx))

	s, err := reg.Status("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, domain.BotStopped, s.Status)
}

func TestTeeRecorder(t *testing.T) {
	first := &memRecorder{id: "pg-1"}
	second := &memRecorder{id: "7"}

	id, err := teeRecorder{first, second}.RecordOrder(context.Background(), domain.OrderRecord{Symbol: "BTCUSDT"})
	require.NoError(t, err)
	assert.Equal(t, "pg-1", id)
	assert.Len(t, first.orders, 1)
	assert.Len(t, second.orders, 1)

	broken := &memRecorder{err: errors.New("db down")}
	id, err = teeRecorder{broken, second}.RecordOrder(context.Background(), domain.OrderRecord{Symbol: "BTCUSDT"})
	require.Error(t, err)
	assert.Equal(t, "7", id)
	assert.Len(t, second.orders, 2)
}

type mapLoader map[string]domain.TradingPairConfig

func (m mapLoader) LoadConfig(_ context.Context, symbol, user string) (domain.TradingPairConfig, error) {
	cfg, ok := m[symbol]
	if !ok {
		return domain.TradingPairConfig{}, errors.Wrap(domain.ErrNotFound, symbol)
	}
	return cfg, nil
}

type failingLoader struct{}

func (failingLoader) LoadConfig(context.Context, string, string) (domain.TradingPairConfig, error) {
	return domain.TradingPairConfig{}, errors.New("connection refused")
}

func TestConfigChain(t *testing.T) {
	db := mapLoader{"BTCUSDT": domain.NewTradingPairConfig("BTCUSDT", "USDT", "db")}
	file := mapLoader{
		"BTCUSDT": domain.NewTradingPairConfig("BTCUSDT", "USDT", "file"),
		"ETHUSDT": domain.NewTradingPairConfig("ETHUSDT", "USDT", "file"),
	}
	chain := ConfigChain{db, file}
	ctx := context.Background()

	cfg, err := chain.LoadConfig(ctx, "BTCUSDT", "")
	require.NoError(t, err)
	assert.Equal(t, "db", cfg.OwnerUserID)

	cfg, err = chain.LoadConfig(ctx, "ETHUSDT", "")
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.OwnerUserID)

	_, err = chain.LoadConfig(ctx, "SOLUSDT", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = ConfigChain{failingLoader{}, file}.LoadConfig(ctx, "ETHUSDT", "")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}
