package exchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/tickbot/internal/domain"
	"github.com/vadiminshakov/tickbot/internal/services/stream"
	"github.com/vadiminshakov/tickbot/internal/storage/simstate"
	"go.uber.org/zap"
)

// DefaultSimulateQuoteBalance initial quote balance of a fresh paper wallet.
var DefaultSimulateQuoteBalance = decimal.NewFromInt(10000)

// MarketData is the public, unauthenticated part of an exchange.
type MarketData interface {
	SubscribeTicker(ctx context.Context, symbol string) (stream.TickStream, error)
	LotStepSize(ctx context.Context, symbol string) (decimal.Decimal, error)
	LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Simulate is a paper exchange: real market data, local fills, persisted wallet.
type Simulate struct {
	mu     sync.Mutex
	market MarketData
	logger *zap.Logger
	store  *simstate.Store
	wallet map[string]decimal.Decimal
	pairs  map[string]domain.Pair
	orders int64
}

// NewSimulate creates a paper exchange. The wallet is restored from store when present.
func NewSimulate(market MarketData, store *simstate.Store, logger *zap.Logger) (*Simulate, error) {
	if market == nil {
		return nil, errors.New("market data is required for simulate exchange")
	}

	s := &Simulate{
		market: market,
		logger: logger,
		store:  store,
		wallet: make(map[string]decimal.Decimal),
		pairs:  make(map[string]domain.Pair),
	}

	if store != nil {
		state, err := store.Load()
		if err != nil {
			logger.Warn("failed to restore simulate state", zap.Error(err))
		} else if state != nil {
			balances, err := state.Balances()
			if err != nil {
				return nil, err
			}
			s.wallet = balances
			s.orders = state.Orders
		}
	}

	return s, nil
}

// Track registers pair so orders on its symbol can be settled. A quote asset
// seen for the first time is funded with DefaultSimulateQuoteBalance.
func (s *Simulate) Track(pair domain.Pair) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pairs[pair.Symbol()] = pair
	if _, ok := s.wallet[pair.To]; !ok {
		s.wallet[pair.To] = DefaultSimulateQuoteBalance
	}
	if _, ok := s.wallet[pair.From]; !ok {
		s.wallet[pair.From] = decimal.Zero
	}

	s.logger.Info("simulate pair tracked",
		zap.String("pair", pair.String()),
		zap.String("base", s.wallet[pair.From].String()),
		zap.String("quote", s.wallet[pair.To].String()))
}

// SubscribeTicker streams real market prices.
func (s *Simulate) SubscribeTicker(ctx context.Context, symbol string) (stream.TickStream, error) {
	return s.market.SubscribeTicker(ctx, symbol)
}

// LotStepSize uses the real exchange filters so paper quantities stay realistic.
func (s *Simulate) LotStepSize(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return s.market.LotStepSize(ctx, symbol)
}

// Balance returns the paper balance of asset.
func (s *Simulate) Balance(ctx context.Context, asset string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wallet[asset], nil
}

// PlaceMarketOrder fills qty at the current market price.
func (s *Simulate) PlaceMarketOrder(ctx context.Context, symbol string, side domain.Side, qty decimal.Decimal, clientOrderID string) (domain.OrderReceipt, error) {
	if !qty.IsPositive() {
		return domain.OrderReceipt{}, errors.Errorf("order amount must be positive, got %s", qty)
	}

	s.mu.Lock()
	pair, ok := s.pairs[symbol]
	s.mu.Unlock()
	if !ok {
		return domain.OrderReceipt{}, errors.Errorf("pair for %s is not tracked", symbol)
	}

	price, err := s.market.LastPrice(ctx, symbol)
	if err != nil {
		return domain.OrderReceipt{}, errors.Wrap(err, "failed to get price for simulated order")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	notional := qty.Mul(price)

	switch side {
	case domain.SideBuy:
		if s.wallet[pair.To].LessThan(notional) {
			return domain.OrderReceipt{}, errors.Errorf("insufficient %s balance: have %s need %s",
				pair.To, s.wallet[pair.To], notional)
		}
		s.wallet[pair.To] = s.wallet[pair.To].Sub(notional)
		s.wallet[pair.From] = s.wallet[pair.From].Add(qty)
	case domain.SideSell:
		if s.wallet[pair.From].LessThan(qty) {
			return domain.OrderReceipt{}, errors.Errorf("insufficient %s balance: have %s need %s",
				pair.From, s.wallet[pair.From], qty)
		}
		s.wallet[pair.From] = s.wallet[pair.From].Sub(qty)
		s.wallet[pair.To] = s.wallet[pair.To].Add(notional)
	default:
		return domain.OrderReceipt{}, errors.Errorf("unsupported side %s", side)
	}

	s.orders++
	s.persist()

	s.logger.Info("simulated order executed",
		zap.String("id", clientOrderID),
		zap.String("side", side.String()),
		zap.String("amount", qty.String()),
		zap.String("price", price.String()))

	return domain.OrderReceipt{
		OrderID:  fmt.Sprintf("sim-%d", s.orders),
		Quantity: qty,
		Price:    price,
	}, nil
}

func (s *Simulate) persist() {
	if s.store == nil {
		return
	}

	if err := s.store.Save(simstate.NewState(s.wallet, s.orders)); err != nil {
		s.logger.Warn("failed to persist simulate state", zap.Error(err))
	}
}
