package exchange

import (
	"context"
	"time"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/tickbot/internal/domain"
	"github.com/vadiminshakov/tickbot/internal/services/stream"
	"go.uber.org/zap"
)

// DefaultBybitPollInterval spacing between two ticker requests.
const DefaultBybitPollInterval = 2 * time.Second

// Bybit is the spot exchange capability backed by the Bybit V5 REST API.
// Ticks are produced by polling the tickers endpoint.
type Bybit struct {
	client       *bybit.Client
	logger       *zap.Logger
	pollInterval time.Duration
}

// NewBybit wraps a connected client.
func NewBybit(client *bybit.Client, logger *zap.Logger, pollInterval time.Duration) *Bybit {
	if pollInterval <= 0 {
		pollInterval = DefaultBybitPollInterval
	}

	return &Bybit{client: client, logger: logger, pollInterval: pollInterval}
}

// SubscribeTicker starts polling the spot ticker of symbol.
func (b *Bybit) SubscribeTicker(ctx context.Context, symbol string) (stream.TickStream, error) {
	if _, err := b.ticker(symbol); err != nil {
		return nil, errors.Wrapf(domain.ErrConnection, "bybit ticker for %s: %v", symbol, err)
	}

	return newPollStream(b.pollInterval, func(ctx context.Context) (domain.Tick, error) {
		return b.ticker(symbol)
	}), nil
}

func (b *Bybit) ticker(symbol string) (domain.Tick, error) {
	sym := bybit.SymbolV5(symbol)

	result, err := b.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
		Category: bybit.CategoryV5Spot,
		Symbol:   &sym,
	})
	if err != nil {
		return domain.Tick{}, err
	}

	if len(result.Result.Spot.List) == 0 {
		return domain.Tick{}, errors.Wrapf(domain.ErrMalformedTick, "bybit API returned empty tickers for %s", symbol)
	}

	return domain.Tick{Symbol: symbol, Price: result.Result.Spot.List[0].LastPrice, EventTime: time.Now().UnixMilli()}, nil
}

// LotStepSize returns the base precision of symbol, the spot quantity step on Bybit.
func (b *Bybit) LotStepSize(ctx context.Context, symbol string) (decimal.Decimal, error) {
	sym := bybit.SymbolV5(symbol)

	res, err := b.client.V5().Market().GetInstrumentsInfo(bybit.V5GetInstrumentsInfoParam{
		Category: bybit.CategoryV5Spot,
		Symbol:   &sym,
	})
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to get bybit instruments info")
	}

	if res.Result.Spot == nil || len(res.Result.Spot.List) == 0 {
		return decimal.Zero, errors.Wrapf(domain.ErrConfig, "bybit does not list %s", symbol)
	}

	precision := res.Result.Spot.List[0].LotSizeFilter.BasePrecision
	step, err := decimal.NewFromString(precision)
	if err != nil {
		return decimal.Zero, errors.Wrapf(domain.ErrInvalidStepSize, "parse base precision %q: %v", precision, err)
	}

	return step, nil
}

// Balance returns the available balance of asset in the unified account, locked funds excluded.
func (b *Bybit) Balance(ctx context.Context, asset string) (decimal.Decimal, error) {
	res, err := b.client.V5().Account().GetWalletBalance(bybit.AccountTypeV5("UNIFIED"), nil)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to get bybit wallet balance")
	}
	if len(res.Result.List) == 0 {
		return decimal.Zero, nil
	}

	for _, coin := range res.Result.List[0].Coin {
		if string(coin.Coin) != asset {
			continue
		}

		balance, err := availableBalance(coin)
		if err != nil {
			return decimal.Zero, errors.Wrapf(err, "failed to parse %s balance", asset)
		}
		return balance, nil
	}

	return decimal.Zero, nil
}

// PlaceMarketOrder places a spot market order.
func (b *Bybit) PlaceMarketOrder(ctx context.Context, symbol string, side domain.Side, qty decimal.Decimal, clientOrderID string) (domain.OrderReceipt, error) {
	param, err := marketOrderParam(symbol, side, qty, clientOrderID)
	if err != nil {
		return domain.OrderReceipt{}, err
	}

	res, err := b.client.V5().Order().CreateOrder(param)
	if err != nil {
		return domain.OrderReceipt{}, errors.Wrapf(err, "failed to create bybit %s order", side)
	}

	b.logger.Debug("bybit order placed", zap.String("order_id", res.Result.OrderID), zap.String("client_order_id", clientOrderID))

	return domain.OrderReceipt{OrderID: res.Result.OrderID}, nil
}

// marketOrderParam builds a spot market order with qty in base coin units for both sides.
func marketOrderParam(symbol string, side domain.Side, qty decimal.Decimal, clientOrderID string) (bybit.V5CreateOrderParam, error) {
	var bybitSide bybit.Side
	switch side {
	case domain.SideBuy:
		bybitSide = bybit.SideBuy
	case domain.SideSell:
		bybitSide = bybit.SideSell
	default:
		return bybit.V5CreateOrderParam{}, errors.Errorf("unsupported side %s", side)
	}

	unit := bybit.MarketUnitBaseCoin
	param := bybit.V5CreateOrderParam{
		Category:   bybit.CategoryV5Spot,
		Symbol:     bybit.SymbolV5(symbol),
		Side:       bybitSide,
		OrderType:  bybit.OrderTypeMarket,
		Qty:        qty.String(),
		MarketUnit: &unit,
	}
	if clientOrderID != "" {
		param.OrderLinkID = &clientOrderID
	}

	return param, nil
}

func availableBalance(coin bybit.V5WalletBalanceCoin) (decimal.Decimal, error) {
	total, err := decimal.NewFromString(coin.WalletBalance)
	if err != nil {
		return decimal.Zero, err
	}
	if coin.Locked == "" {
		return total, nil
	}

	locked, err := decimal.NewFromString(coin.Locked)
	if err != nil {
		return decimal.Zero, err
	}

	return decimal.Max(total.Sub(locked), decimal.Zero), nil
}
