package exchange

import (
	"context"
	"strconv"
	"strings"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/tickbot/internal/domain"
	"github.com/vadiminshakov/tickbot/internal/services/stream"
	"go.uber.org/zap"
)

// binanceInvalidSymbol is returned by the API for unknown symbols.
const binanceInvalidSymbol = -1121

// Binance is the spot exchange capability backed by go-binance.
// Ticks come from the 24h market statistics websocket of the symbol.
type Binance struct {
	client *binance.Client
	logger *zap.Logger
}

// NewBinance wraps a connected client.
func NewBinance(client *binance.Client, logger *zap.Logger) *Binance {
	return &Binance{client: client, logger: logger}
}

// SubscribeTicker opens the market statistics stream of symbol.
func (b *Binance) SubscribeTicker(ctx context.Context, symbol string) (stream.TickStream, error) {
	ts := newChanStream(defaultTickBuffer, b.logger.With(zap.String("symbol", symbol)))

	handler := func(event *binance.WsMarketStatEvent) {
		ts.push(domain.Tick{Symbol: event.Symbol, Price: event.LastPrice, EventTime: event.Time})
	}
	errHandler := func(err error) {
		ts.fail(err)
	}

	doneC, stopC, err := binance.WsMarketStatServe(strings.ToUpper(symbol), handler, errHandler)
	if err != nil {
		return nil, errors.Wrapf(domain.ErrConnection, "binance ticker stream for %s: %v", symbol, err)
	}

	ts.onClose(func() { close(stopC) })

	go func() {
		<-doneC
		ts.fail(errors.New("binance ticker stream closed"))
	}()

	b.logger.Debug("binance ticker stream opened", zap.String("symbol", symbol))

	return ts, nil
}

// LotStepSize returns the LOT_SIZE step of symbol.
func (b *Binance) LotStepSize(ctx context.Context, symbol string) (decimal.Decimal, error) {
	info, err := b.client.NewExchangeInfoService().Symbol(symbol).Do(ctx)
	if err != nil {
		if apiErr, ok := err.(*common.APIError); ok && apiErr.Code == binanceInvalidSymbol {
			return decimal.Zero, errors.Wrapf(domain.ErrConfig, "binance does not list %s", symbol)
		}
		return decimal.Zero, errors.Wrap(err, "failed to get binance exchange info")
	}

	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}

		filter := s.LotSizeFilter()
		if filter == nil {
			return decimal.Zero, errors.Wrapf(domain.ErrInvalidStepSize, "no LOT_SIZE filter for %s", symbol)
		}

		step, err := decimal.NewFromString(filter.StepSize)
		if err != nil {
			return decimal.Zero, errors.Wrapf(domain.ErrInvalidStepSize, "parse step %q: %v", filter.StepSize, err)
		}

		return step, nil
	}

	return decimal.Zero, errors.Wrapf(domain.ErrConfig, "binance does not list %s", symbol)
}

// Balance returns the free spot balance of asset.
func (b *Binance) Balance(ctx context.Context, asset string) (decimal.Decimal, error) {
	account, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to get binance account balance")
	}

	for _, balance := range account.Balances {
		if balance.Asset == asset {
			free, err := decimal.NewFromString(balance.Free)
			if err != nil {
				return decimal.Zero, errors.Wrap(err, "failed to parse balance")
			}
			return free, nil
		}
	}

	return decimal.Zero, nil
}

// PlaceMarketOrder places a spot market order for qty of the base asset.
func (b *Binance) PlaceMarketOrder(ctx context.Context, symbol string, side domain.Side, qty decimal.Decimal, clientOrderID string) (domain.OrderReceipt, error) {
	sideType, err := binanceSide(side)
	if err != nil {
		return domain.OrderReceipt{}, err
	}

	res, err := b.client.NewCreateOrderService().Symbol(symbol).
		Side(sideType).Type(binance.OrderTypeMarket).
		Quantity(qty.String()).
		NewClientOrderID(clientOrderID).
		Do(ctx)
	if err != nil {
		return domain.OrderReceipt{}, errors.Wrapf(err, "failed to create binance %s order", side)
	}

	receipt := domain.OrderReceipt{OrderID: strconv.FormatInt(res.OrderID, 10)}

	executed, err := decimal.NewFromString(res.ExecutedQuantity)
	if err == nil && executed.IsPositive() {
		receipt.Quantity = executed
		if quote, err := decimal.NewFromString(res.CummulativeQuoteQuantity); err == nil {
			receipt.Price = quote.Div(executed)
		}
	}

	return receipt, nil
}

// LastPrice returns the latest traded price from the public REST API.
func (b *Binance) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	prices, err := b.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "failed to get binance price for %s", symbol)
	}
	if len(prices) == 0 {
		return decimal.Zero, errors.Errorf("binance API returned empty prices for %s", symbol)
	}

	return decimal.NewFromString(prices[0].Price)
}

func binanceSide(side domain.Side) (binance.SideType, error) {
	switch side {
	case domain.SideBuy:
		return binance.SideTypeBuy, nil
	case domain.SideSell:
		return binance.SideTypeSell, nil
	default:
		return "", errors.Errorf("unsupported side %s", side)
	}
}
