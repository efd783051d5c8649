// Package executor turns trade decisions into exchange orders and order records.
package executor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/tickbot/internal/domain"
	"github.com/vadiminshakov/tickbot/internal/services/quantity"
	"go.uber.org/zap"
)

// Exchange is the subset of the exchange capability the executor needs.
type Exchange interface {
	LotStepSize(ctx context.Context, symbol string) (decimal.Decimal, error)
	Balance(ctx context.Context, asset string) (decimal.Decimal, error)
	PlaceMarketOrder(ctx context.Context, symbol string, side domain.Side, qty decimal.Decimal, clientOrderID string) (domain.OrderReceipt, error)
}

// OrderRecorder persists executed orders.
type OrderRecorder interface {
	RecordOrder(ctx context.Context, order domain.OrderRecord) (string, error)
}

// Executor places at most one order per call and arms the cooldown on success.
// Orders are fire-once: a failed order is never retried.
type Executor struct {
	logger   *zap.Logger
	exchange Exchange
	recorder OrderRecorder
	stepSize decimal.Decimal
	now      func() time.Time
}

// Option configures the Executor.
type Option func(*Executor)

// WithClock overrides time source.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

// New creates an executor bound to one exchange and one recorder.
func New(logger *zap.Logger, exchange Exchange, recorder OrderRecorder, opts ...Option) *Executor {
	e := &Executor{
		logger:   logger,
		exchange: exchange,
		recorder: recorder,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Prepare fetches and validates the lot step size of symbol once.
// A non-positive step size is ErrInvalidStepSize.
func (e *Executor) Prepare(ctx context.Context, symbol string) error {
	if e.stepSize.IsPositive() {
		return nil
	}

	step, err := e.exchange.LotStepSize(ctx, symbol)
	if err != nil {
		if domain.IsFatal(err) {
			return err
		}
		return errors.Wrapf(domain.ErrConnection, "get lot step size for %s: %v", symbol, err)
	}
	if !step.IsPositive() {
		return errors.Wrapf(domain.ErrInvalidStepSize, "exchange reported step %s for %s", step, symbol)
	}

	e.stepSize = step

	return nil
}

// Execute places a market order for an actionable decision and records it.
// On exchange failure nothing is persisted and state is left untouched; the returned
// error wraps domain.ErrOrder. A failure to persist after a successful fill is only
// logged since the position on the exchange has already changed.
func (e *Executor) Execute(ctx context.Context, decision domain.TradeDecision, cfg domain.TradingPairConfig, state *domain.BotRunState) (domain.OrderRecord, error) {
	if !decision.Actionable() {
		return domain.OrderRecord{}, errors.Wrap(domain.ErrOrder, "decision is not actionable")
	}

	if err := e.Prepare(ctx, cfg.Symbol); err != nil {
		return domain.OrderRecord{}, err
	}

	qty, err := e.quantityFor(ctx, decision, cfg)
	if err != nil {
		return domain.OrderRecord{}, err
	}

	clientOrderID := uuid.New().String()
	logger := e.logger.With(
		zap.String("symbol", cfg.Symbol),
		zap.String("side", decision.Side.String()),
		zap.String("quantity", qty.String()),
		zap.String("client_order_id", clientOrderID),
	)

	receipt, err := e.exchange.PlaceMarketOrder(ctx, cfg.Symbol, decision.Side, qty, clientOrderID)
	if err != nil {
		logger.Error("market order failed", zap.Error(err))
		return domain.OrderRecord{}, errors.Wrapf(domain.ErrOrder, "place %s %s %s: %v", decision.Side, qty, cfg.Symbol, err)
	}

	now := e.now()
	state.LastTradeTime = now

	filled := qty
	if receipt.Quantity.IsPositive() {
		filled = receipt.Quantity
	}

	record := domain.OrderRecord{
		ID:              clientOrderID,
		Symbol:          cfg.Symbol,
		Side:            decision.Side.String(),
		Price:           decimal.NewFromFloat(decision.CurrentPrice),
		AvgPrice:        decimal.NewFromFloat(decision.AveragePrice),
		Quantity:        filled,
		PercentChange:   decision.PercentChange,
		Threshold:       cfg.ThresholdFor(decision.Side),
		Timestamp:       now.UTC(),
		User:            cfg.OwnerUserID,
		Result:          domain.OrderResultSuccess,
		ExchangeOrderID: receipt.OrderID,
	}

	if e.recorder != nil {
		id, err := e.recorder.RecordOrder(ctx, record)
		if err != nil {
			logger.Error("order executed but not recorded", zap.Error(err))
			return record, nil
		}
		if id != "" {
			record.ID = id
		}
	}

	logger.Info("order executed",
		zap.String("exchange_order_id", receipt.OrderID),
		zap.Float64("price", decision.CurrentPrice),
		zap.Float64("avg_price", decision.AveragePrice))

	return record, nil
}

func (e *Executor) quantityFor(ctx context.Context, decision domain.TradeDecision, cfg domain.TradingPairConfig) (decimal.Decimal, error) {
	pair, err := cfg.Pair()
	if err != nil {
		return decimal.Zero, errors.Wrap(domain.ErrConfig, err.Error())
	}

	asset := pair.To
	if decision.Side == domain.SideSell {
		asset = pair.From
	}

	balance, err := e.exchange.Balance(ctx, asset)
	if err != nil {
		return decimal.Zero, errors.Wrapf(domain.ErrOrder, "get %s balance: %v", asset, err)
	}

	raw, err := quantity.Allocate(decision.Side, balance, cfg.AllocationPercent, decimal.NewFromFloat(decision.CurrentPrice))
	if err != nil {
		return decimal.Zero, errors.Wrap(domain.ErrOrder, err.Error())
	}

	qty, err := quantity.Round(quantity.Cap(raw, cfg.QuantityHint), e.stepSize)
	if err != nil {
		return decimal.Zero, err
	}
	if !qty.IsPositive() {
		return decimal.Zero, errors.Wrapf(domain.ErrOrder, "%s balance %s too small for one lot of %s", asset, balance, e.stepSize)
	}

	return qty, nil
}
