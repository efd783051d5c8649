// Package internal wires exchanges, storage and the streaming engine into bot tasks.
package internal

import (
	"context"
	"fmt"

	binance "github.com/adshao/go-binance/v2"
	bybit "github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tickbot/internal/domain"
	"github.com/vadiminshakov/tickbot/internal/exchange"
	"github.com/vadiminshakov/tickbot/internal/registry"
	"github.com/vadiminshakov/tickbot/internal/services/executor"
	"github.com/vadiminshakov/tickbot/internal/services/stream"
)

// ExchangeService is everything a bot needs from an exchange.
type ExchangeService interface {
	stream.Subscriber
	executor.Exchange
}

type pairTracker interface {
	Track(pair domain.Pair)
}

// NewExchange returns the exchange implementation for an API client.
// This is the single point of truth for dispatching to platform-specific implementations.
func NewExchange(client any, logger *zap.Logger) (ExchangeService, error) {
	switch c := client.(type) {
	case *binance.Client:
		return exchange.NewBinance(c, logger), nil
	case *bybit.Client:
		return exchange.NewBybit(c, logger, exchange.DefaultBybitPollInterval), nil
	case *exchange.Simulate:
		return c, nil
	case ExchangeService:
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported client type: %T", client)
	}
}

// TradingBot builds bot tasks for the registry.
type TradingBot struct {
	logger   *zap.Logger
	exchange ExchangeService
	recorder executor.OrderRecorder
	prices   stream.PriceStore
	printer  stream.Printer
	opts     []stream.Option
}

// BotOption configures the TradingBot.
type BotOption func(*TradingBot)

// WithPriceStore enables price persistence and warm start.
func WithPriceStore(p stream.PriceStore) BotOption {
	return func(b *TradingBot) {
		b.prices = p
	}
}

// WithPrinter sets the console printer of every bot.
func WithPrinter(p stream.Printer) BotOption {
	return func(b *TradingBot) {
		b.printer = p
	}
}

// WithSupervisorOptions appends options to every supervisor, e.g. a custom backoff.
func WithSupervisorOptions(opts ...stream.Option) BotOption {
	return func(b *TradingBot) {
		b.opts = append(b.opts, opts...)
	}
}

// NewTradingBot creates the bot builder for client. Orders are recorded by every recorder.
func NewTradingBot(logger *zap.Logger, client any, recorders []executor.OrderRecorder, opts ...BotOption) (*TradingBot, error) {
	ex, err := NewExchange(client, logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create exchange")
	}
	if len(recorders) == 0 {
		return nil, errors.New("at least one order recorder is required")
	}

	b := &TradingBot{
		logger:   logger,
		exchange: ex,
		recorder: teeRecorder(recorders),
	}
	for _, opt := range opts {
		opt(b)
	}

	return b, nil
}

// Factory returns the registry factory building one supervisor per symbol.
func (b *TradingBot) Factory() registry.Factory {
	return func(cfg domain.TradingPairConfig, stop *stream.StopSignal, observer stream.Observer) (registry.Runner, error) {
		pair, err := cfg.Pair()
		if err != nil {
			return nil, errors.Wrap(domain.ErrConfig, err.Error())
		}

		if tracker, ok := b.exchange.(pairTracker); ok {
			tracker.Track(pair)
		}

		botLogger := b.logger.With(zap.String("user", cfg.OwnerUserID))
		exec := executor.New(botLogger, b.exchange, b.recorder)

		opts := []stream.Option{
			stream.WithObserver(observer),
			stream.WithBalanceReader(b.exchange),
		}
		if b.prices != nil {
			opts = append(opts, stream.WithPriceStore(b.prices))
		}
		if b.printer != nil {
			opts = append(opts, stream.WithPrinter(b.printer))
		}
		opts = append(opts, b.opts...)

		return stream.NewSupervisor(botLogger, cfg, b.exchange, exec, stop, opts...), nil
	}
}

// teeRecorder writes an order to every recorder. The id of the first recorder is returned.
type teeRecorder []executor.OrderRecorder

func (t teeRecorder) RecordOrder(ctx context.Context, order domain.OrderRecord) (string, error) {
	var (
		id   string
		errs []error
	)
	for i, r := range t {
		rid, err := r.RecordOrder(ctx, order)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if i == 0 || id == "" {
			id = rid
		}
	}

	if len(errs) > 0 {
		return id, errors.Wrapf(errs[0], "%d of %d order recorders failed", len(errs), len(t))
	}

	return id, nil
}

// ConfigChain asks each loader in turn and returns the first configuration found.
type ConfigChain []interface {
	LoadConfig(ctx context.Context, symbol, user string) (domain.TradingPairConfig, error)
}

// LoadConfig implements the loader interface over the chain.
func (c ConfigChain) LoadConfig(ctx context.Context, symbol, user string) (domain.TradingPairConfig, error) {
	for _, l := range c {
		cfg, err := l.LoadConfig(ctx, symbol, user)
		if err == nil {
			return cfg, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.TradingPairConfig{}, err
		}
	}

	return domain.TradingPairConfig{}, errors.Wrapf(domain.ErrNotFound, "trading pair %s for user %q", symbol, user)
}
