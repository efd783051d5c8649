// Package stream runs the per-symbol market data loop: connect, receive ticks,
// evaluate signals, place orders and reconnect with backoff on transport failures.
package stream

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/tickbot/internal/domain"
	"github.com/vadiminshakov/tickbot/internal/services/pricehistory"
	"github.com/vadiminshakov/tickbot/internal/services/signal"
	"go.uber.org/zap"
)

const (
	// DefaultTickTimeout bounds a single wait for the next tick.
	DefaultTickTimeout = 10 * time.Second
	// DefaultOrderTimeout bounds a single order placement.
	DefaultOrderTimeout = 15 * time.Second

	// warm start accepts persisted prices younger than this many tick timeouts per window point
	warmStartAgeFactor = 3
)

// TickStream is a live ticker subscription.
type TickStream interface {
	// Next waits up to timeout for the next tick. It returns domain.ErrTickTimeout
	// when nothing arrived and an error wrapping domain.ErrConnection when the
	// transport is broken.
	Next(ctx context.Context, timeout time.Duration) (domain.Tick, error)
	Close() error
}

// Subscriber opens ticker subscriptions.
type Subscriber interface {
	SubscribeTicker(ctx context.Context, symbol string) (TickStream, error)
}

type orderExecutor interface {
	Prepare(ctx context.Context, symbol string) error
	Execute(ctx context.Context, decision domain.TradeDecision, cfg domain.TradingPairConfig, state *domain.BotRunState) (domain.OrderRecord, error)
}

type balanceReader interface {
	Balance(ctx context.Context, asset string) (decimal.Decimal, error)
}

// PriceStore persists observed prices and serves them back for warm start.
type PriceStore interface {
	SavePrice(ctx context.Context, point domain.PricePoint) error
	RecentPrices(ctx context.Context, symbol string, n int) ([]domain.PricePoint, error)
}

// Printer renders human-readable progress lines.
type Printer interface {
	PriceUpdate(point domain.PricePoint, previous float64)
	Signal(symbol string, decision domain.TradeDecision)
	OrderResult(symbol string, side domain.Side, record domain.OrderRecord, err error)
}

// Observer receives state changes of the supervisor, e.g. to expose them in status queries.
type Observer interface {
	OnState(state domain.StreamState, reconnectDelay time.Duration)
	OnTrade(at time.Time)
	OnError(err error)
}

// Supervisor owns the connection lifecycle of one symbol.
// All of its state is confined to the goroutine that calls Run.
type Supervisor struct {
	logger      *zap.Logger
	cfg         domain.TradingPairConfig
	subscriber  Subscriber
	executor    orderExecutor
	balances    balanceReader
	prices      PriceStore
	printer     Printer
	observer    Observer
	stop        *StopSignal
	backoff     *Backoff
	tickTimeout time.Duration
	maxSeedAge  time.Duration
	now         func() time.Time

	history *pricehistory.History
	state   domain.BotRunState
	current domain.StreamState
}

// Option configures the Supervisor.
type Option func(*Supervisor)

// WithBackoff replaces the default 1s..60s reconnect backoff.
func WithBackoff(b *Backoff) Option {
	return func(s *Supervisor) {
		s.backoff = b
	}
}

// WithTickTimeout sets the bounded wait for a single tick.
func WithTickTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		s.tickTimeout = d
	}
}

// WithPriceStore enables warm start and price persistence.
func WithPriceStore(p PriceStore) Option {
	return func(s *Supervisor) {
		s.prices = p
	}
}

// WithWarmStartMaxAge limits warm start to persisted prices not older than d.
// By default the limit is 3 tick timeouts per window point.
func WithWarmStartMaxAge(d time.Duration) Option {
	return func(s *Supervisor) {
		s.maxSeedAge = d
	}
}

// WithPrinter sets the console printer.
func WithPrinter(p Printer) Option {
	return func(s *Supervisor) {
		s.printer = p
	}
}

// WithObserver sets the state observer.
func WithObserver(o Observer) Option {
	return func(s *Supervisor) {
		s.observer = o
	}
}

// WithBalanceReader enables logging the quote balance at start.
func WithBalanceReader(b balanceReader) Option {
	return func(s *Supervisor) {
		s.balances = b
	}
}

// WithClock overrides time source.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) {
		s.now = now
	}
}

// NewSupervisor creates a supervisor for cfg. cfg is expected to be validated.
func NewSupervisor(logger *zap.Logger, cfg domain.TradingPairConfig, subscriber Subscriber, executor orderExecutor, stop *StopSignal, opts ...Option) *Supervisor {
	s := &Supervisor{
		logger:      logger.With(zap.String("symbol", cfg.Symbol)),
		cfg:         cfg,
		subscriber:  subscriber,
		executor:    executor,
		printer:     nopPrinter{},
		observer:    nopObserver{},
		stop:        stop,
		backoff:     NewBackoff(DefaultBackoffBase, DefaultBackoffMax),
		tickTimeout: DefaultTickTimeout,
		now:         time.Now,
		history:     pricehistory.New(cfg.WindowSize),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.state.ReconnectDelay = s.backoff.Current()
	if s.maxSeedAge <= 0 {
		s.maxSeedAge = warmStartAgeFactor * s.tickTimeout * time.Duration(cfg.WindowSize)
	}

	return s
}

// State current state machine state.
func (s *Supervisor) State() domain.StreamState {
	return s.current
}

// RunState snapshot of the per-task state.
func (s *Supervisor) RunState() domain.BotRunState {
	return s.state
}

// History price history of the symbol.
func (s *Supervisor) History() *pricehistory.History {
	return s.history
}

// Run blocks until stop is requested, ctx is cancelled or a fatal error occurs.
// It returns nil on a requested stop and the fatal error otherwise.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.setState(domain.StateStopped)

	if s.cfg.WindowSize < signal.MinPoints {
		s.logger.Warn("window is smaller than the warm-up, no trades will be placed",
			zap.Int("window", s.cfg.WindowSize), zap.Int("min_points", signal.MinPoints))
	}

	s.warmStart(ctx)
	s.logQuoteBalance(ctx)

	for {
		if s.stopped(ctx) {
			s.logger.Info("stop requested, leaving stream loop")
			return nil
		}

		s.setState(domain.StateConnecting)

		err := s.connectAndStream(ctx)
		if err == nil {
			s.logger.Info("stream closed on stop request")
			return nil
		}

		if domain.IsFatal(err) {
			s.logger.Error("fatal error, bot stops", zap.Error(err))
			s.observer.OnError(err)
			return err
		}

		s.observer.OnError(err)
		delay := s.backoff.Next()
		s.state.ReconnectDelay = delay
		s.setState(domain.StateRecoverableError)
		s.logger.Warn("stream failed, reconnecting", zap.Error(err), zap.Duration("delay", delay))

		if !s.wait(ctx, delay) {
			s.logger.Info("stop requested during reconnect backoff")
			return nil
		}
	}
}

func (s *Supervisor) connectAndStream(ctx context.Context) error {
	if err := s.executor.Prepare(ctx, s.cfg.Symbol); err != nil {
		return err
	}

	ts, err := s.subscriber.SubscribeTicker(ctx, s.cfg.Symbol)
	if err != nil {
		if s.stopped(ctx) {
			return nil
		}
		return errors.Wrapf(domain.ErrConnection, "subscribe %s: %v", s.cfg.Symbol, err)
	}
	defer func() {
		if err := ts.Close(); err != nil {
			s.logger.Debug("close ticker stream", zap.Error(err))
		}
	}()

	s.backoff.Reset()
	s.state.ReconnectDelay = s.backoff.Current()
	s.setState(domain.StateStreaming)
	s.logger.Info("connected to ticker stream")

	for {
		if s.stopped(ctx) {
			return nil
		}

		tick, err := ts.Next(ctx, s.tickTimeout)

		if s.stopped(ctx) {
			return nil
		}

		switch {
		case err == nil:
		case errors.Is(err, domain.ErrTickTimeout):
			continue
		case errors.Is(err, domain.ErrMalformedTick):
			s.logger.Warn("malformed tick skipped", zap.Error(err))
			continue
		case errors.Is(err, domain.ErrConnection):
			return err
		default:
			return errors.Wrap(domain.ErrConnection, err.Error())
		}

		if err := s.handleTick(ctx, tick); err != nil {
			return err
		}
	}
}

// handleTick returns only fatal errors.
func (s *Supervisor) handleTick(ctx context.Context, tick domain.Tick) error {
	point, err := tick.PricePoint(s.cfg.Symbol, s.now())
	if err != nil {
		s.logger.Warn("malformed tick skipped", zap.Error(err))
		return nil
	}

	previous := 0.0
	if last, ok := s.history.Last(); ok {
		previous = last.Float()
	}

	s.history.Append(point)
	s.printer.PriceUpdate(point, previous)

	if s.prices != nil {
		if err := s.prices.SavePrice(ctx, point); err != nil {
			s.logger.Warn("failed to save price", zap.Error(err))
		}
	}

	decision := signal.Evaluate(point.Float(), s.history, s.cfg, s.state.LastTradeTime, s.now())
	if !decision.Actionable() {
		s.logger.Debug("no trade",
			zap.String("reason", decision.Reason),
			zap.Float64("price", decision.CurrentPrice),
			zap.Int("window", s.history.Len()),
			zap.Float64("volatility", s.history.Volatility()))
		return nil
	}

	s.printer.Signal(s.cfg.Symbol, decision)
	s.logSignal(decision)

	orderCtx, cancel := context.WithTimeout(ctx, DefaultOrderTimeout)
	defer cancel()

	record, err := s.executor.Execute(orderCtx, decision, s.cfg, &s.state)
	s.printer.OrderResult(s.cfg.Symbol, decision.Side, record, err)
	if err != nil {
		if domain.IsFatal(err) {
			return err
		}
		s.logger.Error("order failed, waiting for next signal", zap.String("side", decision.Side.String()), zap.Error(err))
		s.observer.OnError(err)
		return nil
	}

	s.observer.OnTrade(s.state.LastTradeTime)

	return nil
}

func (s *Supervisor) logSignal(decision domain.TradeDecision) {
	fields := []zap.Field{
		zap.String("side", decision.Side.String()),
		zap.Float64("price", decision.CurrentPrice),
		zap.Float64("avg_price", decision.AveragePrice),
		zap.Float64("percent_change", decision.PercentChange),
	}
	if trend, ok := s.history.Trend(s.cfg.WindowSize); ok {
		fields = append(fields, zap.Float64("ema", trend))
	}
	if sma, ok := s.history.LogSMA(s.history.Len() * 2); ok {
		fields = append(fields, zap.Float64("log_sma", sma))
	}

	s.logger.Info("trade signal", fields...)
}

func (s *Supervisor) warmStart(ctx context.Context) {
	if s.prices == nil {
		return
	}

	points, err := s.prices.RecentPrices(ctx, s.cfg.Symbol, s.cfg.WindowSize)
	if err != nil {
		s.logger.Warn("warm start skipped", zap.Error(err))
		return
	}

	cutoff := s.now().Add(-s.maxSeedAge)
	fresh := points[:0:0]
	for _, p := range points {
		if p.Timestamp.After(cutoff) {
			fresh = append(fresh, p)
		}
	}
	if stale := len(points) - len(fresh); stale > 0 {
		s.logger.Info("stale persisted prices ignored", zap.Int("points", stale), zap.Duration("max_age", s.maxSeedAge))
	}

	s.history.Seed(fresh)
	s.logger.Info("price window restored", zap.Int("points", s.history.Len()))
}

func (s *Supervisor) logQuoteBalance(ctx context.Context) {
	if s.balances == nil {
		return
	}

	balance, err := s.balances.Balance(ctx, s.cfg.QuoteAsset)
	if err != nil {
		s.logger.Warn("failed to get quote balance", zap.String("asset", s.cfg.QuoteAsset), zap.Error(err))
		return
	}

	s.logger.Info("quote balance", zap.String("asset", s.cfg.QuoteAsset), zap.String("balance", balance.String()))
}

func (s *Supervisor) stopped(ctx context.Context) bool {
	return s.stop.Requested() || ctx.Err() != nil
}

// wait sleeps for d and reports false if stop was requested meanwhile.
func (s *Supervisor) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return !s.stopped(ctx)
	case <-s.stop.Done():
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *Supervisor) setState(state domain.StreamState) {
	if s.current == state {
		return
	}

	s.current = state
	s.observer.OnState(state, s.state.ReconnectDelay)
}

type nopPrinter struct{}

func (nopPrinter) PriceUpdate(domain.PricePoint, float64)                     {}
func (nopPrinter) Signal(string, domain.TradeDecision)                        {}
func (nopPrinter) OrderResult(string, domain.Side, domain.OrderRecord, error) {}

type nopObserver struct{}

func (nopObserver) OnState(domain.StreamState, time.Duration) {}
func (nopObserver) OnTrade(time.Time)                         {}
func (nopObserver) OnError(error)                             {}
