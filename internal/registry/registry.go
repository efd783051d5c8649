// Package registry tracks running bots, at most one per symbol.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/tickbot/internal/domain"
	"github.com/vadiminshakov/tickbot/internal/services/stream"
	"go.uber.org/zap"
)

const publishTimeout = 2 * time.Second

// Runner is a started bot task. Run blocks until the bot stops.
type Runner interface {
	Run(ctx context.Context) error
}

// Factory builds the task for one symbol. The task must honor stop and report to observer.
type Factory func(cfg domain.TradingPairConfig, stop *stream.StopSignal, observer stream.Observer) (Runner, error)

// StatusSink mirrors bot snapshots to an external store.
type StatusSink interface {
	PublishStatus(ctx context.Context, snapshot domain.BotSnapshot) error
}

// Registry is the only state shared between symbols. Every method is safe for concurrent use.
type Registry struct {
	ctx     context.Context
	logger  *zap.Logger
	factory Factory
	sink    StatusSink
	now     func() time.Time

	mu   sync.Mutex
	bots map[string]*entry
	wg   sync.WaitGroup
}

type entry struct {
	snapshot domain.BotSnapshot
	stop     *stream.StopSignal
	done     chan struct{}
}

// Option configures the Registry.
type Option func(*Registry)

// WithStatusSink mirrors every status change to sink.
func WithStatusSink(sink StatusSink) Option {
	return func(r *Registry) {
		r.sink = sink
	}
}

// New creates a registry. Bot tasks live until ctx is cancelled or they are stopped.
func New(ctx context.Context, logger *zap.Logger, factory Factory, opts ...Option) *Registry {
	r := &Registry{
		ctx:     ctx,
		logger:  logger,
		factory: factory,
		now:     time.Now,
		bots:    make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Start launches a bot for cfg.Symbol. If a bot for the symbol is already running the
// call returns ErrAlreadyRunning and leaves the running bot untouched.
func (r *Registry) Start(cfg domain.TradingPairConfig) (domain.BotSnapshot, error) {
	cfg.Symbol = normalize(cfg.Symbol)
	if err := cfg.Validate(); err != nil {
		return domain.BotSnapshot{}, err
	}

	r.mu.Lock()
	if e, ok := r.bots[cfg.Symbol]; ok && e.snapshot.Status == domain.BotRunning {
		snapshot := e.snapshot
		r.mu.Unlock()
		return snapshot, errors.Wrapf(domain.ErrAlreadyRunning, "symbol %s", cfg.Symbol)
	}

	e := &entry{
		snapshot: domain.BotSnapshot{
			Symbol:    cfg.Symbol,
			Status:    domain.BotRunning,
			State:     domain.StateConnecting,
			User:      cfg.OwnerUserID,
			StartedAt: r.now().UTC(),
		},
		stop: stream.NewStopSignal(),
		done: make(chan struct{}),
	}

	runner, err := r.factory(cfg, e.stop, &observer{r: r, e: e})
	if err != nil {
		r.mu.Unlock()
		return domain.BotSnapshot{}, errors.Wrapf(err, "create bot for %s", cfg.Symbol)
	}

	r.bots[cfg.Symbol] = e
	r.wg.Add(1)
	snapshot := e.snapshot
	r.mu.Unlock()

	// initial status goes out before the task can report its own
	r.publish(snapshot)
	go r.run(cfg.Symbol, e, runner)

	r.logger.Info("bot started", zap.String("symbol", cfg.Symbol), zap.String("user", cfg.OwnerUserID))

	return snapshot, nil
}

func (r *Registry) run(symbol string, e *entry, runner Runner) {
	defer r.wg.Done()
	defer close(e.done)

	err := r.runSafe(runner)

	r.mu.Lock()
	e.snapshot.Status = domain.BotStopped
	e.snapshot.State = domain.StateStopped
	if err != nil {
		e.snapshot.LastError = err.Error()
	}
	snapshot := e.snapshot
	r.mu.Unlock()

	if err != nil {
		r.logger.Error("bot terminated", zap.String("symbol", symbol), zap.Error(err))
	} else {
		r.logger.Info("bot stopped", zap.String("symbol", symbol))
	}

	r.publish(snapshot)
}

// runSafe keeps a panicking bot from taking the other symbols down.
func (r *Registry) runSafe(runner Runner) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("bot panicked: %v", rec)
		}
	}()

	return runner.Run(r.ctx)
}

// Stop requests the bot for symbol to stop. It does not wait for the task to finish.
func (r *Registry) Stop(symbol string) (domain.BotSnapshot, error) {
	symbol = normalize(symbol)

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.bots[symbol]
	if !ok {
		return domain.BotSnapshot{}, errors.Wrapf(domain.ErrNotFound, "bot for %s", symbol)
	}

	e.stop.Request()
	r.logger.Info("bot stop requested", zap.String("symbol", symbol))

	return e.snapshot, nil
}

// Status returns the snapshot of the bot for symbol.
func (r *Registry) Status(symbol string) (domain.BotSnapshot, error) {
	symbol = normalize(symbol)

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.bots[symbol]
	if !ok {
		return domain.BotSnapshot{}, errors.Wrapf(domain.ErrNotFound, "bot for %s", symbol)
	}

	return e.snapshot, nil
}

// List returns snapshots of all known bots sorted by symbol.
func (r *Registry) List() []domain.BotSnapshot {
	r.mu.Lock()
	out := make([]domain.BotSnapshot, 0, len(r.bots))
	for _, e := range r.bots {
		out = append(out, e.snapshot)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })

	return out
}

// Done returns a channel closed when the current task of symbol has exited.
func (r *Registry) Done(symbol string) (<-chan struct{}, error) {
	symbol = normalize(symbol)

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.bots[symbol]
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "bot for %s", symbol)
	}

	return e.done, nil
}

// StopAll requests stop for every running bot.
func (r *Registry) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.bots {
		e.stop.Request()
	}
}

// Wait blocks until all bot tasks exit or ctx is done.
func (r *Registry) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) publish(snapshot domain.BotSnapshot) {
	if r.sink == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := r.sink.PublishStatus(ctx, snapshot); err != nil {
		r.logger.Warn("failed to publish bot status", zap.String("symbol", snapshot.Symbol), zap.Error(err))
	}
}

// observer writes supervisor updates into the registry entry.
type observer struct {
	r *Registry
	e *entry
}

func (o *observer) OnState(state domain.StreamState, reconnectDelay time.Duration) {
	o.update(func(s *domain.BotSnapshot) {
		s.State = state
		s.ReconnectDelay = reconnectDelay
	})
}

func (o *observer) OnTrade(at time.Time) {
	o.update(func(s *domain.BotSnapshot) {
		t := at
		s.LastTradeTime = &t
	})
}

func (o *observer) OnError(err error) {
	o.update(func(s *domain.BotSnapshot) {
		s.LastError = err.Error()
	})
}

func (o *observer) update(fn func(s *domain.BotSnapshot)) {
	o.r.mu.Lock()
	fn(&o.e.snapshot)
	snapshot := o.e.snapshot
	o.r.mu.Unlock()

	o.r.publish(snapshot)
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
