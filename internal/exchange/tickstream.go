// Package exchange implements the exchange capability used by the stream supervisor:
// ticker subscription, lot step size, balances and market orders.
package exchange

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/tickbot/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultTickBuffer = 64
	// a warning is logged on the first dropped tick and then every dropLogEvery drops
	dropLogEvery = 100
)

// chanStream adapts a push-based websocket feed to the pull-based TickStream.
// When the consumer falls behind the oldest buffered tick is dropped.
type chanStream struct {
	ticks   chan domain.Tick
	errs    chan error
	logger  *zap.Logger
	dropped atomic.Uint64

	mu      sync.Mutex
	closeFn func()
	closed  bool
}

func newChanStream(buffer int, logger *zap.Logger) *chanStream {
	if buffer < 1 {
		buffer = defaultTickBuffer
	}

	return &chanStream{
		ticks:  make(chan domain.Tick, buffer),
		errs:   make(chan error, 1),
		logger: logger,
	}
}

func (s *chanStream) push(t domain.Tick) {
	select {
	case s.ticks <- t:
		return
	default:
	}

	select {
	case <-s.ticks:
		if n := s.dropped.Add(1); n%dropLogEvery == 1 {
			s.logger.Warn("tick consumer is behind, oldest tick dropped",
				zap.String("symbol", t.Symbol), zap.Uint64("dropped_total", n))
		}
	default:
	}

	select {
	case s.ticks <- t:
	default:
	}
}

// Dropped number of ticks discarded because the consumer fell behind.
func (s *chanStream) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *chanStream) fail(err error) {
	select {
	case s.errs <- err:
	default:
	}
}

func (s *chanStream) onClose(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeFn = fn
}

// Next returns a buffered tick, a transport error or ErrTickTimeout after timeout.
func (s *chanStream) Next(ctx context.Context, timeout time.Duration) (domain.Tick, error) {
	// ticks already received win over a later transport error
	select {
	case t := <-s.ticks:
		return t, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case t := <-s.ticks:
		return t, nil
	case err := <-s.errs:
		return domain.Tick{}, errors.Wrap(domain.ErrConnection, err.Error())
	case <-timer.C:
		return domain.Tick{}, domain.ErrTickTimeout
	case <-ctx.Done():
		return domain.Tick{}, ctx.Err()
	}
}

func (s *chanStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if n := s.dropped.Load(); n > 0 {
		s.logger.Info("ticker stream closed with dropped ticks", zap.Uint64("dropped_total", n))
	}

	if s.closeFn != nil {
		s.closeFn()
	}

	return nil
}

// pollStream turns a REST ticker endpoint into a TickStream.
type pollStream struct {
	fetch    func(ctx context.Context) (domain.Tick, error)
	interval time.Duration
	next     time.Time
	now      func() time.Time
}

func newPollStream(interval time.Duration, fetch func(ctx context.Context) (domain.Tick, error)) *pollStream {
	return &pollStream{fetch: fetch, interval: interval, now: time.Now}
}

func (p *pollStream) Next(ctx context.Context, timeout time.Duration) (domain.Tick, error) {
	wait := p.next.Sub(p.now())
	if wait > timeout {
		if err := sleep(ctx, timeout); err != nil {
			return domain.Tick{}, err
		}
		return domain.Tick{}, domain.ErrTickTimeout
	}

	if err := sleep(ctx, wait); err != nil {
		return domain.Tick{}, err
	}
	p.next = p.now().Add(p.interval)

	tick, err := p.fetch(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedTick) {
			return domain.Tick{}, err
		}
		return domain.Tick{}, errors.Wrap(domain.ErrConnection, err.Error())
	}

	return tick, nil
}

func (p *pollStream) Close() error {
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
