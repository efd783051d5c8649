package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/tickbot/internal/domain"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// scriptedStream replays ticks, then calls onDrain and reports timeouts.
type scriptedStream struct {
	ticks   []domain.Tick
	errs    []error
	pos     int
	onDrain func()
	closed  bool
}

func (s *scriptedStream) Next(ctx context.Context, timeout time.Duration) (domain.Tick, error) {
	if err := ctx.Err(); err != nil {
		return domain.Tick{}, err
	}
	if s.pos < len(s.ticks) {
		i := s.pos
		s.pos++
		if i < len(s.errs) && s.errs[i] != nil {
			return domain.Tick{}, s.errs[i]
		}
		return s.ticks[i], nil
	}
	if s.onDrain != nil {
		s.onDrain()
	}
	return domain.Tick{}, domain.ErrTickTimeout
}

func (s *scriptedStream) Close() error {
	s.closed = true
	return nil
}

type fakeSubscriber struct {
	failures int
	calls    int
	streams  []*scriptedStream
}

func (f *fakeSubscriber) SubscribeTicker(ctx context.Context, symbol string) (TickStream, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("dial tcp: connection refused")
	}
	idx := f.calls - f.failures - 1
	if idx >= len(f.streams) {
		idx = len(f.streams) - 1
	}
	return f.streams[idx], nil
}

type fakeExecutor struct {
	prepareErr error
	executeErr error
	decisions  []domain.TradeDecision
	now        time.Time
}

func (f *fakeExecutor) Prepare(ctx context.Context, symbol string) error {
	return f.prepareErr
}

func (f *fakeExecutor) Execute(ctx context.Context, decision domain.TradeDecision, cfg domain.TradingPairConfig, state *domain.BotRunState) (domain.OrderRecord, error) {
	f.decisions = append(f.decisions, decision)
	if f.executeErr != nil {
		return domain.OrderRecord{}, f.executeErr
	}
	state.LastTradeTime = f.now
	return domain.OrderRecord{Symbol: cfg.Symbol, Side: decision.Side.String(), Result: domain.OrderResultSuccess}, nil
}

type recordingObserver struct {
	states []domain.StreamState
	delays []time.Duration
	trades []time.Time
	errs   []error
}

func (o *recordingObserver) OnState(state domain.StreamState, delay time.Duration) {
	o.states = append(o.states, state)
	if state == domain.StateRecoverableError {
		o.delays = append(o.delays, delay)
	}
}

func (o *recordingObserver) OnTrade(at time.Time) { o.trades = append(o.trades, at) }
func (o *recordingObserver) OnError(err error)    { o.errs = append(o.errs, err) }

type memoryPrices struct {
	saved  []domain.PricePoint
	recent []domain.PricePoint
}

func (m *memoryPrices) SavePrice(ctx context.Context, point domain.PricePoint) error {
	m.saved = append(m.saved, point)
	return nil
}

func (m *memoryPrices) RecentPrices(ctx context.Context, symbol string, n int) ([]domain.PricePoint, error) {
	return m.recent, nil
}

func ticks(prices ...string) []domain.Tick {
	out := make([]domain.Tick, 0, len(prices))
	for _, p := range prices {
		out = append(out, domain.Tick{Symbol: "BTCUSDT", Price: p})
	}
	return out
}

func testConfig() domain.TradingPairConfig {
	return domain.NewTradingPairConfig("BTCUSDT", "USDT", "user-1")
}

func TestSupervisor_BuyThenCooldown(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	stop := NewStopSignal()
	stream := &scriptedStream{ticks: ticks("100", "100", "100", "100", "100", "97", "97"), onDrain: stop.Request}
	sub := &fakeSubscriber{streams: []*scriptedStream{stream}}
	exec := &fakeExecutor{now: now}
	obs := &recordingObserver{}

	s := NewSupervisor(zap.NewNop(), testConfig(), sub, exec, stop,
		WithObserver(obs), WithClock(func() time.Time { return now }))

	require.NoError(t, s.Run(context.Background()))

	require.Len(t, exec.decisions, 1)
	assert.Equal(t, domain.SideBuy, exec.decisions[0].Side)
	assert.Equal(t, []time.Time{now}, obs.trades)
	assert.Equal(t, now, s.RunState().LastTradeTime)
	assert.Equal(t, domain.StateStopped, s.State())
	assert.Equal(t, []domain.StreamState{domain.StateConnecting, domain.StateStreaming, domain.StateStopped}, obs.states)
	assert.True(t, stream.closed)
	assert.Equal(t, 7, s.History().Len())
}

func TestSupervisor_MalformedTickSkipped(t *testing.T) {
	stop := NewStopSignal()
	stream := &scriptedStream{
		ticks:   ticks("100", "", "abc", "-1", "101"),
		errs:    []error{nil, nil, nil, nil, nil},
		onDrain: stop.Request,
	}
	stream.ticks = append(stream.ticks, domain.Tick{})
	stream.errs = append(stream.errs, domain.ErrMalformedTick)

	sub := &fakeSubscriber{streams: []*scriptedStream{stream}}

	s := NewSupervisor(zap.NewNop(), testConfig(), sub, &fakeExecutor{}, stop)
	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, []float64{100, 101}, s.History().Prices())
	assert.Equal(t, 1, sub.calls, "malformed ticks must not trigger a reconnect")
}

func TestSupervisor_ReconnectBackoffAndReset(t *testing.T) {
	stop := NewStopSignal()
	broken := &scriptedStream{
		ticks: ticks("100"),
		errs:  []error{errors.New("websocket: close 1006 (abnormal closure)")},
	}
	healthy := &scriptedStream{ticks: ticks("100"), onDrain: stop.Request}
	sub := &fakeSubscriber{failures: 3, streams: []*scriptedStream{broken, healthy}}
	obs := &recordingObserver{}

	s := NewSupervisor(zap.NewNop(), testConfig(), sub, &fakeExecutor{}, stop,
		WithBackoff(NewBackoff(time.Millisecond, 4*time.Millisecond)),
		WithObserver(obs))

	require.NoError(t, s.Run(context.Background()))

	// three dial failures double the delay, the broken stream starts again from base
	assert.Equal(t, []time.Duration{
		1 * time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond, 1 * time.Millisecond,
	}, obs.delays)
	assert.Equal(t, 5, sub.calls)
	assert.True(t, broken.closed)
	assert.Len(t, obs.errs, 4)
	for _, err := range obs.errs {
		assert.ErrorIs(t, err, domain.ErrConnection)
	}
}

func TestSupervisor_FailedOrderLeavesStateUntouched(t *testing.T) {
	stop := NewStopSignal()
	stream := &scriptedStream{ticks: ticks("100", "100", "100", "100", "100", "97", "97"), onDrain: stop.Request}
	sub := &fakeSubscriber{streams: []*scriptedStream{stream}}
	exec := &fakeExecutor{executeErr: errors.New("order error: insufficient balance")}
	obs := &recordingObserver{}

	s := NewSupervisor(zap.NewNop(), testConfig(), sub, exec, stop, WithObserver(obs))
	require.NoError(t, s.Run(context.Background()))

	// no cooldown was armed so the second signal is tried again
	assert.Len(t, exec.decisions, 2)
	assert.True(t, s.RunState().LastTradeTime.IsZero())
	assert.Empty(t, obs.trades)
	assert.Equal(t, 1, sub.calls)
}

func TestSupervisor_InvalidStepSizeIsFatal(t *testing.T) {
	stop := NewStopSignal()
	sub := &fakeSubscriber{streams: []*scriptedStream{{}}}
	exec := &fakeExecutor{prepareErr: domain.ErrInvalidStepSize}

	s := NewSupervisor(zap.NewNop(), testConfig(), sub, exec, stop)
	err := s.Run(context.Background())

	require.ErrorIs(t, err, domain.ErrInvalidStepSize)
	assert.Equal(t, 0, sub.calls)
	assert.Equal(t, domain.StateStopped, s.State())
}

func TestSupervisor_StopDuringBackoff(t *testing.T) {
	stop := NewStopSignal()
	sub := &fakeSubscriber{failures: 100}

	s := NewSupervisor(zap.NewNop(), testConfig(), sub, &fakeExecutor{}, stop,
		WithBackoff(NewBackoff(time.Hour, time.Hour)))

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	stop.Request()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not observe stop during backoff")
	}
}

func TestSupervisor_ContextCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stop := NewStopSignal()
	stream := &scriptedStream{ticks: ticks("100"), onDrain: cancel}
	sub := &fakeSubscriber{streams: []*scriptedStream{stream}}

	s := NewSupervisor(zap.NewNop(), testConfig(), sub, &fakeExecutor{}, stop)
	assert.NoError(t, s.Run(ctx))
}

func TestSupervisor_WarmStartAndPriceRecording(t *testing.T) {
	stop := NewStopSignal()
	prices := &memoryPrices{}
	for i := 0; i < 5; i++ {
		prices.recent = append(prices.recent, domain.PricePoint{Timestamp: time.Now(), Symbol: "BTCUSDT", Price: decimal.NewFromInt(100)})
	}

	stream := &scriptedStream{ticks: ticks("97"), onDrain: stop.Request}
	sub := &fakeSubscriber{streams: []*scriptedStream{stream}}
	exec := &fakeExecutor{now: time.Now()}

	s := NewSupervisor(zap.NewNop(), testConfig(), sub, exec, stop, WithPriceStore(prices))
	require.NoError(t, s.Run(context.Background()))

	// the restored window makes the first live tick actionable
	require.Len(t, exec.decisions, 1)
	assert.Equal(t, domain.SideBuy, exec.decisions[0].Side)
	require.Len(t, prices.saved, 1)
	assert.True(t, prices.saved[0].Price.Equal(decimal.NewFromInt(97)))
}

func TestSupervisor_WarmStartIgnoresStalePrices(t *testing.T) {
	now := time.Date(2025, 1, 4, 0, 0, 0, 0, time.UTC)
	stop := NewStopSignal()
	prices := &memoryPrices{}
	for i := 0; i < 10; i++ {
		prices.recent = append(prices.recent, domain.PricePoint{
			Timestamp: now.Add(-72 * time.Hour),
			Symbol:    "BTCUSDT",
			Price:     decimal.NewFromInt(100),
		})
	}

	stream := &scriptedStream{ticks: ticks("97.5"), onDrain: stop.Request}
	sub := &fakeSubscriber{streams: []*scriptedStream{stream}}
	exec := &fakeExecutor{now: now}

	s := NewSupervisor(zap.NewNop(), testConfig(), sub, exec, stop,
		WithPriceStore(prices), WithClock(func() time.Time { return now }))
	require.NoError(t, s.Run(context.Background()))

	assert.Empty(t, exec.decisions)
	assert.Equal(t, []float64{97.5}, s.History().Prices())
}

func TestSupervisor_WarmStartMaxAge(t *testing.T) {
	now := time.Date(2025, 1, 4, 0, 0, 0, 0, time.UTC)
	stop := NewStopSignal()
	prices := &memoryPrices{recent: []domain.PricePoint{
		{Timestamp: now.Add(-2 * time.Hour), Symbol: "BTCUSDT", Price: decimal.NewFromInt(90)},
		{Timestamp: now.Add(-30 * time.Minute), Symbol: "BTCUSDT", Price: decimal.NewFromInt(100)},
	}}

	stream := &scriptedStream{onDrain: stop.Request}
	sub := &fakeSubscriber{streams: []*scriptedStream{stream}}

	s := NewSupervisor(zap.NewNop(), testConfig(), sub, &fakeExecutor{}, stop,
		WithPriceStore(prices), WithWarmStartMaxAge(time.Hour), WithClock(func() time.Time { return now }))
	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, []float64{100}, s.History().Prices())
}

func TestSupervisor_SmallWindowNeverTrades(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	stop := NewStopSignal()
	cfg := testConfig()
	cfg.WindowSize = 3

	stream := &scriptedStream{ticks: ticks("100", "100", "100", "50", "50", "50"), onDrain: stop.Request}
	sub := &fakeSubscriber{streams: []*scriptedStream{stream}}
	exec := &fakeExecutor{}

	s := NewSupervisor(zap.New(core), cfg, sub, exec, stop)
	require.NoError(t, s.Run(context.Background()))

	assert.Empty(t, exec.decisions)
	assert.Equal(t, 1, logs.FilterMessage("window is smaller than the warm-up, no trades will be placed").Len())
}
