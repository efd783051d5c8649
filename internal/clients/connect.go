// Package clients builds exchange API clients and verifies connectivity with retries.
package clients

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/tickbot/internal/domain"
	"github.com/vadiminshakov/tickbot/pkg/retrier"
	"go.uber.org/zap"
)

// Connect retry defaults: a fixed number of attempts with a fixed delay.
const (
	DefaultConnectAttempts = 5
	DefaultConnectDelay    = 5 * time.Second
)

// ConnectOptions credentials and retry policy of a connection attempt.
type ConnectOptions struct {
	APIKey    string
	APISecret string
	Testnet   bool
	Attempts  int
	Delay     time.Duration
}

func (o ConnectOptions) retrier(logger *zap.Logger, exchange string) *retrier.Retrier {
	attempts := o.Attempts
	if attempts < 1 {
		attempts = DefaultConnectAttempts
	}
	delay := o.Delay
	if delay <= 0 {
		delay = DefaultConnectDelay
	}

	return retrier.New(
		retrier.WithMaxRetries(attempts-1),
		retrier.WithFixedDelay(delay),
		retrier.WithOnRetry(func(attempt int, err error, next time.Duration) {
			logger.Warn("connect attempt failed",
				zap.String("exchange", exchange),
				zap.Int("attempt", attempt),
				zap.Duration("delay", next),
				zap.Error(err))
		}),
	)
}

func connect(ctx context.Context, logger *zap.Logger, exchange string, opts ConnectOptions, probe func(ctx context.Context) error) error {
	_, err := connectWithData(ctx, logger, exchange, opts, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, probe(ctx)
	})
	return err
}

// connectWithData retries probe and returns what the successful probe fetched.
func connectWithData[T any](ctx context.Context, logger *zap.Logger, exchange string, opts ConnectOptions, probe func(ctx context.Context) (T, error)) (T, error) {
	res, err := retrier.DoWithData(opts.retrier(logger, exchange), ctx, probe)
	if err != nil {
		var zero T
		return zero, errors.Wrapf(domain.ErrConnection, "connect to %s: %v", exchange, err)
	}

	network := "production"
	if opts.Testnet {
		network = "testnet"
	}
	logger.Info("connected", zap.String("exchange", exchange), zap.String("network", network))

	return res, nil
}
