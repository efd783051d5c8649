package clients

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/tickbot/internal/domain"
	"go.uber.org/zap"
)

func TestConnect_RetriesFixedNumberOfTimes(t *testing.T) {
	attempts := 0
	opts := ConnectOptions{Attempts: 5, Delay: time.Millisecond}

	err := connect(context.Background(), zap.NewNop(), "test", opts, func(ctx context.Context) error {
		attempts++
		return errors.New("dial tcp: i/o timeout")
	})

	require.ErrorIs(t, err, domain.ErrConnection)
	assert.Equal(t, 5, attempts)
}

func TestConnect_SucceedsAfterFailures(t *testing.T) {
	attempts := 0
	opts := ConnectOptions{Attempts: 5, Delay: time.Millisecond}

	err := connect(context.Background(), zap.NewNop(), "test", opts, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("503")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestConnect_Defaults(t *testing.T) {
	var opts ConnectOptions
	r := opts.retrier(zap.NewNop(), "test")
	require.NotNil(t, r)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := connect(ctx, zap.NewNop(), "test", opts, func(ctx context.Context) error {
		attempts++
		return errors.New("fail")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestConnectWithData_ReturnsProbeResult(t *testing.T) {
	attempts := 0
	opts := ConnectOptions{Attempts: 3, Delay: time.Millisecond}

	price, err := connectWithData(context.Background(), zap.NewNop(), "test", opts, func(ctx context.Context) (string, error) {
		attempts++
		if attempts == 1 {
			return "", errors.New("connection reset by peer")
		}
		return "97000.10", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "97000.10", price)
	assert.Equal(t, 2, attempts)
}
