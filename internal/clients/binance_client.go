package clients

import (
	"context"

	"github.com/adshao/go-binance/v2"
	"go.uber.org/zap"
)

// NewBinanceClient creates a spot client. Testnet selection is process wide in go-binance.
func NewBinanceClient(apiKey, apiSecret string, testnet bool) *binance.Client {
	binance.UseTestnet = testnet
	return binance.NewClient(apiKey, apiSecret)
}

// ConnectBinance creates a client and pings the API until it answers or attempts run out.
func ConnectBinance(ctx context.Context, logger *zap.Logger, opts ConnectOptions) (*binance.Client, error) {
	client := NewBinanceClient(opts.APIKey, opts.APISecret, opts.Testnet)

	err := connect(ctx, logger, "binance", opts, func(ctx context.Context) error {
		return client.NewPingService().Do(ctx)
	})
	if err != nil {
		return nil, err
	}

	return client, nil
}

// NewPublicBinanceClient creates a client without API keys for public market data only.
func NewPublicBinanceClient() *binance.Client {
	return binance.NewClient("", "")
}
