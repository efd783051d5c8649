package clients

import (
	"context"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// NewBybitClient creates an authenticated V5 client.
func NewBybitClient(apiKey, apiSecret string, testnet bool) *bybit.Client {
	if testnet {
		return bybit.NewTestClient().WithAuth(apiKey, apiSecret)
	}

	return bybit.NewClient().WithAuth(apiKey, apiSecret)
}

// ConnectBybit creates a client and probes the ticker of probeSymbol until it answers.
func ConnectBybit(ctx context.Context, logger *zap.Logger, opts ConnectOptions, probeSymbol string) (*bybit.Client, error) {
	client := NewBybitClient(opts.APIKey, opts.APISecret, opts.Testnet)
	symbol := bybit.SymbolV5(probeSymbol)

	lastPrice, err := connectWithData(ctx, logger, "bybit", opts, func(ctx context.Context) (string, error) {
		res, err := client.V5().Market().GetTickers(bybit.V5GetTickersParam{
			Category: bybit.CategoryV5Spot,
			Symbol:   &symbol,
		})
		if err != nil {
			return "", err
		}
		if len(res.Result.Spot.List) == 0 {
			return "", errors.Errorf("bybit returned no ticker for %s", probeSymbol)
		}
		return res.Result.Spot.List[0].LastPrice, nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("bybit probe ticker", zap.String("symbol", probeSymbol), zap.String("last_price", lastPrice))

	return client, nil
}
