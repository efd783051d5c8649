package exchange

import (
	"testing"

	"github.com/hirokisan/bybit/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/tickbot/internal/domain"
)

func TestMarketOrderParam_BaseCoinQuantity(t *testing.T) {
	for _, side := range []domain.Side{domain.SideBuy, domain.SideSell} {
		t.Run(side.String(), func(t *testing.T) {
			param, err := marketOrderParam("BTCUSDT", side, decimal.RequireFromString("0.001"), "c0ffee")
			require.NoError(t, err)

			assert.Equal(t, bybit.CategoryV5Spot, param.Category)
			assert.Equal(t, bybit.OrderTypeMarket, param.OrderType)
			assert.Equal(t, "0.001", param.Qty)
			require.NotNil(t, param.MarketUnit)
			assert.Equal(t, bybit.MarketUnitBaseCoin, *param.MarketUnit)
			require.NotNil(t, param.OrderLinkID)
			assert.Equal(t, "c0ffee", *param.OrderLinkID)
		})
	}
}

func TestMarketOrderParam_NoClientID(t *testing.T) {
	param, err := marketOrderParam("BTCUSDT", domain.SideBuy, decimal.NewFromInt(1), "")
	require.NoError(t, err)
	assert.Nil(t, param.OrderLinkID)
	assert.Equal(t, bybit.SideBuy, param.Side)
}

func TestMarketOrderParam_UnknownSide(t *testing.T) {
	_, err := marketOrderParam("BTCUSDT", domain.SideNone, decimal.NewFromInt(1), "id")
	assert.Error(t, err)
}

func TestAvailableBalance(t *testing.T) {
	tests := []struct {
		name    string
		coin    bybit.V5WalletBalanceCoin
		want    string
		wantErr bool
	}{
		{name: "locked excluded", coin: bybit.V5WalletBalanceCoin{WalletBalance: "100.5", Locked: "20.5"}, want: "80"},
		{name: "nothing locked", coin: bybit.V5WalletBalanceCoin{WalletBalance: "42"}, want: "42"},
		{name: "never negative", coin: bybit.V5WalletBalanceCoin{WalletBalance: "1", Locked: "2"}, want: "0"},
		{name: "malformed", coin: bybit.V5WalletBalanceCoin{WalletBalance: "abc"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := availableBalance(tt.coin)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}
