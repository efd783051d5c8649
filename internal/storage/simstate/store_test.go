package simstate

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SaveLoad(t *testing.T) {
	store, err := NewStore(t.TempDir(), "Paper Account #1")
	require.NoError(t, err)

	state, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, state)

	wallet := map[string]decimal.Decimal{
		"USDT": decimal.RequireFromString("9000.5"),
		"BTC":  decimal.RequireFromString("0.015"),
	}
	require.NoError(t, store.Save(NewState(wallet, 3)))

	state, err = store.Load()
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, int64(3), state.Orders)

	balances, err := state.Balances()
	require.NoError(t, err)
	assert.True(t, balances["USDT"].Equal(wallet["USDT"]))
	assert.True(t, balances["BTC"].Equal(wallet["BTC"]))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "paper_account_1", sanitize("Paper Account #1"))
	assert.Equal(t, "", sanitize("  "))
}
