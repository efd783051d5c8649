// Package domain defines core data structures used throughout the trading bot.
package domain

import (
	"fmt"
	"strings"
)

// Pair cryptocurrency trading pair.
type Pair struct {
	// From base currency symbol.
	From string
	// To quote currency symbol.
	To string
}

// PairFromSymbol splits an exchange symbol such as BTCUSDT into base and quote
// using the known quote asset.
func PairFromSymbol(symbol, quote string) (Pair, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	quote = strings.ToUpper(strings.TrimSpace(quote))
	if quote == "" || !strings.HasSuffix(symbol, quote) || len(symbol) == len(quote) {
		return Pair{}, fmt.Errorf("symbol %q does not end with quote asset %q", symbol, quote)
	}

	return Pair{From: strings.TrimSuffix(symbol, quote), To: quote}, nil
}

// String returns the string representation.
func (p Pair) String() string {
	return fmt.Sprintf("%s_%s", p.From, p.To)
}

// Symbol returns the concatenated symbol representation.
func (p Pair) Symbol() string {
	return fmt.Sprintf("%s%s", p.From, p.To)
}
