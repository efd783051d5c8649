package domain

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// PricePoint single observed price of a symbol.
type PricePoint struct {
	Timestamp time.Time       `json:"ts" db:"timestamp"`
	Symbol    string          `json:"symbol" db:"symbol"`
	Price     decimal.Decimal `json:"price" db:"price"`
}

// Float returns the price as float64 for statistics.
func (p PricePoint) Float() float64 {
	return p.Price.InexactFloat64()
}

// Tick raw price update as received from the market data feed.
// Price is kept as the exchange string so that validation happens in one place.
type Tick struct {
	Symbol    string
	Price     string
	EventTime int64 // unix millis, 0 when the feed did not provide it
}

// PricePoint validates the tick and converts it. A missing or non-positive price
// yields ErrMalformedTick. The symbol falls back to fallbackSymbol and the time to now.
func (t Tick) PricePoint(fallbackSymbol string, now time.Time) (PricePoint, error) {
	raw := strings.TrimSpace(t.Price)
	if raw == "" {
		return PricePoint{}, errors.Wrap(ErrMalformedTick, "price field is missing")
	}

	price, err := decimal.NewFromString(raw)
	if err != nil {
		return PricePoint{}, errors.Wrapf(ErrMalformedTick, "price %q: %v", raw, err)
	}
	if !price.IsPositive() {
		return PricePoint{}, errors.Wrapf(ErrMalformedTick, "price %s is not positive", price)
	}

	symbol := t.Symbol
	if symbol == "" {
		symbol = fallbackSymbol
	}

	ts := now.UTC()
	if t.EventTime > 0 {
		ts = time.UnixMilli(t.EventTime).UTC()
	}

	return PricePoint{Timestamp: ts, Symbol: symbol, Price: price}, nil
}
