// Package quantity converts desired allocations into exchange-legal order quantities.
package quantity

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/tickbot/internal/domain"
)

const maxStepPlaces = 18

var hundred = decimal.NewFromInt(100)

// Round floors raw to a multiple of step and quantizes it to the precision of step.
// The result never exceeds raw. A non-positive step yields ErrInvalidStepSize.
func Round(raw, step decimal.Decimal) (decimal.Decimal, error) {
	if !step.IsPositive() {
		return decimal.Zero, errors.Wrapf(domain.ErrInvalidStepSize, "step %s", step)
	}
	if !raw.IsPositive() {
		return decimal.Zero, nil
	}

	floored := raw.Sub(raw.Mod(step))

	return floored.Truncate(Places(step)), nil
}

// Places number of significant decimal places of step, e.g. 0.00100000 -> 3.
func Places(step decimal.Decimal) int32 {
	var places int32
	for places < maxStepPlaces && !step.Equal(step.Truncate(places)) {
		places++
	}

	return places
}

// Allocate computes the raw base-asset quantity for an order.
// BUY spends allocationPercent of the quote balance at price,
// SELL sells allocationPercent of the base balance.
func Allocate(side domain.Side, balance, allocationPercent, price decimal.Decimal) (decimal.Decimal, error) {
	if balance.IsNegative() {
		return decimal.Zero, errors.Errorf("negative balance %s", balance)
	}

	share := balance.Mul(allocationPercent).Div(hundred)

	switch side {
	case domain.SideBuy:
		if !price.IsPositive() {
			return decimal.Zero, errors.Errorf("price must be positive, got %s", price)
		}
		return share.Div(price), nil
	case domain.SideSell:
		return share, nil
	default:
		return decimal.Zero, errors.Errorf("cannot allocate for side %s", side)
	}
}

// Cap limits q to limit when limit is positive.
func Cap(q, limit decimal.Decimal) decimal.Decimal {
	if limit.IsPositive() && q.GreaterThan(limit) {
		return limit
	}

	return q
}
