package domain

import "fmt"

// Side direction of a trade decision.
type Side int

const (
	SideNone Side = iota
	SideBuy
	SideSell
)

// String returns the exchange notation of the side.
func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "NONE"
	}
}

// TradeDecision outcome of one signal evaluation. PercentChange is the absolute
// deviation from the average in percent, kept for audit regardless of direction.
type TradeDecision struct {
	Side          Side
	CurrentPrice  float64
	AveragePrice  float64
	PercentChange float64
	// Reason why the decision is NONE, empty otherwise.
	Reason string
}

// Actionable reports whether the decision requires an order.
func (d TradeDecision) Actionable() bool {
	return d.Side == SideBuy || d.Side == SideSell
}

// Direction describes where the price is relative to the average.
func (d TradeDecision) Direction() string {
	switch {
	case d.CurrentPrice > d.AveragePrice:
		return "above"
	case d.CurrentPrice < d.AveragePrice:
		return "below"
	default:
		return "exact"
	}
}

// String returns a human-readable string representation.
func (d TradeDecision) String() string {
	if !d.Actionable() {
		return fmt.Sprintf("NONE (%s)", d.Reason)
	}
	return fmt.Sprintf("%s current: %.2f is %.2f%% %s average %.2f",
		d.Side, d.CurrentPrice, d.PercentChange, d.Direction(), d.AveragePrice)
}
