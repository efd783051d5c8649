// Package signal decides whether a tick should trigger a trade.
package signal

import (
	"math"
	"time"

	"github.com/vadiminshakov/tickbot/internal/domain"
)

// MinPoints is the warm-up size: no decision is taken on fewer window points.
const MinPoints = 5

// Reasons reported for NONE decisions.
const (
	ReasonCooldown  = "cooldown"
	ReasonWarmUp    = "warm-up"
	ReasonVolatile  = "volatile"
	ReasonInBand    = "within thresholds"
	ReasonZeroPrice = "zero average"
)

// Window is the part of the price history the evaluator reads.
type Window interface {
	Len() int
	Mean() float64
	Volatility() float64
}

// Evaluate is a pure function of its inputs. Checks run in order and short-circuit:
// cooldown, warm-up, stability, thresholds. BUY wins when both thresholds match.
// A zero lastTradeTime means no trade has happened yet.
func Evaluate(currentPrice float64, window Window, cfg domain.TradingPairConfig, lastTradeTime, now time.Time) domain.TradeDecision {
	decision := domain.TradeDecision{Side: domain.SideNone, CurrentPrice: currentPrice}

	if !lastTradeTime.IsZero() && now.Sub(lastTradeTime) < cfg.Cooldown() {
		decision.Reason = ReasonCooldown
		return decision
	}

	if window.Len() < MinPoints {
		decision.Reason = ReasonWarmUp
		return decision
	}

	if window.Volatility() >= cfg.MaxVolatility {
		decision.Reason = ReasonVolatile
		return decision
	}

	avg := window.Mean()
	decision.AveragePrice = avg
	if avg <= 0 {
		decision.Reason = ReasonZeroPrice
		return decision
	}

	decision.PercentChange = math.Abs((currentPrice - avg) / avg * 100)

	switch {
	case currentPrice < avg*cfg.BuyThreshold:
		decision.Side = domain.SideBuy
	case currentPrice > avg*cfg.SellThreshold:
		decision.Side = domain.SideSell
	default:
		decision.Reason = ReasonInBand
	}

	return decision
}
