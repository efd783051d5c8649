package domain

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Defaults mirror the stored trading pair model.
const (
	DefaultWindowSize        = 10
	DefaultCooldownSeconds   = 300
	DefaultMaxVolatility     = 0.02
	DefaultBuyThreshold      = 0.98
	DefaultSellThreshold     = 1.02
	DefaultAllocationPercent = 10
)

// TradingPairConfig is the per-symbol trading configuration loaded once at bot start.
// Thresholds are multiplicative factors around the moving average: BuyThreshold 0.98
// buys when the price is at or below 98% of the average.
// A WindowSize below the 5-point warm-up is accepted but such a bot never trades.
type TradingPairConfig struct {
	Symbol            string          `json:"symbol" yaml:"symbol"`
	QuoteAsset        string          `json:"quote" yaml:"quote"`
	BuyThreshold      float64         `json:"buy_threshold" yaml:"buy_threshold"`
	SellThreshold     float64         `json:"sell_threshold" yaml:"sell_threshold"`
	QuantityHint      decimal.Decimal `json:"quantity" yaml:"quantity"`
	WindowSize        int             `json:"window" yaml:"window"`
	CooldownSeconds   int             `json:"cooldown_seconds" yaml:"cooldown_seconds"`
	MaxVolatility     float64         `json:"max_volatility" yaml:"max_volatility"`
	AllocationPercent decimal.Decimal `json:"allocation_percent" yaml:"allocation_percent"`
	OwnerUserID       string          `json:"user" yaml:"user"`
}

// NewTradingPairConfig returns a config for symbol with default parameters.
func NewTradingPairConfig(symbol, quote, user string) TradingPairConfig {
	return TradingPairConfig{
		Symbol:            strings.ToUpper(symbol),
		QuoteAsset:        strings.ToUpper(quote),
		BuyThreshold:      DefaultBuyThreshold,
		SellThreshold:     DefaultSellThreshold,
		WindowSize:        DefaultWindowSize,
		CooldownSeconds:   DefaultCooldownSeconds,
		MaxVolatility:     DefaultMaxVolatility,
		AllocationPercent: decimal.NewFromInt(DefaultAllocationPercent),
		OwnerUserID:       user,
	}
}

// Validate checks invariants. Every failure wraps ErrConfig.
func (c TradingPairConfig) Validate() error {
	if c.Symbol == "" {
		return errors.Wrap(ErrConfig, "symbol is required")
	}
	if _, err := c.Pair(); err != nil {
		return errors.Wrap(ErrConfig, err.Error())
	}
	if c.WindowSize < 1 {
		return errors.Wrapf(ErrConfig, "window size must be at least 1, got %d", c.WindowSize)
	}
	if c.BuyThreshold <= 0 || c.SellThreshold <= 0 {
		return errors.Wrapf(ErrConfig, "thresholds must be positive, got buy=%g sell=%g", c.BuyThreshold, c.SellThreshold)
	}
	if c.CooldownSeconds < 0 {
		return errors.Wrapf(ErrConfig, "cooldown must not be negative, got %d", c.CooldownSeconds)
	}
	if c.MaxVolatility <= 0 {
		return errors.Wrapf(ErrConfig, "max volatility must be positive, got %g", c.MaxVolatility)
	}
	if c.QuantityHint.IsNegative() {
		return errors.Wrapf(ErrConfig, "quantity must not be negative, got %s", c.QuantityHint)
	}
	if c.AllocationPercent.LessThanOrEqual(decimal.Zero) || c.AllocationPercent.GreaterThan(decimal.NewFromInt(100)) {
		return errors.Wrapf(ErrConfig, "allocation percent must be in (0, 100], got %s", c.AllocationPercent)
	}
	return nil
}

// Pair splits Symbol into base and quote assets.
func (c TradingPairConfig) Pair() (Pair, error) {
	return PairFromSymbol(c.Symbol, c.QuoteAsset)
}

// Cooldown minimum time between two successful trades.
func (c TradingPairConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// ThresholdFor returns the threshold that triggered a trade on side.
func (c TradingPairConfig) ThresholdFor(side Side) float64 {
	if side == SideSell {
		return c.SellThreshold
	}
	return c.BuyThreshold
}
