// Package pricehistory keeps the rolling price window of a single symbol.
package pricehistory

import (
	"math"

	"github.com/vadiminshakov/tickbot/internal/domain"
	"github.com/vadiminshakov/tickbot/pkg/indicators"
)

// History is a FIFO window of the last windowSize prices plus an append-only log
// of every observed point. It is owned by one supervisor goroutine and is not
// safe for concurrent use.
type History struct {
	windowSize int
	window     []float64
	head       int // index of the oldest element once the window is full
	full       bool
	log        []domain.PricePoint
}

// New creates an empty history. windowSize below 1 is treated as 1.
func New(windowSize int) *History {
	if windowSize < 1 {
		windowSize = 1
	}

	return &History{
		windowSize: windowSize,
		window:     make([]float64, 0, windowSize),
	}
}

// Append adds a point, evicting the oldest window entry once the window is full.
func (h *History) Append(point domain.PricePoint) {
	h.log = append(h.log, point)

	price := point.Float()
	if !h.full {
		h.window = append(h.window, price)
		if len(h.window) == h.windowSize {
			h.full = true
		}
		return
	}

	h.window[h.head] = price
	h.head = (h.head + 1) % h.windowSize
}

// Seed appends points in order. Used for warm start from persisted prices.
func (h *History) Seed(points []domain.PricePoint) {
	for _, p := range points {
		h.Append(p)
	}
}

// Last most recently appended point.
func (h *History) Last() (domain.PricePoint, bool) {
	if len(h.log) == 0 {
		return domain.PricePoint{}, false
	}

	return h.log[len(h.log)-1], true
}

// Len number of prices in the window.
func (h *History) Len() int {
	return len(h.window)
}

// WindowSize configured capacity.
func (h *History) WindowSize() int {
	return h.windowSize
}

// Prices returns the window oldest first.
func (h *History) Prices() []float64 {
	out := make([]float64, 0, len(h.window))
	if !h.full {
		return append(out, h.window...)
	}

	out = append(out, h.window[h.head:]...)
	return append(out, h.window[:h.head]...)
}

// Log returns every point observed since the history was created.
func (h *History) Log() []domain.PricePoint {
	out := make([]domain.PricePoint, len(h.log))
	copy(out, h.log)
	return out
}

// Mean arithmetic mean of the window, 0 with fewer than 2 points.
func (h *History) Mean() float64 {
	if len(h.window) < 2 {
		return 0
	}

	var sum float64
	for _, p := range h.window {
		sum += p
	}

	return sum / float64(len(h.window))
}

// StdDev population standard deviation of the window, 0 with fewer than 2 points.
func (h *History) StdDev() float64 {
	if len(h.window) < 2 {
		return 0
	}

	mean := h.Mean()

	var sq float64
	for _, p := range h.window {
		d := p - mean
		sq += d * d
	}

	return math.Sqrt(sq / float64(len(h.window)))
}

// Volatility coefficient of variation of the window.
func (h *History) Volatility() float64 {
	mean := h.Mean()
	if mean <= 0 {
		return 0
	}

	return h.StdDev() / mean
}

// Stable reports whether the window has enough data and volatility below maxVolatility.
func (h *History) Stable(maxVolatility float64) bool {
	if len(h.window) < 2 {
		return false
	}

	return h.Volatility() < maxVolatility
}

// Trend EMA over the tail of the full log. ok is false until the log holds period points.
func (h *History) Trend(period int) (value float64, ok bool) {
	if period < 1 || len(h.log) < period {
		return 0, false
	}

	// a few periods are enough for the EMA to settle
	start := len(h.log) - 4*period
	if start < 0 {
		start = 0
	}

	values := make([]float64, 0, len(h.log)-start)
	for _, p := range h.log[start:] {
		values = append(values, p.Float())
	}

	ema, err := indicators.LastEMA(values, period)
	if err != nil {
		return 0, false
	}

	return ema, true
}

// LogSMA simple moving average of the last period points of the full log.
func (h *History) LogSMA(period int) (value float64, ok bool) {
	if period < 1 || len(h.log) < period {
		return 0, false
	}

	values := make([]float64, 0, period)
	for _, p := range h.log[len(h.log)-period:] {
		values = append(values, p.Float())
	}

	sma, err := indicators.SMA(values, period)
	if err != nil || len(sma) == 0 {
		return 0, false
	}

	return sma[len(sma)-1], true
}
