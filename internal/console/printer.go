// Package console renders price ticks, trade signals and order results for a human operator.
package console

import (
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/vadiminshakov/tickbot/internal/domain"
)

var (
	upStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	downStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	flatStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	symbolStyle = lipgloss.NewStyle().Bold(true)

	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("226")).
			Border(lipgloss.NormalBorder()).
			Padding(0, 1)

	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
)

// Printer writes coloured lines. Safe for use by several bots at once.
type Printer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewPrinter creates a printer writing to out, stdout when out is nil.
func NewPrinter(out io.Writer) *Printer {
	if out == nil {
		out = os.Stdout
	}

	return &Printer{out: out}
}

// PriceUpdate prints the new price coloured by direction with the tick-to-tick volatility.
func (p *Printer) PriceUpdate(point domain.PricePoint, previous float64) {
	current := point.Float()

	style := flatStyle
	switch {
	case previous == 0:
	case current > previous:
		style = upStyle
	case current < previous:
		style = downStyle
	}

	line := fmt.Sprintf("%s %s  volatility %.4f%%",
		symbolStyle.Render(point.Symbol),
		style.Render(point.Price.String()),
		TickVolatility(current, previous)*100)

	p.println(line)
}

// Signal prints the condition-met banner before an order is placed.
func (p *Printer) Signal(symbol string, decision domain.TradeDecision) {
	text := fmt.Sprintf("Condition met! %s %s: current %.8g is %.2f%% %s average %.8g",
		decision.Side, symbol, decision.CurrentPrice, decision.PercentChange, decision.Direction(), decision.AveragePrice)

	p.println(bannerStyle.Render(text))
}

// OrderResult prints the outcome of an order attempt.
func (p *Printer) OrderResult(symbol string, side domain.Side, record domain.OrderRecord, err error) {
	if err != nil {
		p.println(failStyle.Render(fmt.Sprintf("%s %s order failed: %v", side, symbol, err)))
		return
	}

	p.println(okStyle.Render(fmt.Sprintf("%s %s %s at %s (avg %s) %s",
		side, record.Quantity.String(), symbol, record.Price.String(), record.AvgPrice.String(), record.Result)))
}

func (p *Printer) println(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintln(p.out, line)
}

// TickVolatility relative move between two consecutive prices, 0 without a previous price.
func TickVolatility(current, previous float64) float64 {
	if previous <= 0 {
		return 0
	}

	return math.Abs(current-previous) / previous
}
