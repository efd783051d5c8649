// Package setup is the interactive wizard that writes a bots file.
package setup

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/tickbot/config"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// Answers collected by the wizard.
type Answers struct {
	Platform      string
	Pair          string
	User          string
	BuyThreshold  string
	SellThreshold string
	Window        string
	Cooldown      string
	MaxVolatility string
	Allocation    string
	Quantity      string
}

// DefaultAnswers prefilled values of the wizard.
func DefaultAnswers() Answers {
	return Answers{
		Platform:      config.PlatformSimulate,
		Pair:          "BTC_USDT",
		BuyThreshold:  "0.98",
		SellThreshold: "1.02",
		Window:        "10",
		Cooldown:      "300",
		MaxVolatility: "0.02",
		Allocation:    "10",
		Quantity:      "0",
	}
}

// File converts answers into a bots file. The bot entry is validated.
func (a Answers) File() (config.FileTmp, error) {
	bot := config.BotTmp{
		Pair:                 strings.ToUpper(strings.TrimSpace(a.Pair)),
		User:                 a.User,
		BuyThresholdStr:      a.BuyThreshold,
		SellThresholdStr:     a.SellThreshold,
		WindowStr:            a.Window,
		CooldownSecondsStr:   a.Cooldown,
		MaxVolatilityStr:     a.MaxVolatility,
		AllocationPercentStr: a.Allocation,
		QuantityStr:          a.Quantity,
	}

	if _, err := bot.TradingPair(); err != nil {
		return config.FileTmp{}, err
	}

	return config.FileTmp{Platform: a.Platform, Bots: []config.BotTmp{bot}}, nil
}

// RunTUI launches the terminal configuration wizard and writes the result to path.
func RunTUI(path string) error {
	a := DefaultAnswers()
	var confirm bool

	header := func(step string) {
		fmt.Print("\033[H\033[2J")
		fmt.Println(headerStyle.Render("TICKBOT CONFIG WIZARD"))
		fmt.Println(stepStyle.Render(step))
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("TICKBOT CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Let's get your bot automated in style.\n"))

	fmt.Println(stepStyle.Render("STEP 1: PLATFORM"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select Exchange Platform").
				Options(
					huh.NewOption("Binance", config.PlatformBinance),
					huh.NewOption("Bybit", config.PlatformBybit),
					huh.NewOption("Simulation (Binance prices, local fills)", config.PlatformSimulate),
				).
				Value(&a.Platform),
		),
	).Run()
	if err != nil {
		return err
	}

	header("STEP 2: ASSET")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Trading Pair").
				Description("Must contain underscore (e.g. BTC_USDT)").
				Value(&a.Pair).
				Validate(validatePair),
			huh.NewInput().
				Title("Owner").
				Description("User the bot trades for, optional").
				Value(&a.User),
		),
	).Run()
	if err != nil {
		return err
	}

	header("STEP 3: SIGNAL")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Buy threshold").
				Description("Buy when price < average x threshold (e.g. 0.98)").
				Value(&a.BuyThreshold).
				Validate(validatePositive),
			huh.NewInput().
				Title("Sell threshold").
				Description("Sell when price > average x threshold (e.g. 1.02)").
				Value(&a.SellThreshold).
				Validate(validatePositive),
			huh.NewInput().
				Title("Window size").
				Description("Number of prices in the moving average").
				Value(&a.Window).
				Validate(validateWindow),
			huh.NewInput().
				Title("Max volatility").
				Description("Skip trading while stddev/mean is at or above this value").
				Value(&a.MaxVolatility).
				Validate(validatePositive),
			huh.NewInput().
				Title("Cooldown seconds").
				Description("Minimum pause between two trades").
				Value(&a.Cooldown),
		),
	).Run()
	if err != nil {
		return err
	}

	header("STEP 4: SIZING")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Amount % per trade").
				Description("Percentage of balance (1-100)").
				Value(&a.Allocation).
				Validate(validateAmount),
			huh.NewInput().
				Title("Max quantity").
				Description("Cap in base asset, 0 means no cap").
				Value(&a.Quantity),
		),
	).Run()
	if err != nil {
		return err
	}

	header("FINAL CONFIRMATION")

	summary := fmt.Sprintf(
		"Platform: %s\nPair: %s\nBuy/Sell: %s / %s\nWindow: %s\nAllocation: %s%%\n",
		a.Platform, a.Pair, a.BuyThreshold, a.SellThreshold, a.Window, a.Allocation,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save and start").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}

	if !confirm {
		return errors.New("setup cancelled by user")
	}

	file, err := a.File()
	if err != nil {
		return err
	}

	if err := config.WriteFile(path, file); err != nil {
		return err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nStarting bot...", path)))
	time.Sleep(1500 * time.Millisecond) // small pause to read success message

	return nil
}

func validatePair(s string) error {
	if s == "" {
		return errors.New("pair cannot be empty")
	}
	if !strings.Contains(s, "_") {
		return errors.New("invalid format: must be BASE_QUOTE (e.g. BTC_USDT)")
	}
	return nil
}

func validateAmount(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return errors.New("must be a valid number")
	}
	if d.LessThan(decimal.NewFromInt(1)) || d.GreaterThan(decimal.NewFromInt(100)) {
		return errors.New("must be between 1 and 100")
	}
	return nil
}

func validatePositive(s string) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return errors.New("must be a valid number")
	}
	if v <= 0 {
		return errors.New("must be positive")
	}
	return nil
}

func validateWindow(s string) error {
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return errors.New("must be an integer of at least 1")
	}
	return nil
}
