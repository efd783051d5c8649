// Package config builds the process configuration from a YAML bots file or CLI flags,
// with exchange secrets taken from the environment.
package config

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/tickbot/internal/domain"
	"gopkg.in/yaml.v3"
)

// Supported platforms.
const (
	PlatformBinance  = "binance"
	PlatformBybit    = "bybit"
	PlatformSimulate = "simulate"
)

const (
	DefaultListen  = ":8080"
	DefaultDataDir = "./data"
	// GeneratedFile is written by the setup wizard.
	GeneratedFile = "config.gen.yaml"
)

// Config is the process configuration.
type Config struct {
	Platform  string
	Listen    string
	DataDir   string
	AutoStart bool
	Debug     bool
	Setup     bool
	Env       Env
	Bots      []domain.TradingPairConfig
}

// FileTmp is the YAML layout of a bots file.
type FileTmp struct {
	Platform  string   `yaml:"platform"`
	Listen    string   `yaml:"listen,omitempty"`
	DataDir   string   `yaml:"data_dir,omitempty"`
	AutoStart *bool    `yaml:"autostart,omitempty"`
	Bots      []BotTmp `yaml:"bots"`
}

// BotTmp is one bot in the YAML file. Numbers are kept as strings and parsed with defaults.
type BotTmp struct {
	Pair                 string `yaml:"pair"`
	User                 string `yaml:"user,omitempty"`
	BuyThresholdStr      string `yaml:"buy_threshold,omitempty"`
	SellThresholdStr     string `yaml:"sell_threshold,omitempty"`
	QuantityStr          string `yaml:"quantity,omitempty"`
	WindowStr            string `yaml:"window,omitempty"`
	CooldownSecondsStr   string `yaml:"cooldown_seconds,omitempty"`
	MaxVolatilityStr     string `yaml:"max_volatility,omitempty"`
	AllocationPercentStr string `yaml:"allocation_percent,omitempty"`
}

// Get reads the configuration from os.Args and the environment.
func Get() (Config, error) {
	return Parse(os.Args[1:], LoadEnv(".env"))
}

// Parse builds the configuration from args. Bots come from --config when set,
// otherwise a single bot is described by flags.
func Parse(args []string, env Env) (Config, error) {
	fs := flag.NewFlagSet("tickbot", flag.ContinueOnError)

	configPath := fs.String("config", "", "path to yaml config")
	setup := fs.Bool("setup", false, "run the interactive setup wizard")
	debug := fs.Bool("debug", false, "development logging")
	platform := fs.String("platform", PlatformSimulate, "exchange platform: binance, bybit or simulate")
	listen := fs.String("listen", DefaultListen, "http listen address")
	dataDir := fs.String("datadir", DefaultDataDir, "directory for WAL and wallet files")
	autostart := fs.Bool("autostart", true, "start configured bots at launch")

	pair := fs.String("pair", "BTC_USDT", "trade pair, example: BTC_USDT")
	user := fs.String("user", "", "owner of the bot")
	buy := fs.String("buy", "", "buy threshold factor, example: 0.98")
	sell := fs.String("sell", "", "sell threshold factor, example: 1.02")
	quantity := fs.String("quantity", "", "max base quantity per order, 0 means no cap")
	window := fs.String("window", "", "moving average window size")
	cooldown := fs.String("cooldown", "", "seconds between trades")
	maxVolatility := fs.String("maxvolatility", "", "max volatility (stddev/mean) to trade")
	allocation := fs.String("allocation", "", "percent of balance per order, example: 10")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Platform:  *platform,
		Listen:    *listen,
		DataDir:   *dataDir,
		AutoStart: *autostart,
		Debug:     *debug,
		Setup:     *setup,
		Env:       env,
	}

	if *configPath != "" {
		if err := cfg.applyFile(*configPath); err != nil {
			return Config{}, err
		}
		return cfg, cfg.validate()
	}

	bot, err := BotTmp{
		Pair:                 *pair,
		User:                 *user,
		BuyThresholdStr:      *buy,
		SellThresholdStr:     *sell,
		QuantityStr:          *quantity,
		WindowStr:            *window,
		CooldownSecondsStr:   *cooldown,
		MaxVolatilityStr:     *maxVolatility,
		AllocationPercentStr: *allocation,
	}.TradingPair()
	if err != nil {
		return Config{}, err
	}
	cfg.Bots = []domain.TradingPairConfig{bot}

	return cfg, cfg.validate()
}

// ReadFile parses a bots file.
func ReadFile(path string) (FileTmp, error) {
	var file FileTmp

	data, err := os.ReadFile(path)
	if err != nil {
		return FileTmp{}, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return FileTmp{}, errors.Wrapf(err, "parse config %s", path)
	}

	return file, nil
}

// WriteFile stores file as YAML at path.
func WriteFile(path string, file FileTmp) error {
	data, err := yaml.Marshal(file)
	if err != nil {
		return errors.Wrap(err, "failed to generate yaml")
	}

	return errors.Wrapf(os.WriteFile(path, data, 0o600), "write config %s", path)
}

func (c *Config) applyFile(path string) error {
	file, err := ReadFile(path)
	if err != nil {
		return err
	}

	if file.Platform != "" {
		c.Platform = file.Platform
	}
	if file.Listen != "" {
		c.Listen = file.Listen
	}
	if file.DataDir != "" {
		c.DataDir = file.DataDir
	}
	if file.AutoStart != nil {
		c.AutoStart = *file.AutoStart
	}

	for i, b := range file.Bots {
		bot, err := b.TradingPair()
		if err != nil {
			return errors.Wrapf(err, "bot #%d in %s", i+1, path)
		}
		c.Bots = append(c.Bots, bot)
	}

	return nil
}

func (c Config) validate() error {
	switch c.Platform {
	case PlatformBinance, PlatformBybit, PlatformSimulate:
	default:
		return errors.Wrapf(domain.ErrConfig, "unknown platform %q", c.Platform)
	}

	seen := make(map[string]struct{}, len(c.Bots))
	for _, b := range c.Bots {
		key := b.Symbol + "/" + b.OwnerUserID
		if _, ok := seen[key]; ok {
			return errors.Wrapf(domain.ErrConfig, "duplicate bot %s", b.Symbol)
		}
		seen[key] = struct{}{}
	}

	return nil
}

// TradingPair converts the YAML entry into a validated trading pair configuration.
func (b BotTmp) TradingPair() (domain.TradingPairConfig, error) {
	pair, err := getPairFromString(b.Pair)
	if err != nil {
		return domain.TradingPairConfig{}, errors.Wrapf(domain.ErrConfig, "incorrect 'pair' param: %q", b.Pair)
	}

	cfg := domain.NewTradingPairConfig(pair.Symbol(), pair.To, b.User)

	if cfg.BuyThreshold, err = parseFloat("buy_threshold", b.BuyThresholdStr, cfg.BuyThreshold); err != nil {
		return domain.TradingPairConfig{}, err
	}
	if cfg.SellThreshold, err = parseFloat("sell_threshold", b.SellThresholdStr, cfg.SellThreshold); err != nil {
		return domain.TradingPairConfig{}, err
	}
	if cfg.MaxVolatility, err = parseFloat("max_volatility", b.MaxVolatilityStr, cfg.MaxVolatility); err != nil {
		return domain.TradingPairConfig{}, err
	}
	if cfg.WindowSize, err = parseInt("window", b.WindowStr, cfg.WindowSize); err != nil {
		return domain.TradingPairConfig{}, err
	}
	if cfg.CooldownSeconds, err = parseInt("cooldown_seconds", b.CooldownSecondsStr, cfg.CooldownSeconds); err != nil {
		return domain.TradingPairConfig{}, err
	}
	if cfg.QuantityHint, err = parseDecimal("quantity", b.QuantityStr, cfg.QuantityHint); err != nil {
		return domain.TradingPairConfig{}, err
	}
	if cfg.AllocationPercent, err = parseDecimal("allocation_percent", b.AllocationPercentStr, cfg.AllocationPercent); err != nil {
		return domain.TradingPairConfig{}, err
	}

	if err := cfg.Validate(); err != nil {
		return domain.TradingPairConfig{}, err
	}

	return cfg, nil
}

// PairSource serves trading pair configurations from the loaded config.
type PairSource struct {
	bots []domain.TradingPairConfig
}

// NewPairSource creates a source over bots.
func NewPairSource(bots []domain.TradingPairConfig) *PairSource {
	return &PairSource{bots: bots}
}

// LoadConfig returns the configured pair for symbol. A bot without an owner
// is available to every user and is returned with user as owner.
func (s *PairSource) LoadConfig(_ context.Context, symbol, user string) (domain.TradingPairConfig, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	var shared *domain.TradingPairConfig
	for i := range s.bots {
		b := s.bots[i]
		if b.Symbol != symbol {
			continue
		}
		if b.OwnerUserID == user {
			return b, nil
		}
		if b.OwnerUserID == "" && shared == nil {
			shared = &b
		}
	}

	if shared != nil {
		cfg := *shared
		cfg.OwnerUserID = user
		return cfg, nil
	}

	return domain.TradingPairConfig{}, errors.Wrapf(domain.ErrNotFound, "trading pair %s for user %q", symbol, user)
}

func getPairFromString(pairStr string) (domain.Pair, error) {
	pairElements := strings.Split(strings.ToUpper(strings.TrimSpace(pairStr)), "_")
	if len(pairElements) != 2 || pairElements[0] == "" || pairElements[1] == "" {
		return domain.Pair{}, fmt.Errorf("invalid pair param")
	}

	return domain.Pair{From: pairElements[0], To: pairElements[1]}, nil
}

func parseFloat(name, s string, def float64) (float64, error) {
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Wrapf(domain.ErrConfig, "incorrect '%s' param (must be a number): %q", name, s)
	}
	return v, nil
}

func parseInt(name, s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Wrapf(domain.ErrConfig, "incorrect '%s' param (must be an integer): %q", name, s)
	}
	return v, nil
}

func parseDecimal(name, s string, def decimal.Decimal) (decimal.Decimal, error) {
	if s == "" {
		return def, nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(domain.ErrConfig, "incorrect '%s' param (must be a decimal): %q", name, s)
	}
	return v, nil
}
