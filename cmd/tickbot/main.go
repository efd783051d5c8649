// Command tickbot runs streaming trade-signal bots, one per symbol, and exposes
// an HTTP control plane to start, stop and inspect them.
//
// Usage:
//
//	tickbot --config bots.yaml
//	tickbot --platform binance --pair BTC_USDT --buy 0.98 --sell 1.02
//	tickbot --setup (interactive wizard)
//
// Environment variables (also read from .env):
//
//	For Binance: BINANCE_API_KEY, BINANCE_API_SECRET
//	For Bybit: BYBIT_API_KEY, BYBIT_API_SECRET
//	ENVIRONMENT=production selects the main network, anything else the testnet
//	POSTGRES_DSN enables database persistence, REDIS_ADDR the status mirror
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tickbot/config"
	"github.com/vadiminshakov/tickbot/internal"
	"github.com/vadiminshakov/tickbot/internal/clients"
	"github.com/vadiminshakov/tickbot/internal/console"
	"github.com/vadiminshakov/tickbot/internal/domain"
	"github.com/vadiminshakov/tickbot/internal/exchange"
	"github.com/vadiminshakov/tickbot/internal/registry"
	"github.com/vadiminshakov/tickbot/internal/services/executor"
	"github.com/vadiminshakov/tickbot/internal/services/stream"
	"github.com/vadiminshakov/tickbot/internal/setup"
	"github.com/vadiminshakov/tickbot/internal/storage/orders"
	"github.com/vadiminshakov/tickbot/internal/storage/postgres"
	"github.com/vadiminshakov/tickbot/internal/storage/prices"
	"github.com/vadiminshakov/tickbot/internal/storage/simstate"
	"github.com/vadiminshakov/tickbot/internal/storage/statuscache"
	"github.com/vadiminshakov/tickbot/internal/web"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	if cfg.Setup {
		if err := setup.RunTUI(config.GeneratedFile); err != nil {
			log.Fatal(err)
		}
		cfg, err = config.Parse(append(os.Args[1:], "--config", config.GeneratedFile), cfg.Env)
		if err != nil {
			log.Fatal(err)
		}
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Fatal("tickbot stopped with error", zap.Error(err))
	}
}

type orderHistory interface {
	OrderHistory(ctx context.Context, symbol string, limit int) ([]domain.OrderRecord, error)
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(ctx context.Context, logger *zap.Logger, cfg config.Config) error {
	orderJournal, err := orders.NewWALStore(filepath.Join(cfg.DataDir, "wal", "orders"))
	if err != nil {
		return err
	}
	defer orderJournal.Close()

	var (
		recorders  []executor.OrderRecorder
		loaders    internal.ConfigChain
		priceStore stream.PriceStore
		history    orderHistory = orderJournal
	)

	if cfg.Env.PostgresDSN != "" {
		db, err := postgres.Open(ctx, cfg.Env.PostgresDSN)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			return err
		}

		// configured bots become startable by symbol through the database too
		for _, b := range cfg.Bots {
			if err := db.SaveConfig(ctx, b); err != nil {
				return err
			}
		}

		recorders = append(recorders, db)
		loaders = append(loaders, db)
		priceStore = db
		history = db
		logger.Info("postgres persistence enabled")
	}

	recorders = append(recorders, orderJournal)
	loaders = append(loaders, config.NewPairSource(cfg.Bots))

	if priceStore == nil {
		priceLog, err := prices.NewWALStore(filepath.Join(cfg.DataDir, "wal", "prices"))
		if err != nil {
			return err
		}
		defer priceLog.Close()
		priceStore = priceLog
	}

	var regOpts []registry.Option
	if cfg.Env.RedisAddr != "" {
		cache, err := statuscache.New(ctx, cfg.Env.RedisAddr, cfg.Env.RedisPassword, 0)
		if err != nil {
			return err
		}
		defer cache.Close()

		regOpts = append(regOpts, registry.WithStatusSink(cache))
		logger.Info("redis status mirror enabled", zap.String("addr", cfg.Env.RedisAddr))
	}

	client, err := newClient(ctx, logger, cfg)
	if err != nil {
		return err
	}

	bot, err := internal.NewTradingBot(logger, client, recorders,
		internal.WithPriceStore(priceStore),
		internal.WithPrinter(console.NewPrinter(os.Stdout)),
	)
	if err != nil {
		return err
	}

	// bots outlive the signal context so that shutdown goes through their stop flags
	reg := registry.New(context.Background(), logger, bot.Factory(), regOpts...)

	if cfg.AutoStart {
		for _, b := range cfg.Bots {
			if _, err := reg.Start(b); err != nil {
				logger.Error("failed to start bot", zap.String("symbol", b.Symbol), zap.Error(err))
			}
		}
	}

	server := web.NewServer(cfg.Listen, logger, reg, loaders, orderJournal, history)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err = <-serverErr:
		if err != nil {
			logger.Error("control plane failed", zap.Error(err))
		}
	}

	reg.StopAll()

	waitCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if werr := reg.Wait(waitCtx); werr != nil {
		logger.Warn("bots did not stop in time", zap.Error(werr))
	}
	logger.Info("all bots stopped")

	return err
}

func newClient(ctx context.Context, logger *zap.Logger, cfg config.Config) (any, error) {
	switch cfg.Platform {
	case config.PlatformBinance:
		if cfg.Env.BinanceAPIKey == "" || cfg.Env.BinanceAPISecret == "" {
			return nil, errors.New("BINANCE_API_KEY and BINANCE_API_SECRET environment variables must be set")
		}
		return clients.ConnectBinance(ctx, logger, clients.ConnectOptions{
			APIKey:    cfg.Env.BinanceAPIKey,
			APISecret: cfg.Env.BinanceAPISecret,
			Testnet:   cfg.Env.Testnet(),
		})
	case config.PlatformBybit:
		if cfg.Env.BybitAPIKey == "" || cfg.Env.BybitAPISecret == "" {
			return nil, errors.New("BYBIT_API_KEY and BYBIT_API_SECRET environment variables must be set")
		}
		probe := "BTCUSDT"
		if len(cfg.Bots) > 0 {
			probe = cfg.Bots[0].Symbol
		}
		return clients.ConnectBybit(ctx, logger, clients.ConnectOptions{
			APIKey:    cfg.Env.BybitAPIKey,
			APISecret: cfg.Env.BybitAPISecret,
			Testnet:   cfg.Env.Testnet(),
		}, probe)
	case config.PlatformSimulate:
		market := exchange.NewBinance(clients.NewPublicBinanceClient(), logger)
		store, err := simstate.NewStore(filepath.Join(cfg.DataDir, "simulate"), "default")
		if err != nil {
			return nil, err
		}
		return exchange.NewSimulate(market, store, logger)
	default:
		return nil, errors.Errorf("unsupported platform %q", cfg.Platform)
	}
}
