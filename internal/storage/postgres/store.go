// Package postgres is the relational persistence collaborator: trading pair
// configuration, the executed order log and observed prices.
package postgres

import (
	"context"
	"database/sql"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/tickbot/internal/domain"
)

const (
	maxOpenConns    = 10
	maxIdleConns    = 5
	connMaxLifetime = 30 * time.Minute
)

const schema = `
CREATE TABLE IF NOT EXISTS trading_pairs (
	id                 BIGSERIAL PRIMARY KEY,
	symbol             TEXT NOT NULL,
	quote              TEXT NOT NULL,
	buy_threshold      DOUBLE PRECISION NOT NULL DEFAULT 0.98,
	sell_threshold     DOUBLE PRECISION NOT NULL DEFAULT 1.02,
	quantity           NUMERIC NOT NULL DEFAULT 0,
	window_size        INTEGER NOT NULL DEFAULT 10,
	cooldown_seconds   INTEGER NOT NULL DEFAULT 300,
	max_volatility     DOUBLE PRECISION NOT NULL DEFAULT 0.02,
	allocation_percent NUMERIC NOT NULL DEFAULT 10,
	user_id            TEXT NOT NULL DEFAULT '',
	UNIQUE (symbol, user_id)
);

CREATE TABLE IF NOT EXISTS orders (
	id                TEXT PRIMARY KEY,
	symbol            TEXT NOT NULL,
	side              TEXT NOT NULL,
	price             NUMERIC NOT NULL,
	avg_price         NUMERIC NOT NULL,
	quantity          NUMERIC NOT NULL,
	percent_change    DOUBLE PRECISION NOT NULL,
	threshold         DOUBLE PRECISION NOT NULL,
	"timestamp"       TIMESTAMPTZ NOT NULL,
	user_id           TEXT NOT NULL DEFAULT '',
	result            TEXT NOT NULL,
	exchange_order_id TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS prices (
	id          BIGSERIAL PRIMARY KEY,
	symbol      TEXT NOT NULL,
	price       NUMERIC NOT NULL,
	"timestamp" TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS prices_symbol_ts_idx ON prices (symbol, "timestamp" DESC);
`

type pairRow struct {
	Symbol            string          `db:"symbol"`
	Quote             string          `db:"quote"`
	BuyThreshold      float64         `db:"buy_threshold"`
	SellThreshold     float64         `db:"sell_threshold"`
	Quantity          decimal.Decimal `db:"quantity"`
	WindowSize        int             `db:"window_size"`
	CooldownSeconds   int             `db:"cooldown_seconds"`
	MaxVolatility     float64         `db:"max_volatility"`
	AllocationPercent decimal.Decimal `db:"allocation_percent"`
	UserID            string          `db:"user_id"`
}

func (r pairRow) config() domain.TradingPairConfig {
	return domain.TradingPairConfig{
		Symbol:            r.Symbol,
		QuoteAsset:        r.Quote,
		BuyThreshold:      r.BuyThreshold,
		SellThreshold:     r.SellThreshold,
		QuantityHint:      r.Quantity,
		WindowSize:        r.WindowSize,
		CooldownSeconds:   r.CooldownSeconds,
		MaxVolatility:     r.MaxVolatility,
		AllocationPercent: r.AllocationPercent,
		OwnerUserID:       r.UserID,
	}
}

// Store implements configuration loading, order recording and price storage on Postgres.
type Store struct {
	db *sqlx.DB
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}

	return &Store{db: db}, nil
}

// NewStore wraps an existing connection pool.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the tables when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "migrate schema")
	}

	return nil
}

// LoadConfig returns the trading pair of user for symbol.
func (s *Store) LoadConfig(ctx context.Context, symbol, user string) (domain.TradingPairConfig, error) {
	const query = `
		SELECT symbol, quote, buy_threshold, sell_threshold, quantity, window_size,
		       cooldown_seconds, max_volatility, allocation_percent, user_id
		FROM trading_pairs
		WHERE symbol = $1 AND user_id = $2
	`

	var row pairRow
	err := s.db.GetContext(ctx, &row, query, strings.ToUpper(symbol), user)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TradingPairConfig{}, errors.Wrapf(domain.ErrNotFound, "trading pair %s for user %q", symbol, user)
	}
	if err != nil {
		return domain.TradingPairConfig{}, errors.Wrapf(err, "load trading pair %s", symbol)
	}

	return row.config(), nil
}

// SaveConfig inserts or updates a trading pair.
func (s *Store) SaveConfig(ctx context.Context, cfg domain.TradingPairConfig) error {
	const query = `
		INSERT INTO trading_pairs (symbol, quote, buy_threshold, sell_threshold, quantity, window_size,
		                           cooldown_seconds, max_volatility, allocation_percent, user_id)
		VALUES (:symbol, :quote, :buy_threshold, :sell_threshold, :quantity, :window_size,
		        :cooldown_seconds, :max_volatility, :allocation_percent, :user_id)
		ON CONFLICT (symbol, user_id) DO UPDATE SET
			quote = EXCLUDED.quote,
			buy_threshold = EXCLUDED.buy_threshold,
			sell_threshold = EXCLUDED.sell_threshold,
			quantity = EXCLUDED.quantity,
			window_size = EXCLUDED.window_size,
			cooldown_seconds = EXCLUDED.cooldown_seconds,
			max_volatility = EXCLUDED.max_volatility,
			allocation_percent = EXCLUDED.allocation_percent
	`

	row := pairRow{
		Symbol:            strings.ToUpper(cfg.Symbol),
		Quote:             cfg.QuoteAsset,
		BuyThreshold:      cfg.BuyThreshold,
		SellThreshold:     cfg.SellThreshold,
		Quantity:          cfg.QuantityHint,
		WindowSize:        cfg.WindowSize,
		CooldownSeconds:   cfg.CooldownSeconds,
		MaxVolatility:     cfg.MaxVolatility,
		AllocationPercent: cfg.AllocationPercent,
		UserID:            cfg.OwnerUserID,
	}

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return errors.Wrapf(err, "save trading pair %s", cfg.Symbol)
	}

	return nil
}

// RecordOrder inserts an executed order and returns its id.
func (s *Store) RecordOrder(ctx context.Context, order domain.OrderRecord) (string, error) {
	const query = `
		INSERT INTO orders (id, symbol, side, price, avg_price, quantity, percent_change, threshold,
		                    "timestamp", user_id, result, exchange_order_id)
		VALUES (:id, :symbol, :side, :price, :avg_price, :quantity, :percent_change, :threshold,
		        :timestamp, :user_id, :result, :exchange_order_id)
	`

	if order.ID == "" {
		order.ID = uuid.NewString()
	}

	if _, err := s.db.NamedExecContext(ctx, query, order); err != nil {
		return "", errors.Wrapf(err, "record %s order for %s", order.Side, order.Symbol)
	}

	return order.ID, nil
}

// OrderHistory returns up to limit latest orders of symbol, newest first.
func (s *Store) OrderHistory(ctx context.Context, symbol string, limit int) ([]domain.OrderRecord, error) {
	const query = `
		SELECT id, symbol, side, price, avg_price, quantity, percent_change, threshold,
		       "timestamp", user_id, result, exchange_order_id
		FROM orders
		WHERE symbol = $1
		ORDER BY "timestamp" DESC
		LIMIT $2
	`

	if limit <= 0 {
		limit = math.MaxInt32
	}

	var out []domain.OrderRecord
	if err := s.db.SelectContext(ctx, &out, query, symbol, limit); err != nil {
		return nil, errors.Wrapf(err, "select orders of %s", symbol)
	}

	return out, nil
}

// SavePrice stores an observed price.
func (s *Store) SavePrice(ctx context.Context, point domain.PricePoint) error {
	const query = `INSERT INTO prices (symbol, price, "timestamp") VALUES ($1, $2, $3)`

	if _, err := s.db.ExecContext(ctx, query, point.Symbol, point.Price, point.Timestamp.UTC()); err != nil {
		return errors.Wrapf(err, "save price of %s", point.Symbol)
	}

	return nil
}

// RecentPrices returns up to n latest prices of symbol, oldest first.
func (s *Store) RecentPrices(ctx context.Context, symbol string, n int) ([]domain.PricePoint, error) {
	if n <= 0 {
		return nil, nil
	}

	const query = `
		SELECT "timestamp", symbol, price FROM (
			SELECT "timestamp", symbol, price
			FROM prices
			WHERE symbol = $1
			ORDER BY "timestamp" DESC
			LIMIT $2
		) recent
		ORDER BY "timestamp" ASC
	`

	var out []domain.PricePoint
	if err := s.db.SelectContext(ctx, &out, query, symbol, n); err != nil {
		return nil, errors.Wrapf(err, "select recent prices of %s", symbol)
	}

	return out, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
