// Package statuscache mirrors bot status snapshots into Redis so other
// processes can read them without talking to the bot host.
package statuscache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/tickbot/internal/domain"
)

const (
	DefaultPrefix = "tickbot:status:"
	// DefaultTTL keeps stale entries of crashed processes from living forever.
	DefaultTTL = 24 * time.Hour
)

// Cache stores snapshots as JSON under prefix+symbol.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// Option configures the Cache.
type Option func(*Cache)

// WithPrefix overrides the key prefix.
func WithPrefix(prefix string) Option {
	return func(c *Cache) {
		c.prefix = prefix
	}
}

// WithTTL overrides the entry expiration.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// New connects to redis at addr.
func New(ctx context.Context, addr, password string, db int, opts ...Option) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "ping redis at %s", addr)
	}

	return NewWithClient(client, opts...), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, opts ...Option) *Cache {
	c := &Cache{
		client: client,
		prefix: DefaultPrefix,
		ttl:    DefaultTTL,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// PublishStatus stores snapshot.
func (c *Cache) PublishStatus(ctx context.Context, snapshot domain.BotSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}

	if err := c.client.Set(ctx, c.key(snapshot.Symbol), data, c.ttl).Err(); err != nil {
		return errors.Wrapf(err, "store status of %s", snapshot.Symbol)
	}

	return nil
}

// Get returns the last published snapshot of symbol.
func (c *Cache) Get(ctx context.Context, symbol string) (domain.BotSnapshot, error) {
	data, err := c.client.Get(ctx, c.key(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.BotSnapshot{}, errors.Wrapf(domain.ErrNotFound, "status of %s", symbol)
	}
	if err != nil {
		return domain.BotSnapshot{}, errors.Wrapf(err, "read status of %s", symbol)
	}

	var snapshot domain.BotSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return domain.BotSnapshot{}, errors.Wrap(err, "decode snapshot")
	}

	return snapshot, nil
}

// Delete removes the snapshot of symbol.
func (c *Cache) Delete(ctx context.Context, symbol string) error {
	return c.client.Del(ctx, c.key(symbol)).Err()
}

// Close closes the redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) key(symbol string) string {
	return c.prefix + strings.ToUpper(symbol)
}
