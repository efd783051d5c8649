// Package prices keeps the observed price log in a WAL so the signal window
// can be restored after a restart.
package prices

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/tickbot/internal/domain"
)

const (
	DefaultDir   = "./wal/prices"
	segmentLimit = 5000
	maxSegments  = 20

	priceKeyPrefix = "price_"
)

type priceEntry struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// WALStore persists price points in a WAL.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore initializes a WAL-backed price log.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "prices_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: false,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init price WAL")
	}

	return &WALStore{wal: wal}, nil
}

// SavePrice appends a price point to the log.
func (s *WALStore) SavePrice(_ context.Context, point domain.PricePoint) error {
	payload, err := json.Marshal(priceEntry{
		Symbol:    point.Symbol,
		Price:     point.Price,
		Timestamp: point.Timestamp.UTC(),
	})
	if err != nil {
		return errors.Wrap(err, "marshal price")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.wal.Write(s.wal.CurrentIndex()+1, priceKeyPrefix+point.Symbol, payload); err != nil {
		return errors.Wrap(err, "write price to WAL")
	}

	return nil
}

// RecentPrices returns up to n latest points of symbol, oldest first.
func (s *WALStore) RecentPrices(ctx context.Context, symbol string, n int) ([]domain.PricePoint, error) {
	if n <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	key := priceKeyPrefix + symbol
	ring := make([]domain.PricePoint, 0, n)
	head := 0

	for msg := range s.wal.Iterator() {
		if msg.Key != key {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var entry priceEntry
		if err := json.Unmarshal(msg.Value, &entry); err != nil {
			return nil, errors.Wrap(err, "decode price")
		}

		point := domain.PricePoint{Symbol: entry.Symbol, Price: entry.Price, Timestamp: entry.Timestamp}
		if len(ring) < n {
			ring = append(ring, point)
			continue
		}
		ring[head] = point
		head = (head + 1) % n
	}

	out := make([]domain.PricePoint, 0, len(ring))
	out = append(out, ring[head:]...)
	out = append(out, ring[:head]...)

	return out, nil
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
