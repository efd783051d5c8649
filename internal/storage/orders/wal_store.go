// Package orders is the append-only journal of executed orders.
package orders

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/tickbot/internal/domain"
)

const (
	DefaultDir   = "./wal/orders"
	segmentLimit = 1000
	maxSegments  = 100

	orderKeyPrefix = "order_"
)

// WALStore persists order records in a WAL.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore initializes a WAL-backed order journal.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "orders_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init order WAL")
	}

	return &WALStore{wal: wal}, nil
}

// RecordOrder appends order to the journal and returns its id.
// Orders without an id get the journal index as id.
func (s *WALStore) RecordOrder(_ context.Context, order domain.OrderRecord) (string, error) {
	if order.Symbol == "" {
		return "", errors.New("order symbol is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.wal.CurrentIndex() + 1
	if order.ID == "" {
		order.ID = strconv.FormatUint(idx, 10)
	}

	payload, err := json.Marshal(domain.OrderEvent{Index: idx, Order: order})
	if err != nil {
		return "", errors.Wrap(err, "marshal order")
	}

	if err := s.wal.Write(idx, orderKeyPrefix+order.Symbol, payload); err != nil {
		return "", errors.Wrap(err, "write order to WAL")
	}

	return order.ID, nil
}

// OrdersAfter returns all orders written after the provided journal index.
func (s *WALStore) OrdersAfter(index uint64) ([]domain.OrderEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.wal.CurrentIndex() <= index {
		return nil, nil
	}

	var events []domain.OrderEvent
	for msg := range s.wal.Iterator() {
		if !strings.HasPrefix(msg.Key, orderKeyPrefix) {
			continue
		}

		var event domain.OrderEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return nil, errors.Wrap(err, "decode order")
		}
		if event.Index > index {
			events = append(events, event)
		}
	}

	return events, nil
}

// OrderHistory returns up to limit latest orders of symbol, newest first.
func (s *WALStore) OrderHistory(_ context.Context, symbol string, limit int) ([]domain.OrderRecord, error) {
	events, err := s.OrdersAfter(0)
	if err != nil {
		return nil, err
	}

	var out []domain.OrderRecord
	for i := len(events) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if events[i].Order.Symbol == symbol {
			out = append(out, events[i].Order)
		}
	}

	return out, nil
}

// CurrentIndex returns the latest journal index.
func (s *WALStore) CurrentIndex() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
