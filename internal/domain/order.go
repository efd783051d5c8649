package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderResultSuccess result stored for every executed order.
const OrderResultSuccess = "success"

// OrderRecord append-only journal entry of an executed order.
type OrderRecord struct {
	ID            string          `json:"id" db:"id"`
	Symbol        string          `json:"symbol" db:"symbol"`
	Side          string          `json:"side" db:"side"`
	Price         decimal.Decimal `json:"price" db:"price"`
	AvgPrice      decimal.Decimal `json:"avg_price" db:"avg_price"`
	Quantity      decimal.Decimal `json:"quantity" db:"quantity"`
	PercentChange float64         `json:"percent_change" db:"percent_change"`
	Threshold     float64         `json:"threshold" db:"threshold"`
	Timestamp     time.Time       `json:"timestamp" db:"timestamp"`
	User          string          `json:"user" db:"user_id"`
	Result        string          `json:"result" db:"result"`
	// ExchangeOrderID is the identifier assigned by the exchange, empty for paper fills.
	ExchangeOrderID string `json:"exchange_order_id,omitempty" db:"exchange_order_id"`
}

// OrderReceipt what the exchange reports back after a market order fill.
type OrderReceipt struct {
	OrderID  string
	Quantity decimal.Decimal
	// Price is the average fill price when known, zero otherwise.
	Price decimal.Decimal
}

// OrderEvent order record with its position in the order journal.
type OrderEvent struct {
	Index uint64      `json:"index"`
	Order OrderRecord `json:"order"`
}
