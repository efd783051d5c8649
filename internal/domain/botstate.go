package domain

import "time"

// BotStatus lifecycle status of a bot in the registry.
type BotStatus string

const (
	BotRunning BotStatus = "RUNNING"
	BotStopped BotStatus = "STOPPED"
)

// StreamState state of the stream supervisor state machine.
type StreamState string

const (
	StateConnecting       StreamState = "CONNECTING"
	StateStreaming        StreamState = "STREAMING"
	StateRecoverableError StreamState = "RECOVERABLE_ERROR"
	StateStopped          StreamState = "STOPPED"
)

// BotRunState mutable per-task state owned by the supervisor goroutine.
type BotRunState struct {
	LastTradeTime  time.Time
	ReconnectDelay time.Duration
}

// BotSnapshot read-only view of a bot for status queries.
type BotSnapshot struct {
	Symbol         string        `json:"symbol"`
	Status         BotStatus     `json:"status"`
	State          StreamState   `json:"state"`
	User           string        `json:"user"`
	LastTradeTime  *time.Time    `json:"last_trade_time"`
	ReconnectDelay time.Duration `json:"reconnect_delay_ns"`
	LastError      string        `json:"last_error,omitempty"`
	StartedAt      time.Time     `json:"started_at"`
}
