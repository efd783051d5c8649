package stream

import "time"

// Default reconnect delays.
const (
	DefaultBackoffBase = 1 * time.Second
	DefaultBackoffMax  = 60 * time.Second
)

// Backoff doubles the reconnect delay after each failure up to max.
// Not safe for concurrent use, each supervisor owns one.
type Backoff struct {
	base    time.Duration
	max     time.Duration
	current time.Duration
}

// NewBackoff creates a backoff starting at base.
func NewBackoff(base, max time.Duration) *Backoff {
	if max < base {
		max = base
	}

	return &Backoff{base: base, max: max, current: base}
}

// Next returns the delay to wait now and doubles the following one.
func (b *Backoff) Next() time.Duration {
	d := b.current

	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}

	return d
}

// Current delay that the next failure will wait.
func (b *Backoff) Current() time.Duration {
	return b.current
}

// Reset restores the base delay. Called once a connection is established.
func (b *Backoff) Reset() {
	b.current = b.base
}
