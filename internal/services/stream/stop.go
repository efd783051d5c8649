package stream

import "sync"

// StopSignal is a one-shot stop flag that can be polled or waited on.
type StopSignal struct {
	once sync.Once
	ch   chan struct{}
}

// NewStopSignal creates an unset signal.
func NewStopSignal() *StopSignal {
	return &StopSignal{ch: make(chan struct{})}
}

// Request sets the flag. Safe to call many times from any goroutine.
func (s *StopSignal) Request() {
	s.once.Do(func() {
		close(s.ch)
	})
}

// Requested reports whether stop was requested.
func (s *StopSignal) Requested() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// Done is closed once stop is requested.
func (s *StopSignal) Done() <-chan struct{} {
	return s.ch
}
