package domain

import "github.com/pkg/errors"

// Error taxonomy shared by the streaming engine. Implementations wrap these
// sentinels so callers classify failures with errors.Is.
var (
	// ErrConnection transport or subscribe failure, recovered by reconnecting.
	ErrConnection = errors.New("connection error")
	// ErrMalformedTick payload without a usable price, the tick is skipped.
	ErrMalformedTick = errors.New("malformed tick")
	// ErrTickTimeout no tick arrived within the wait window.
	ErrTickTimeout = errors.New("tick wait timed out")
	// ErrOrder the exchange rejected or failed the order.
	ErrOrder = errors.New("order error")
	// ErrInvalidStepSize lot step size is not positive.
	ErrInvalidStepSize = errors.New("invalid step size")
	// ErrConfig trading pair configuration is unusable.
	ErrConfig = errors.New("config error")
	// ErrNotFound symbol or record is unknown.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyRunning a bot for the symbol is already running.
	ErrAlreadyRunning = errors.New("bot already running")
)

// IsFatal reports whether err must terminate the task of a single symbol.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfig) || errors.Is(err, ErrInvalidStepSize)
}
