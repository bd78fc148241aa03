package exchange

import (
	"errors"
	"fmt"

	"perpdepth/internal/orderbook"
)

var (
	// ErrDecode marks malformed or structurally unexpected messages
	ErrDecode = errors.New("decode error")

	// ErrUnmapped marks messages for a symbol, contract or market that is not configured
	ErrUnmapped = errors.New("unmapped market")

	// ErrIgnored marks control frames and channels that carry no book data
	ErrIgnored = errors.New("ignored message")
)

// ConnectionError is a transport failure. It is surfaced to the supervisor
// and never fatal to the process.
type ConnectionError struct {
	Exchange ExchangeName
	Op       string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Exchange, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Decodef wraps ErrDecode with context
func Decodef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrDecode, fmt.Sprintf(format, args...))
}

// Unmappedf wraps ErrUnmapped with context
func Unmappedf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrUnmapped, fmt.Sprintf(format, args...))
}

// DropReason classifies a per-message error for metrics
func DropReason(err error) string {
	switch {
	case errors.Is(err, ErrIgnored):
		return "ignored"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrUnmapped):
		return "unmapped"
	case errors.Is(err, orderbook.ErrStaleBaseline):
		return "stale_baseline"
	default:
		return "other"
	}
}
