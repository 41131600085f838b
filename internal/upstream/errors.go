package upstream

import (
	"errors"
	"fmt"
)

// Sentinel errors for upstream operations.
var (
	// ErrConnectionRefused indicates the backend actively refused the
	// connection.
	ErrConnectionRefused = errors.New("upstream connection refused")

	// ErrTLSHandshake indicates the TLS client handshake with the
	// backend failed.
	ErrTLSHandshake = errors.New("upstream tls handshake failed")

	// ErrCircuitOpen indicates the per-host circuit breaker rejected the
	// dial attempt.
	ErrCircuitOpen = errors.New("upstream circuit breaker open")

	// ErrConnClosed indicates a write on a closed upstream connection.
	ErrConnClosed = errors.New("upstream connection closed")
)

// RefusedError reports a refused connection, carrying the target host
// and port so callers can surface them.
type RefusedError struct {
	Host  string
	Port  int
	Cause error
}

// Error implements the error interface.
func (e *RefusedError) Error() string {
	return fmt.Sprintf("connection refused by upstream server %s:%d", e.Host, e.Port)
}

// Unwrap returns the underlying error.
func (e *RefusedError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *RefusedError) Is(target error) bool {
	return target == ErrConnectionRefused || errors.Is(e.Cause, target)
}

// TLSError reports a failed TLS handshake with a backend.
type TLSError struct {
	Host  string
	Cause error
}

// Error implements the error interface.
func (e *TLSError) Error() string {
	return fmt.Sprintf("tls handshake with upstream %s failed: %v", e.Host, e.Cause)
}

// Unwrap returns the underlying error.
func (e *TLSError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *TLSError) Is(target error) bool {
	return target == ErrTLSHandshake || errors.Is(e.Cause, target)
}
