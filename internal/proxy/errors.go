package proxy

import (
	"errors"
	"fmt"
)

// Sentinel errors for routing and forwarding.
var (
	// ErrRoutingAbort indicates a before-routing hook rejected the
	// request. Fatal for the connection.
	ErrRoutingAbort = errors.New("request rejected before routing")

	// ErrNoRouteMatched indicates no plugin route matched the request
	// path. Fatal for the request; surfaced as an error response.
	ErrNoRouteMatched = errors.New("no route matched")

	// ErrInvalidRouteEntry indicates a route entry that is neither a
	// static pair nor a resolvable pattern. A configuration error.
	ErrInvalidRouteEntry = errors.New("invalid route entry")
)

// RoutingError is a routing failure with request context.
type RoutingError struct {
	Op      string
	Method  string
	Path    string
	Pattern string
	Cause   error
}

// Error implements the error interface.
func (e *RoutingError) Error() string {
	msg := fmt.Sprintf("routing error [%s]", e.Op)
	if e.Method != "" || e.Path != "" {
		msg += fmt.Sprintf(" %s %s", e.Method, e.Path)
	}
	if e.Pattern != "" {
		msg += fmt.Sprintf(" pattern=%q", e.Pattern)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *RoutingError) Unwrap() error {
	return e.Cause
}

// NewRoutingAbortError creates an error for a rejected request.
func NewRoutingAbortError(method, path string) *RoutingError {
	return &RoutingError{
		Op:     "before_routing",
		Method: method,
		Path:   path,
		Cause:  ErrRoutingAbort,
	}
}

// NewNoRouteMatchedError creates an error for an unmatched request path.
func NewNoRouteMatchedError(method, path string) *RoutingError {
	return &RoutingError{
		Op:     "match_route",
		Method: method,
		Path:   path,
		Cause:  ErrNoRouteMatched,
	}
}

// NewInvalidRouteEntryError creates an error for a malformed route
// entry.
func NewInvalidRouteEntryError(pattern string, cause error) *RoutingError {
	return &RoutingError{
		Op:      "compile_route",
		Pattern: pattern,
		Cause:   fmt.Errorf("%w: %w", ErrInvalidRouteEntry, cause),
	}
}
