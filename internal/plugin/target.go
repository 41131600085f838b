package plugin

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ErrInvalidTarget indicates a backend URL that cannot be resolved into
// a target.
var ErrInvalidTarget = errors.New("invalid target URL")

// Target is the resolved backend address for a request: scheme, host,
// optional explicit port, and the path remainder to forward. It is
// immutable once chosen for a request.
type Target struct {
	Scheme    string
	Hostname  string
	Port      int
	Remainder string
}

// ParseTarget resolves a backend URL string into a Target. The URL path
// (plus query, if any) becomes the remainder.
func ParseTarget(raw string) (*Target, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidTarget, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q: unsupported scheme", ErrInvalidTarget, raw)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: %q: missing hostname", ErrInvalidTarget, raw)
	}

	port := 0
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: bad port", ErrInvalidTarget, raw)
		}
	}

	remainder := u.Path
	if u.RawQuery != "" {
		remainder += "?" + u.RawQuery
	}

	return &Target{
		Scheme:    u.Scheme,
		Hostname:  u.Hostname(),
		Port:      port,
		Remainder: remainder,
	}, nil
}

// WithRemainder returns a copy of the target with the given path
// remainder.
func (t *Target) WithRemainder(remainder string) *Target {
	clone := *t
	clone.Remainder = remainder
	return &clone
}

// String renders the target as a URL, or "-" for a nil target, for use
// in access-log records.
func (t *Target) String() string {
	if t == nil {
		return "-"
	}
	var b strings.Builder
	b.WriteString(t.Scheme)
	b.WriteString("://")
	b.WriteString(t.Hostname)
	if t.Port != 0 {
		b.WriteString(":")
		b.WriteString(strconv.Itoa(t.Port))
	}
	b.WriteString(t.Remainder)
	return b.String()
}
