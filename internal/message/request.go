package message

import (
	"bytes"
	"fmt"
	"strings"
)

// Request is a mutable HTTP request built incrementally from wire bytes.
type Request struct {
	Method string
	Path   string
	Proto  string

	envelope
}

// NewRequest creates a complete in-memory request, mainly for plugins
// and tests that synthesize messages instead of parsing them.
func NewRequest(method, path string) *Request {
	return &Request{
		Method:   method,
		Path:     path,
		Proto:    "HTTP/1.1",
		envelope: envelope{st: stateComplete},
	}
}

// Parse feeds a raw chunk into the request parser.
func (r *Request) Parse(chunk []byte) error {
	return r.feed(chunk, r.parseRequestLine)
}

// parseRequestLine parses "METHOD /path HTTP/1.1".
func (r *Request) parseRequestLine(line string) error {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return fmt.Errorf("%w: %q", ErrMalformedStartLine, line)
	}
	r.Method = parts[0]
	r.Path = parts[1]
	r.Proto = parts[2]
	return nil
}

// Build serializes the request back to wire bytes.
func (r *Request) Build() []byte {
	var b bytes.Buffer
	path := r.Path
	if path == "" {
		path = "/"
	}
	proto := r.Proto
	if proto == "" {
		proto = "HTTP/1.1"
	}
	fmt.Fprintf(&b, "%s %s %s%s", r.Method, path, proto, crlf)
	r.writeHeaders(&b)
	b.Write(r.body)
	return b.Bytes()
}

// Reset clears the request for reading a new message on a reused
// connection.
func (r *Request) Reset() {
	r.Method = ""
	r.Path = ""
	r.Proto = ""
	r.reset()
}
