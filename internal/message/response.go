package message

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Response is a mutable HTTP response built incrementally from wire
// bytes. Bodies are framed by Content-Length or chunked coding; a
// response advertising neither is treated as complete at the end of its
// header block.
type Response struct {
	Proto      string
	StatusCode int
	Reason     string

	envelope
}

// NewResponse creates a complete in-memory response.
func NewResponse(statusCode int, reason string) *Response {
	return &Response{
		Proto:      "HTTP/1.1",
		StatusCode: statusCode,
		Reason:     reason,
		envelope:   envelope{st: stateComplete},
	}
}

// Parse feeds a raw chunk into the response parser.
func (r *Response) Parse(chunk []byte) error {
	return r.feed(chunk, r.parseStatusLine)
}

// parseStatusLine parses "HTTP/1.1 200 OK". The reason phrase may be
// empty.
func (r *Response) parseStatusLine(line string) error {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return fmt.Errorf("%w: %q", ErrMalformedStartLine, line)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return fmt.Errorf("%w: %q", ErrMalformedStartLine, line)
	}
	r.Proto = parts[0]
	r.StatusCode = code
	if len(parts) == 3 {
		r.Reason = parts[2]
	}
	return nil
}

// Build serializes the response back to wire bytes.
func (r *Response) Build() []byte {
	var b bytes.Buffer
	proto := r.Proto
	if proto == "" {
		proto = "HTTP/1.1"
	}
	if r.Reason != "" {
		fmt.Fprintf(&b, "%s %d %s%s", proto, r.StatusCode, r.Reason, crlf)
	} else {
		fmt.Fprintf(&b, "%s %d%s", proto, r.StatusCode, crlf)
	}
	r.writeHeaders(&b)
	b.Write(r.body)
	return b.Bytes()
}

// Reset clears the response for reading the next message on the same
// upstream connection.
func (r *Response) Reset() {
	r.Proto = ""
	r.StatusCode = 0
	r.Reason = ""
	r.reset()
}
