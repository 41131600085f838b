// Package message implements an incremental HTTP/1.x message codec.
//
// Request and Response objects are built up from raw byte chunks via
// Parse, which may be called any number of times until the message is
// structurally complete. Build serializes the (possibly mutated) object
// back to wire bytes. The codec frames bodies by Content-Length or
// chunked transfer coding; it performs no semantic validation.
package message

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	crlf        = "\r\n"
	headerDelim = "\r\n\r\n"
)

// Parse errors.
var (
	// ErrMalformedStartLine indicates an unparseable request or status line.
	ErrMalformedStartLine = errors.New("malformed start line")

	// ErrMalformedHeader indicates an unparseable header line.
	ErrMalformedHeader = errors.New("malformed header")

	// ErrMalformedChunk indicates unparseable chunked transfer framing.
	ErrMalformedChunk = errors.New("malformed chunk framing")

	// ErrParseComplete indicates Parse was called on a complete message.
	ErrParseComplete = errors.New("message already complete")
)

// Header is a single ordered header field.
type Header struct {
	Name  string
	Value string
}

type parseState int

const (
	stateHead parseState = iota
	stateBody
	stateComplete
)

// envelope holds the parts shared by requests and responses: ordered
// headers, body bytes, and incremental parse state.
type envelope struct {
	headers []Header
	body    []byte

	st       parseState
	buf      []byte
	rest     []byte
	chunked  bool
	bodyLeft int
}

// Complete reports whether the message is structurally complete.
func (e *envelope) Complete() bool {
	return e.st == stateComplete
}

// Headers returns the ordered header fields.
func (e *envelope) Headers() []Header {
	return e.headers
}

// Header returns the first value for the named header, case-insensitive.
func (e *envelope) Header(name string) string {
	for _, h := range e.headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// SetHeader replaces the first occurrence of the named header or appends
// it if absent.
func (e *envelope) SetHeader(name, value string) {
	for i, h := range e.headers {
		if strings.EqualFold(h.Name, name) {
			e.headers[i].Value = value
			return
		}
	}
	e.headers = append(e.headers, Header{Name: name, Value: value})
}

// DelHeader removes every occurrence of the named header.
func (e *envelope) DelHeader(name string) {
	kept := e.headers[:0]
	for _, h := range e.headers {
		if !strings.EqualFold(h.Name, name) {
			kept = append(kept, h)
		}
	}
	e.headers = kept
}

// Body returns the raw body bytes accumulated so far. For chunked
// messages this is the still-encoded chunk stream.
func (e *envelope) Body() []byte {
	return e.body
}

// Rest returns bytes received beyond the end of this message, i.e. the
// start of a pipelined next message on the same connection. Meaningful
// once Complete reports true; the caller feeds it to a reset parser.
func (e *envelope) Rest() []byte {
	return e.rest
}

// SetBody replaces the body and updates the Content-Length header.
func (e *envelope) SetBody(body []byte) {
	e.body = body
	e.chunked = false
	e.DelHeader("Transfer-Encoding")
	e.SetHeader("Content-Length", strconv.Itoa(len(body)))
}

// feed appends a chunk and, once the header block is complete, hands the
// head to parseHead and frames the body.
func (e *envelope) feed(chunk []byte, parseHead func(line string) error) error {
	if e.st == stateComplete {
		return ErrParseComplete
	}
	e.buf = append(e.buf, chunk...)

	if e.st == stateHead {
		idx := bytes.Index(e.buf, []byte(headerDelim))
		if idx < 0 {
			return nil
		}
		head := string(e.buf[:idx])
		rest := e.buf[idx+len(headerDelim):]
		e.buf = nil

		lines := strings.Split(head, crlf)
		if len(lines) == 0 || lines[0] == "" {
			return ErrMalformedStartLine
		}
		if err := parseHead(lines[0]); err != nil {
			return err
		}
		for _, line := range lines[1:] {
			name, value, ok := strings.Cut(line, ":")
			if !ok {
				return fmt.Errorf("%w: %q", ErrMalformedHeader, line)
			}
			e.headers = append(e.headers, Header{
				Name:  strings.TrimSpace(name),
				Value: strings.TrimSpace(value),
			})
		}

		e.frameBody()
		e.st = stateBody
		return e.consumeBody(rest)
	}

	chunk = e.buf
	e.buf = nil
	return e.consumeBody(chunk)
}

// frameBody decides how the body is delimited from the parsed headers.
func (e *envelope) frameBody() {
	e.bodyLeft = 0
	if te := e.Header("Transfer-Encoding"); strings.Contains(strings.ToLower(te), "chunked") {
		e.chunked = true
		return
	}
	if cl := e.Header("Content-Length"); cl != "" {
		if n, err := strconv.Atoi(cl); err == nil && n > 0 {
			e.bodyLeft = n
		}
	}
}

// consumeBody appends body bytes and flips to complete once the framing
// is satisfied. Bytes beyond the end of the message land in rest.
func (e *envelope) consumeBody(chunk []byte) error {
	e.body = append(e.body, chunk...)

	if e.chunked {
		end, ok, err := chunkedEnd(e.body)
		if err != nil {
			return err
		}
		if ok {
			e.rest = e.body[end:]
			e.body = e.body[:end]
			e.st = stateComplete
		}
		return nil
	}

	if len(e.body) >= e.bodyLeft {
		e.rest = e.body[e.bodyLeft:]
		e.body = e.body[:e.bodyLeft]
		e.st = stateComplete
	}
	return nil
}

// chunkedEnd walks the chunk framing positionally and reports the index
// just past the CRLF that ends the trailer section. A false ok means
// the stream is not yet complete. Payload bytes that merely look like a
// terminator never end the stream early.
func chunkedEnd(b []byte) (int, bool, error) {
	i := 0
	for {
		nl := bytes.Index(b[i:], []byte(crlf))
		if nl < 0 {
			return 0, false, nil
		}
		line := string(b[i : i+nl])
		if semi := strings.IndexByte(line, ';'); semi >= 0 {
			line = line[:semi]
		}
		size, err := strconv.ParseInt(strings.TrimSpace(line), 16, 64)
		if err != nil || size < 0 {
			return 0, false, fmt.Errorf("%w: bad chunk size %q", ErrMalformedChunk, line)
		}
		i += nl + 2
		if size == 0 {
			break
		}
		next := i + int(size) + 2
		if next > len(b) {
			return 0, false, nil
		}
		if !bytes.Equal(b[next-2:next], []byte(crlf)) {
			return 0, false, fmt.Errorf("%w: chunk data not CRLF-terminated", ErrMalformedChunk)
		}
		i = next
	}

	// Trailer section: zero or more field lines, then a blank line.
	for {
		nl := bytes.Index(b[i:], []byte(crlf))
		if nl < 0 {
			return 0, false, nil
		}
		i += nl + 2
		if nl == 0 {
			return i, true, nil
		}
	}
}

// reset clears all parse state so the envelope can read a new message.
func (e *envelope) reset() {
	e.headers = nil
	e.body = nil
	e.buf = nil
	e.rest = nil
	e.chunked = false
	e.bodyLeft = 0
	e.st = stateHead
}

// writeHeaders serializes the header block including the trailing blank
// line.
func (e *envelope) writeHeaders(b *bytes.Buffer) {
	for _, h := range e.headers {
		b.WriteString(h.Name)
		b.WriteString(": ")
		b.WriteString(h.Value)
		b.WriteString(crlf)
	}
	b.WriteString(crlf)
}
