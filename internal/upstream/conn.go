package upstream

import (
	"net"
	"sync"
	"sync/atomic"
)

// Conn is an exclusively-held outbound connection to a backend. Close is
// idempotent: closing an already-closed connection is a no-op.
type Conn struct {
	net.Conn

	scheme string
	host   string
	port   int

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func newConn(raw net.Conn, scheme, host string, port int) *Conn {
	return &Conn{Conn: raw, scheme: scheme, host: host, port: port}
}

// Queue writes outbound bytes to the backend.
func (c *Conn) Queue(b []byte) error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	_, err := c.Write(b)
	return err
}

// Close closes the underlying connection. Subsequent calls return the
// first result.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.Conn.Close()
	})
	return c.closeErr
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	return c.closed.Load()
}

// Scheme returns the scheme this connection was established for. A
// plaintext conn and a TLS conn to the same backend are never
// interchangeable.
func (c *Conn) Scheme() string {
	return c.scheme
}

// Host returns the backend hostname this connection was dialed to.
func (c *Conn) Host() string {
	return c.host
}

// Port returns the backend port this connection was dialed to.
func (c *Conn) Port() int {
	return c.port
}

func (c *Conn) poolKey() string {
	return poolKey(c.scheme, c.host, c.port)
}
