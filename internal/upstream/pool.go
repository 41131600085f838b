package upstream

import (
	"fmt"
	"sync"
)

// defaultMaxIdlePerHost bounds idle connections kept per backend.
const defaultMaxIdlePerHost = 4

// Pool keeps idle upstream connections for reuse across connection
// handlers. Acquire hands out an exclusively-held connection; Release
// returns it for reuse. All methods are safe for concurrent use.
type Pool struct {
	mu             sync.Mutex
	idle           map[string][]*Conn
	maxIdlePerHost int
	closed         bool
}

// PoolOption is a functional option for configuring the pool.
type PoolOption func(*Pool)

// WithMaxIdlePerHost sets the maximum idle connections kept per host.
func WithMaxIdlePerHost(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.maxIdlePerHost = n
		}
	}
}

// NewPool creates a new connection pool.
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		idle:           make(map[string][]*Conn),
		maxIdlePerHost: defaultMaxIdlePerHost,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// poolKey includes the scheme so a plaintext conn is never handed out
// for a TLS target at the same backend address.
func poolKey(scheme, host string, port int) string {
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

// Acquire returns an idle connection to the given backend, if any. The
// returned connection is exclusively owned by the caller.
func (p *Pool) Acquire(scheme, host string, port int) (*Conn, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := poolKey(scheme, host, port)
	conns := p.idle[key]
	for len(conns) > 0 {
		conn := conns[len(conns)-1]
		conns = conns[:len(conns)-1]
		if !conn.Closed() {
			p.idle[key] = conns
			return conn, true
		}
	}
	p.idle[key] = conns
	return nil, false
}

// Release returns a connection to the idle list. Closed connections and
// overflow beyond the per-host bound are discarded.
func (p *Pool) Release(conn *Conn) {
	if conn == nil || conn.Closed() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		_ = conn.Close()
		return
	}

	key := conn.poolKey()
	if len(p.idle[key]) >= p.maxIdlePerHost {
		_ = conn.Close()
		return
	}
	p.idle[key] = append(p.idle[key], conn)
}

// IdleCount returns the number of idle connections for a backend.
func (p *Pool) IdleCount(scheme, host string, port int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle[poolKey(scheme, host, port)])
}

// Close closes all idle connections and rejects further reuse.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	for key, conns := range p.idle {
		for _, conn := range conns {
			_ = conn.Close()
		}
		delete(p.idle, key)
	}
}
