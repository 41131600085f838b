// Package upstream establishes and reuses outbound connections to
// resolved backend targets, performing plain TCP connect or a TLS client
// handshake as the target scheme requires.
package upstream

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vyrodovalexey/avrproxy/internal/observability"
)

// SchemeHTTPS is the secure scheme triggering a TLS upgrade.
const SchemeHTTPS = "https"

const defaultDialTimeout = 10 * time.Second

// DialFunc dials a raw network connection. It matches the signature of
// net.Dialer.DialContext so tests can substitute their own transport.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Connector produces usable outbound connections for resolved targets.
// It owns no long-term state beyond the shared pool and per-host circuit
// breakers.
type Connector struct {
	pool        *Pool
	dial        DialFunc
	dialTimeout time.Duration
	caFile      string
	logger      observability.Logger

	caOnce  sync.Once
	rootCAs *x509.CertPool
	caErr   error

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker

	breakerFailures uint32
	breakerTimeout  time.Duration
}

// ConnectorOption is a functional option for configuring the connector.
type ConnectorOption func(*Connector)

// WithPool sets the shared connection pool.
func WithPool(pool *Pool) ConnectorOption {
	return func(c *Connector) {
		c.pool = pool
	}
}

// WithDialFunc sets the dial function.
func WithDialFunc(dial DialFunc) ConnectorOption {
	return func(c *Connector) {
		c.dial = dial
	}
}

// WithDialTimeout sets the dial timeout.
func WithDialTimeout(timeout time.Duration) ConnectorOption {
	return func(c *Connector) {
		if timeout > 0 {
			c.dialTimeout = timeout
		}
	}
}

// WithCAFile sets the CA bundle used to validate upstream certificates.
// When empty the system pool is used.
func WithCAFile(path string) ConnectorOption {
	return func(c *Connector) {
		c.caFile = path
	}
}

// WithConnectorLogger sets the logger for the connector.
func WithConnectorLogger(logger observability.Logger) ConnectorOption {
	return func(c *Connector) {
		c.logger = logger
	}
}

// WithBreakerSettings tunes the per-host circuit breaker: trip after the
// given number of consecutive dial failures, retry after timeout.
func WithBreakerSettings(failures uint32, timeout time.Duration) ConnectorOption {
	return func(c *Connector) {
		if failures > 0 {
			c.breakerFailures = failures
		}
		if timeout > 0 {
			c.breakerTimeout = timeout
		}
	}
}

// NewConnector creates a new upstream connector.
func NewConnector(opts ...ConnectorOption) *Connector {
	c := &Connector{
		dialTimeout:     defaultDialTimeout,
		logger:          observability.NopLogger(),
		breakers:        make(map[string]*gobreaker.CircuitBreaker),
		breakerFailures: 5,
		breakerTimeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dial == nil {
		dialer := &net.Dialer{Timeout: c.dialTimeout}
		c.dial = dialer.DialContext
	}
	return c
}

// Connect acquires or establishes a connection to host:port, upgrading
// to TLS for the secure scheme. Connection refusal is reported as a
// RefusedError, TLS failure as a TLSError.
func (c *Connector) Connect(ctx context.Context, scheme, host string, port int) (*Conn, error) {
	if c.pool != nil {
		if conn, ok := c.pool.Acquire(scheme, host, port); ok {
			c.logger.Debug("reusing pooled upstream connection",
				observability.String("host", host),
				observability.Int("port", port),
			)
			return conn, nil
		}
	}

	breaker := c.breakerFor(host, port)
	result, err := breaker.Execute(func() (interface{}, error) {
		return c.connect(ctx, scheme, host, port)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s:%d", ErrCircuitOpen, host, port)
		}
		return nil, err
	}
	return result.(*Conn), nil
}

// Release returns an exclusively-held connection to the pool, or closes
// it when no pool is configured.
func (c *Connector) Release(conn *Conn) {
	if conn == nil {
		return
	}
	if c.pool == nil {
		_ = conn.Close()
		return
	}
	c.pool.Release(conn)
}

func (c *Connector) connect(ctx context.Context, scheme, host string, port int) (*Conn, error) {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))

	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	raw, err := c.dial(dialCtx, "tcp", addr)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return nil, &RefusedError{Host: host, Port: port, Cause: err}
		}
		return nil, fmt.Errorf("dial upstream %s: %w", addr, err)
	}

	if scheme == SchemeHTTPS {
		raw, err = c.upgradeTLS(ctx, raw, host)
		if err != nil {
			return nil, err
		}
	}

	c.logger.Debug("connected to upstream",
		observability.String("address", addr),
		observability.String("scheme", scheme),
	)
	return newConn(raw, scheme, host, port), nil
}

// upgradeTLS performs the client handshake against the target hostname,
// validating against the configured CA bundle.
func (c *Connector) upgradeTLS(ctx context.Context, raw net.Conn, host string) (net.Conn, error) {
	roots, err := c.loadRootCAs()
	if err != nil {
		_ = raw.Close()
		return nil, err
	}

	tlsConn := tls.Client(raw, &tls.Config{
		ServerName: host,
		RootCAs:    roots,
		MinVersion: tls.VersionTLS12,
	})
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = raw.Close()
		return nil, &TLSError{Host: host, Cause: err}
	}
	return tlsConn, nil
}

// loadRootCAs reads the CA bundle once. A nil pool means the system
// roots.
func (c *Connector) loadRootCAs() (*x509.CertPool, error) {
	c.caOnce.Do(func() {
		if c.caFile == "" {
			return
		}
		pem, err := os.ReadFile(c.caFile)
		if err != nil {
			c.caErr = fmt.Errorf("read ca bundle %s: %w", c.caFile, err)
			return
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			c.caErr = fmt.Errorf("ca bundle %s contains no certificates", c.caFile)
			return
		}
		c.rootCAs = pool
	})
	return c.rootCAs, c.caErr
}

// breakerFor returns the circuit breaker for a backend, creating it on
// first use.
func (c *Connector) breakerFor(host string, port int) *gobreaker.CircuitBreaker {
	key := net.JoinHostPort(host, fmt.Sprintf("%d", port))

	c.mu.Lock()
	defer c.mu.Unlock()

	if breaker, ok := c.breakers[key]; ok {
		return breaker
	}

	failures := c.breakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    key,
		Timeout: c.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
	})
	c.breakers[key] = breaker
	return breaker
}
