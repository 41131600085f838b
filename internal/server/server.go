package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/avrproxy/internal/observability"
	"github.com/vyrodovalexey/avrproxy/internal/plugin"
	"github.com/vyrodovalexey/avrproxy/internal/proxy"
	"github.com/vyrodovalexey/avrproxy/internal/upstream"
)

// Default timing values for the accept loop and shutdown.
const (
	DefaultAcceptDeadline = 500 * time.Millisecond
	DefaultShutdownGrace  = 10 * time.Second
)

// Config holds the listener configuration.
type Config struct {
	// Address is the listen address, e.g. ":8899".
	Address string

	// TLS enables TLS termination when non-nil.
	TLS *tls.Config

	// MaxConnections caps concurrent client connections.
	MaxConnections int

	// AcceptRate limits accepted connections per second. Zero means
	// unlimited.
	AcceptRate float64

	// AcceptBurst is the burst size for the accept rate limiter.
	AcceptBurst int

	// ReadTimeout bounds each read from a client connection.
	ReadTimeout time.Duration

	// ShutdownGrace bounds the wait for active connections on Stop.
	ShutdownGrace time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Address:        ":8899",
		MaxConnections: 1024,
		AcceptBurst:    64,
		ShutdownGrace:  DefaultShutdownGrace,
	}
}

// Server accepts client connections and runs a connection loop with a
// fresh plugin chain for each one.
type Server struct {
	config      *Config
	factories   []plugin.Factory
	connector   *upstream.Connector
	pool        *upstream.Pool
	routerOpts  []proxy.RouterOption
	handlerOpts []proxy.HandlerOption
	logger      observability.Logger
	tracker     *ConnectionTracker
	limiter     *rate.Limiter

	listener net.Listener
	wg       sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	stopCh   chan struct{}
	cancel   context.CancelFunc
}

// Option is a functional option for configuring the server.
type Option func(*Server)

// WithServerLogger sets the logger for the server.
func WithServerLogger(logger observability.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRouterOptions sets the options applied to each per-connection
// router.
func WithRouterOptions(opts ...proxy.RouterOption) Option {
	return func(s *Server) {
		s.routerOpts = opts
	}
}

// WithHandlerOptions sets the options applied to each per-connection
// handler.
func WithHandlerOptions(opts ...proxy.HandlerOption) Option {
	return func(s *Server) {
		s.handlerOpts = opts
	}
}

// NewServer creates a server over the given plugin factories and
// upstream connector.
func NewServer(
	config *Config,
	factories []plugin.Factory,
	connector *upstream.Connector,
	pool *upstream.Pool,
	opts ...Option,
) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	s := &Server{
		config:    config,
		factories: factories,
		connector: connector,
		pool:      pool,
		logger:    observability.NopLogger(),
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.tracker = NewConnectionTracker(config.MaxConnections, s.logger)
	if config.AcceptRate > 0 {
		burst := config.AcceptBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(config.AcceptRate), burst)
	}
	return s
}

// Start listens and runs the accept loop until the context is
// cancelled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}

	listener, err := s.listen(ctx)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	s.listener = listener
	s.cancel = cancel
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("starting proxy server",
		observability.String("address", s.config.Address),
		observability.Bool("tls", s.config.TLS != nil),
		observability.Int("max_connections", s.config.MaxConnections),
		observability.Float64("accept_rate", s.config.AcceptRate),
	)

	return s.acceptLoop(serverCtx)
}

func (s *Server) listen(ctx context.Context) (net.Listener, error) {
	if s.config.TLS != nil {
		return tls.Listen("tcp", s.config.Address, s.config.TLS)
	}
	lc := &net.ListenConfig{}
	return lc.Listen(ctx, "tcp", s.config.Address)
}

// Addr returns the bound listener address, or nil when not running.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) acceptLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		default:
		}

		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		s.setAcceptDeadline(DefaultAcceptDeadline)
		conn, err := s.listener.Accept()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.stopCh:
				return nil
			default:
				s.logger.Error("accept error", observability.Error(err))
				continue
			}
		}

		getServerMetrics().acceptedTotal.Inc()
		s.spawn(ctx, conn)
	}
}

// setAcceptDeadline bounds Accept so the loop can observe shutdown.
func (s *Server) setAcceptDeadline(d time.Duration) {
	type deadliner interface{ SetDeadline(time.Time) error }
	if l, ok := s.listener.(deadliner); ok {
		_ = l.SetDeadline(time.Now().Add(d))
	}
}

func (s *Server) spawn(ctx context.Context, conn net.Conn) {
	tracked, err := s.tracker.Add(conn)
	if err != nil {
		getServerMetrics().rejectedTotal.Inc()
		s.logger.Warn("connection rejected",
			observability.String("remote_addr", conn.RemoteAddr().String()),
			observability.Error(err),
		)
		_ = conn.Close()
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.tracker.Remove(tracked.ID)

		writer := &clientWriter{conn: conn, logger: s.logger}
		plugins := make([]plugin.Plugin, 0, len(s.factories))
		for _, factory := range s.factories {
			plugins = append(plugins, factory(plugin.ConnContext{
				ID:     tracked.ID,
				Client: writer,
				Pool:   s.pool,
			}))
		}

		router := proxy.NewRouter(plugins, s.routerOpts...)
		handler := proxy.NewHandler(tracked.ID, plugins, router, s.connector, writer,
			append([]proxy.HandlerOption{proxy.WithHandlerLogger(s.logger)}, s.handlerOpts...)...,
		)

		NewConnection(tracked.ID, conn, handler, s.logger, s.config.ReadTimeout).Serve(ctx)
	}()
}

// Stop shuts the server down, waiting up to the shutdown grace for
// active connections before force-closing them.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	grace := s.config.ShutdownGrace
	if grace <= 0 {
		grace = DefaultShutdownGrace
	}
	if s.cancel != nil {
		s.cancel()
	}
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	listener := s.listener
	s.mu.Unlock()

	if listener != nil {
		_ = listener.Close()
	}

	if ctx == nil {
		ctx = context.Background()
	}
	graceCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("all connections closed gracefully")
	case <-graceCtx.Done():
		s.logger.Warn("shutdown grace elapsed, force closing connections",
			observability.Int("remaining", s.tracker.Count()),
		)
		s.tracker.CloseAll()
		<-done
	}

	s.logger.Info("proxy server stopped")
	return nil
}

// IsRunning reports whether the server is accepting connections.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// ActiveConnections returns the number of active client connections.
func (s *Server) ActiveConnections() int {
	return s.tracker.Count()
}
