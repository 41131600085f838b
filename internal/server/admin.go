package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vyrodovalexey/avrproxy/internal/observability"
	"github.com/vyrodovalexey/avrproxy/internal/plugin"
)

// RoutesProvider returns the current route table for the admin
// surface.
type RoutesProvider func() []plugin.Entry

// Admin serves the operational HTTP surface: health, the active route
// table and Prometheus metrics.
type Admin struct {
	address  string
	logger   observability.Logger
	registry *prometheus.Registry
	routes   RoutesProvider
	server   *http.Server
	proxySrv *Server
}

// AdminOption is a functional option for configuring the admin server.
type AdminOption func(*Admin)

// WithAdminLogger sets the logger for the admin server.
func WithAdminLogger(logger observability.Logger) AdminOption {
	return func(a *Admin) {
		a.logger = logger
	}
}

// WithAdminRegistry serves metrics from the given registry instead of
// the default one.
func WithAdminRegistry(registry *prometheus.Registry) AdminOption {
	return func(a *Admin) {
		a.registry = registry
	}
}

// NewAdmin creates the admin server.
func NewAdmin(address string, proxySrv *Server, routes RoutesProvider, opts ...AdminOption) *Admin {
	a := &Admin{
		address:  address,
		logger:   observability.NopLogger(),
		routes:   routes,
		proxySrv: proxySrv,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler builds the admin HTTP handler.
func (a *Admin) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", func(c *gin.Context) {
		status := http.StatusOK
		body := gin.H{"status": "ok"}
		if a.proxySrv != nil && !a.proxySrv.IsRunning() {
			status = http.StatusServiceUnavailable
			body["status"] = "stopped"
		}
		if a.proxySrv != nil {
			body["active_connections"] = a.proxySrv.ActiveConnections()
		}
		c.JSON(status, body)
	})

	engine.GET("/routes", func(c *gin.Context) {
		entries := a.routes()
		out := make([]gin.H, 0, len(entries))
		for _, e := range entries {
			out = append(out, gin.H{
				"pattern":  e.Pattern,
				"backends": e.Backends,
			})
		}
		c.JSON(http.StatusOK, gin.H{"routes": out})
	})

	metricsHandler := promhttp.Handler()
	if a.registry != nil {
		metricsHandler = promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
	}
	engine.GET("/metrics", gin.WrapH(metricsHandler))

	return engine
}

// Start serves the admin surface until the context is cancelled.
func (a *Admin) Start(ctx context.Context) error {
	a.server = &http.Server{
		Addr:              a.address,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting admin server",
			observability.String("address", a.address),
		)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	}
}

// Stop shuts the admin server down.
func (a *Admin) Stop(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}
