package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vyrodovalexey/avrproxy/internal/config"
	"github.com/vyrodovalexey/avrproxy/internal/observability"
	"github.com/vyrodovalexey/avrproxy/internal/plugin"
	"github.com/vyrodovalexey/avrproxy/internal/proxy"
	"github.com/vyrodovalexey/avrproxy/internal/server"
	"github.com/vyrodovalexey/avrproxy/internal/upstream"
)

// application wires configuration into the running proxy.
type application struct {
	cfg      *config.Config
	logger   observability.Logger
	registry *prometheus.Registry
	table    *plugin.RouteTable
	pool     *upstream.Pool
	server   *server.Server
	admin    *server.Admin
}

func newApplication(cfg *config.Config, logger observability.Logger) *application {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	proxy.InitMetrics(registry)
	server.InitMetrics(registry)

	table := plugin.NewRouteTable(routeEntries(cfg))

	pool := upstream.NewPool(
		upstream.WithMaxIdlePerHost(cfg.Upstream.MaxIdlePerHost),
	)
	connectorOpts := []upstream.ConnectorOption{
		upstream.WithPool(pool),
		upstream.WithDialTimeout(cfg.Upstream.DialTimeout.Duration()),
		upstream.WithBreakerSettings(
			cfg.Upstream.BreakerFailures,
			cfg.Upstream.BreakerTimeout.Duration(),
		),
		upstream.WithConnectorLogger(logger),
	}
	if cfg.Upstream.CAFile != "" {
		connectorOpts = append(connectorOpts, upstream.WithCAFile(cfg.Upstream.CAFile))
	}
	connector := upstream.NewConnector(connectorOpts...)

	factories := []plugin.Factory{plugin.StaticFromTable(table)}
	for _, rewrite := range cfg.Rewrites {
		factories = append(factories, plugin.HeaderRewriteFactory(plugin.HeaderRewriteConfig{
			RequestSet:     rewrite.RequestSet,
			RequestRemove:  rewrite.RequestRemove,
			ResponseSet:    rewrite.ResponseSet,
			ResponseRemove: rewrite.ResponseRemove,
		}))
	}

	var routerOpts []proxy.RouterOption
	if cfg.Routing.FirstMatchWins {
		routerOpts = append(routerOpts, proxy.WithFirstMatchWins(true))
	}
	handlerOpts := []proxy.HandlerOption{
		proxy.WithDefaultPorts(cfg.Routing.HTTPPort, cfg.Routing.HTTPSPort),
	}
	if cfg.AccessLog.Format != "" {
		handlerOpts = append(handlerOpts, proxy.WithAccessLogFormat(cfg.AccessLog.Format))
	}

	srv := server.NewServer(serverConfig(cfg), factories, connector, pool,
		server.WithServerLogger(logger),
		server.WithRouterOptions(routerOpts...),
		server.WithHandlerOptions(handlerOpts...),
	)

	app := &application{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		table:    table,
		pool:     pool,
		server:   srv,
	}

	if cfg.Admin.Enabled {
		app.admin = server.NewAdmin(cfg.Admin.Address, srv, table.Snapshot,
			server.WithAdminLogger(logger),
			server.WithAdminRegistry(registry),
		)
	}
	return app
}

// routeEntries converts configured routes into route table entries.
func routeEntries(cfg *config.Config) []plugin.Entry {
	entries := make([]plugin.Entry, 0, len(cfg.Routes))
	for _, route := range cfg.Routes {
		entries = append(entries, plugin.Entry{
			Pattern:  route.Pattern,
			Backends: route.Backends,
		})
	}
	return entries
}

// serverConfig maps file configuration onto the listener config.
func serverConfig(cfg *config.Config) *server.Config {
	sc := server.DefaultConfig()
	sc.Address = cfg.Server.Address
	sc.MaxConnections = cfg.Server.MaxConnections
	sc.AcceptRate = cfg.Server.AcceptRate
	sc.AcceptBurst = cfg.Server.AcceptBurst
	sc.ReadTimeout = cfg.Server.ReadTimeout.Duration()
	sc.ShutdownGrace = cfg.Server.ShutdownGrace.Duration()
	if cfg.Server.TLS != nil {
		tlsConfig, err := loadServerTLS(cfg.Server.TLS)
		if err != nil {
			observability.GetGlobalLogger().Fatal("failed to load server TLS",
				observability.Error(err),
			)
		}
		sc.TLS = tlsConfig
	}
	return sc
}

// run starts the proxy, the admin surface and the configuration
// watcher, then blocks until a termination signal arrives.
func (a *application) run(configPath string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher, err := config.NewWatcher(configPath, a.reload,
		config.WithWatcherLogger(a.logger),
	)
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = watcher.Stop() }()

	errCh := make(chan error, 2)
	go func() {
		if err := a.server.Start(ctx); err != nil && ctx.Err() == nil {
			errCh <- err
		}
	}()
	if a.admin != nil {
		go func() {
			if err := a.admin.Start(ctx); err != nil && ctx.Err() == nil {
				errCh <- err
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		a.logger.Info("received signal, shutting down",
			observability.String("signal", sig.String()),
		)
	case err := <-errCh:
		a.logger.Error("server failed", observability.Error(err))
		cancel()
		a.shutdown()
		return err
	}

	cancel()
	a.shutdown()
	return nil
}

// reload swaps the route table on configuration change. Listener and
// upstream settings require a restart.
func (a *application) reload(cfg *config.Config) {
	a.table.Set(routeEntries(cfg))
	a.logger.Info("route table reloaded",
		observability.Int("routes", len(cfg.Routes)),
	)
}

func (a *application) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		a.cfg.Server.ShutdownGrace.Duration(),
	)
	defer cancel()

	if a.admin != nil {
		_ = a.admin.Stop(shutdownCtx)
	}
	_ = a.server.Stop(shutdownCtx)
	a.pool.Close()
}
