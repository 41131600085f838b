package config

import "time"

// Config is the root proxy configuration.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Admin     AdminConfig      `yaml:"admin"`
	Upstream  UpstreamConfig   `yaml:"upstream"`
	Routing   RoutingConfig    `yaml:"routing"`
	AccessLog AccessLogConfig  `yaml:"accessLog"`
	Logging   LoggingConfig    `yaml:"logging"`
	Routes    []RouteConfig    `yaml:"routes"`
	Rewrites  []RewriteConfig  `yaml:"rewrites"`
}

// ServerConfig configures the client-facing listener.
type ServerConfig struct {
	Address        string     `yaml:"address"`
	TLS            *TLSConfig `yaml:"tls,omitempty"`
	MaxConnections int        `yaml:"maxConnections"`
	AcceptRate     float64    `yaml:"acceptRate"`
	AcceptBurst    int        `yaml:"acceptBurst"`
	ReadTimeout    Duration   `yaml:"readTimeout"`
	ShutdownGrace  Duration   `yaml:"shutdownGrace"`
}

// TLSConfig configures TLS termination on the listener.
type TLSConfig struct {
	CertFile string `yaml:"certFile"`
	KeyFile  string `yaml:"keyFile"`
}

// AdminConfig configures the admin HTTP endpoint serving health,
// route and metrics surfaces.
type AdminConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// UpstreamConfig configures backend connections.
type UpstreamConfig struct {
	DialTimeout     Duration `yaml:"dialTimeout"`
	CAFile          string   `yaml:"caFile"`
	MaxIdlePerHost  int      `yaml:"maxIdlePerHost"`
	BreakerFailures uint32   `yaml:"breakerFailures"`
	BreakerTimeout  Duration `yaml:"breakerTimeout"`
}

// RoutingConfig configures route resolution behaviour.
type RoutingConfig struct {
	// FirstMatchWins stops resolution at the first plugin whose route
	// table matches. The default keeps scanning so later plugins can
	// override earlier choices.
	FirstMatchWins bool `yaml:"firstMatchWins"`
	HTTPPort       int  `yaml:"httpPort"`
	HTTPSPort      int  `yaml:"httpsPort"`
}

// AccessLogConfig configures the per-exchange access-log line.
type AccessLogConfig struct {
	Format string `yaml:"format"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	OutputPath string `yaml:"outputPath"`
}

// RouteConfig maps a path pattern to one or more backend URLs. A
// request matching Pattern is forwarded to one of Backends, chosen at
// random.
type RouteConfig struct {
	Pattern  string   `yaml:"pattern"`
	Backends []string `yaml:"backends"`
}

// RewriteConfig declares header rewrites applied around an exchange.
type RewriteConfig struct {
	RequestSet     map[string]string `yaml:"requestSet"`
	RequestRemove  []string          `yaml:"requestRemove"`
	ResponseSet    map[string]string `yaml:"responseSet"`
	ResponseRemove []string          `yaml:"responseRemove"`
}

// DefaultConfig returns a configuration with sane defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:        ":8899",
			MaxConnections: 1024,
			AcceptRate:     0,
			AcceptBurst:    64,
			ReadTimeout:    Duration(60 * time.Second),
			ShutdownGrace:  Duration(10 * time.Second),
		},
		Admin: AdminConfig{
			Enabled: true,
			Address: ":9901",
		},
		Upstream: UpstreamConfig{
			DialTimeout:     Duration(10 * time.Second),
			MaxIdlePerHost:  4,
			BreakerFailures: 5,
			BreakerTimeout:  Duration(30 * time.Second),
		},
		Routing: RoutingConfig{
			HTTPPort:  80,
			HTTPSPort: 443,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// ApplyDefaults fills zero-valued fields from DefaultConfig.
func (c *Config) ApplyDefaults() {
	def := DefaultConfig()
	if c.Server.Address == "" {
		c.Server.Address = def.Server.Address
	}
	if c.Server.MaxConnections == 0 {
		c.Server.MaxConnections = def.Server.MaxConnections
	}
	if c.Server.AcceptBurst == 0 {
		c.Server.AcceptBurst = def.Server.AcceptBurst
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = def.Server.ReadTimeout
	}
	if c.Server.ShutdownGrace == 0 {
		c.Server.ShutdownGrace = def.Server.ShutdownGrace
	}
	if c.Admin.Address == "" {
		c.Admin.Address = def.Admin.Address
	}
	if c.Upstream.DialTimeout == 0 {
		c.Upstream.DialTimeout = def.Upstream.DialTimeout
	}
	if c.Upstream.MaxIdlePerHost == 0 {
		c.Upstream.MaxIdlePerHost = def.Upstream.MaxIdlePerHost
	}
	if c.Upstream.BreakerFailures == 0 {
		c.Upstream.BreakerFailures = def.Upstream.BreakerFailures
	}
	if c.Upstream.BreakerTimeout == 0 {
		c.Upstream.BreakerTimeout = def.Upstream.BreakerTimeout
	}
	if c.Routing.HTTPPort == 0 {
		c.Routing.HTTPPort = def.Routing.HTTPPort
	}
	if c.Routing.HTTPSPort == 0 {
		c.Routing.HTTPSPort = def.Routing.HTTPSPort
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}
}
