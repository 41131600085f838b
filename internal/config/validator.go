package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
)

// Validation errors.
var (
	ErrNoRoutes          = errors.New("config: at least one route is required")
	ErrInvalidPattern    = errors.New("config: invalid route pattern")
	ErrInvalidBackend    = errors.New("config: invalid backend URL")
	ErrInvalidListenAddr = errors.New("config: invalid listen address")
	ErrInvalidLogLevel   = errors.New("config: invalid log level")
)

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration for structural errors. Defaults
// must already be applied.
func Validate(cfg *Config) error {
	if cfg.Server.Address == "" {
		return ErrInvalidListenAddr
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			return fmt.Errorf("config: tls requires both certFile and keyFile")
		}
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, cfg.Logging.Level)
	}
	if len(cfg.Routes) == 0 {
		return ErrNoRoutes
	}

	for i, route := range cfg.Routes {
		if route.Pattern == "" {
			return fmt.Errorf("%w: route %d has no pattern", ErrInvalidPattern, i)
		}
		if _, err := regexp.Compile(route.Pattern); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidPattern, route.Pattern, err)
		}
		if len(route.Backends) == 0 {
			return fmt.Errorf("%w: route %q has no backends", ErrInvalidBackend, route.Pattern)
		}
		for _, backend := range route.Backends {
			if err := validateBackendURL(backend); err != nil {
				return err
			}
		}
	}

	return nil
}

func validateBackendURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidBackend, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %q: unsupported scheme %q", ErrInvalidBackend, raw, u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("%w: %q: missing host", ErrInvalidBackend, raw)
	}
	return nil
}
