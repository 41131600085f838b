package main

import (
	"crypto/tls"
	"fmt"

	"github.com/vyrodovalexey/avrproxy/internal/config"
)

// loadServerTLS builds the listener TLS configuration from cert and
// key files.
func loadServerTLS(cfg *config.TLSConfig) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
