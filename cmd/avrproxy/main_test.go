package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avrproxy/internal/config"
)

func testConfig() *config.Config {
	cfg := &config.Config{
		Routes: []config.RouteConfig{
			{Pattern: "^/api/.*", Backends: []string{"http://10.0.0.1:8080"}},
			{Pattern: "^/static/.*", Backends: []string{"https://cdn.internal"}},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestRouteEntries(t *testing.T) {
	t.Parallel()

	entries := routeEntries(testConfig())
	require.Len(t, entries, 2)
	assert.Equal(t, "^/api/.*", entries[0].Pattern)
	assert.Equal(t, []string{"http://10.0.0.1:8080"}, entries[0].Backends)
	assert.True(t, entries[0].Static())
}

func TestServerConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Server.Address = ":9000"
	cfg.Server.MaxConnections = 42
	cfg.Server.AcceptRate = 100
	cfg.Server.ReadTimeout = config.Duration(15 * time.Second)

	sc := serverConfig(cfg)
	assert.Equal(t, ":9000", sc.Address)
	assert.Equal(t, 42, sc.MaxConnections)
	assert.Equal(t, float64(100), sc.AcceptRate)
	assert.Equal(t, 15*time.Second, sc.ReadTimeout)
	assert.Nil(t, sc.TLS)
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("AVRPROXY_TEST_ENV_KEY", "from-env")

	assert.Equal(t, "from-env", getEnvOrDefault("AVRPROXY_TEST_ENV_KEY", "fallback"))
	assert.Equal(t, "fallback", getEnvOrDefault("AVRPROXY_TEST_ENV_ABSENT", "fallback"))
}

func TestLoadServerTLS_MissingFiles(t *testing.T) {
	t.Parallel()

	_, err := loadServerTLS(&config.TLSConfig{
		CertFile: "/nonexistent/cert.pem",
		KeyFile:  "/nonexistent/key.pem",
	})
	assert.Error(t, err)
}
