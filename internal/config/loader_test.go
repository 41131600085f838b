package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server:
  address: ":8899"
  maxConnections: 256
  readTimeout: "30s"
admin:
  enabled: true
  address: ":9901"
upstream:
  dialTimeout: "5s"
  maxIdlePerHost: 8
routing:
  firstMatchWins: true
accessLog:
  format: "{request_method} {request_path} -> {upstream_proxy_pass}"
logging:
  level: debug
routes:
  - pattern: "^/api/.*"
    backends:
      - "http://10.0.0.1:8080"
      - "http://10.0.0.2:8080"
  - pattern: "^/static/.*"
    backends:
      - "https://cdn.internal"
rewrites:
  - requestSet:
      X-Forwarded-Proto: http
    responseRemove:
      - Server
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "proxy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, ":8899", cfg.Server.Address)
	assert.Equal(t, 256, cfg.Server.MaxConnections)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout.Duration())
	assert.True(t, cfg.Admin.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Upstream.DialTimeout.Duration())
	assert.Equal(t, 8, cfg.Upstream.MaxIdlePerHost)
	assert.True(t, cfg.Routing.FirstMatchWins)
	assert.Equal(t, "debug", cfg.Logging.Level)

	require.Len(t, cfg.Routes, 2)
	assert.Equal(t, "^/api/.*", cfg.Routes[0].Pattern)
	assert.Len(t, cfg.Routes[0].Backends, 2)

	require.Len(t, cfg.Rewrites, 1)
	assert.Equal(t, "http", cfg.Rewrites[0].RequestSet["X-Forwarded-Proto"])
	assert.Equal(t, []string{"Server"}, cfg.Rewrites[0].ResponseRemove)
}

func TestLoad_FileNotFound(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	t.Parallel()

	_, err := Load(writeConfig(t, "routes:\n  - pattern: [broken"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoad_AppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, `
routes:
  - pattern: "^/"
    backends: ["http://backend"]
`))
	require.NoError(t, err)

	assert.Equal(t, ":8899", cfg.Server.Address)
	assert.Equal(t, 1024, cfg.Server.MaxConnections)
	assert.Equal(t, 10*time.Second, cfg.Upstream.DialTimeout.Duration())
	assert.Equal(t, 4, cfg.Upstream.MaxIdlePerHost)
	assert.Equal(t, uint32(5), cfg.Upstream.BreakerFailures)
	assert.Equal(t, 80, cfg.Routing.HTTPPort)
	assert.Equal(t, 443, cfg.Routing.HTTPSPort)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Routing.FirstMatchWins)
}

func TestLoadFromReader(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFromReader(strings.NewReader(sampleConfig))
	require.NoError(t, err)
	assert.Len(t, cfg.Routes, 2)
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("AVRPROXY_TEST_BACKEND", "http://10.9.9.9:8080")

	cfg, err := LoadFromReader(strings.NewReader(`
routes:
  - pattern: "^/"
    backends: ["${AVRPROXY_TEST_BACKEND}"]
`))
	require.NoError(t, err)
	assert.Equal(t, "http://10.9.9.9:8080", cfg.Routes[0].Backends[0])
}

func TestSubstituteEnvVars_Default(t *testing.T) {
	t.Parallel()

	content := substituteEnvVars("addr: ${AVRPROXY_NO_SUCH_VAR:-:8899}")
	assert.Equal(t, "addr: :8899", content)
}

func TestSubstituteEnvVars_MissingNoDefault(t *testing.T) {
	t.Parallel()

	content := substituteEnvVars("addr: ${AVRPROXY_NO_SUCH_VAR}")
	assert.Equal(t, "addr: ", content)
}

func TestSubstituteEnvVars_EscapedDollar(t *testing.T) {
	t.Parallel()

	content := substituteEnvVars("password: $${literal}")
	assert.Equal(t, "password: ${literal}", content)
}

func TestResolvePath_Relative(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proxy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))

	t.Chdir(dir)
	resolved, err := ResolvePath("proxy.yaml")
	require.NoError(t, err)
	assert.Equal(t, path, resolved)
}

func TestResolvePath_NotFound(t *testing.T) {
	t.Parallel()

	_, err := ResolvePath(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
