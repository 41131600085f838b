package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccessLogTemplate_Render(t *testing.T) {
	t.Parallel()

	tmpl := NewAccessLogTemplate("{client_addr} {request_method} {request_path} {status_code}")
	line := tmpl.Render(map[string]any{
		"client_addr":    "10.1.2.3:51234",
		"request_method": "GET",
		"request_path":   "/api/users",
		"status_code":    200,
	})
	assert.Equal(t, "10.1.2.3:51234 GET /api/users 200", line)
}

func TestAccessLogTemplate_UnknownPlaceholder(t *testing.T) {
	t.Parallel()

	tmpl := NewAccessLogTemplate("{request_method} {no_such_field}")
	line := tmpl.Render(map[string]any{"request_method": "POST"})
	assert.Equal(t, "POST -", line)
}

func TestAccessLogTemplate_NilValue(t *testing.T) {
	t.Parallel()

	tmpl := NewAccessLogTemplate("{tenant}")
	assert.Equal(t, "-", tmpl.Render(map[string]any{"tenant": nil}))
}

func TestAccessLogTemplate_DefaultFormat(t *testing.T) {
	t.Parallel()

	tmpl := NewAccessLogTemplate("")
	line := tmpl.Render(map[string]any{
		"client_addr":         "10.1.2.3:51234",
		"request_method":      "GET",
		"request_path":        "/api/x",
		"upstream_proxy_pass": "http://10.0.0.1:8080/x",
		"status_code":         204,
		"duration_ms":         int64(12),
	})
	assert.Equal(t, "10.1.2.3:51234 - GET /api/x -> http://10.0.0.1:8080/x - 204 - 12ms", line)
}

func TestAccessLogTemplate_LiteralTextPreserved(t *testing.T) {
	t.Parallel()

	tmpl := NewAccessLogTemplate("prefix {a} middle {b} suffix")
	line := tmpl.Render(map[string]any{"a": "1", "b": "2"})
	assert.Equal(t, "prefix 1 middle 2 suffix", line)
}
