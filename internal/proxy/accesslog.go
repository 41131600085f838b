package proxy

import (
	"fmt"
	"regexp"
)

// DefaultAccessLogFormat is the access-log line rendered when no custom
// format is configured.
const DefaultAccessLogFormat = "{client_addr} - {request_method} {request_path} -> " +
	"{upstream_proxy_pass} - {status_code} - {duration_ms}ms"

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// AccessLogTemplate renders an access-log context through a format
// string with named {placeholder} fields. Unknown placeholders render
// as "-".
type AccessLogTemplate struct {
	format string
}

// NewAccessLogTemplate creates a template; an empty format falls back
// to DefaultAccessLogFormat.
func NewAccessLogTemplate(format string) *AccessLogTemplate {
	if format == "" {
		format = DefaultAccessLogFormat
	}
	return &AccessLogTemplate{format: format}
}

// Render substitutes context values into the format string.
func (t *AccessLogTemplate) Render(ctx map[string]any) string {
	return placeholderPattern.ReplaceAllStringFunc(t.format, func(match string) string {
		key := match[1 : len(match)-1]
		value, ok := ctx[key]
		if !ok || value == nil {
			return "-"
		}
		return fmt.Sprint(value)
	})
}
