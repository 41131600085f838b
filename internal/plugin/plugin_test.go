package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avrproxy/internal/message"
)

func TestVerdict_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "continue", VerdictContinue.String())
	assert.Equal(t, "abort", VerdictAbort.String())
	assert.Equal(t, "pass-through", VerdictPassThrough.String())
	assert.Equal(t, "unknown", Verdict(42).String())
}

func TestEntry_Static(t *testing.T) {
	t.Parallel()

	assert.True(t, Entry{Pattern: "^/a", Backends: []string{"http://b"}}.Static())
	assert.False(t, Entry{Pattern: "^/a"}.Static())
}

func TestBase_Defaults(t *testing.T) {
	t.Parallel()

	var base Base
	req := message.NewRequest("GET", "/")

	gotReq, verdict := base.BeforeRouting(req)
	assert.Same(t, req, gotReq)
	assert.Equal(t, VerdictContinue, verdict)

	resp := message.NewResponse(200, "OK")
	gotResp, verdict := base.AfterUpstreamData(resp)
	assert.Same(t, resp, gotResp)
	assert.Equal(t, VerdictContinue, verdict)

	assert.Nil(t, base.Regexes())
	assert.Nil(t, base.Routes())
	assert.Nil(t, base.OnAccessLog(map[string]any{}))
}

func TestParseTarget(t *testing.T) {
	t.Parallel()

	target, err := ParseTarget("http://10.0.0.1:8080")
	require.NoError(t, err)

	assert.Equal(t, "http", target.Scheme)
	assert.Equal(t, "10.0.0.1", target.Hostname)
	assert.Equal(t, 8080, target.Port)
	assert.Empty(t, target.Remainder)
}

func TestParseTarget_PathAndQuery(t *testing.T) {
	t.Parallel()

	target, err := ParseTarget("https://backend.internal/v2/api?tenant=a")
	require.NoError(t, err)

	assert.Equal(t, "https", target.Scheme)
	assert.Equal(t, "backend.internal", target.Hostname)
	assert.Zero(t, target.Port)
	assert.Equal(t, "/v2/api?tenant=a", target.Remainder)
}

func TestParseTarget_Invalid(t *testing.T) {
	t.Parallel()

	cases := []string{
		"ftp://backend",
		"http://",
		"not a url at all\x7f",
	}
	for _, raw := range cases {
		_, err := ParseTarget(raw)
		assert.ErrorIs(t, err, ErrInvalidTarget, raw)
	}
}

func TestTarget_String(t *testing.T) {
	t.Parallel()

	target := &Target{Scheme: "http", Hostname: "10.0.0.1", Port: 8080, Remainder: "/x"}
	assert.Equal(t, "http://10.0.0.1:8080/x", target.String())

	noPort := &Target{Scheme: "https", Hostname: "backend"}
	assert.Equal(t, "https://backend", noPort.String())

	var absent *Target
	assert.Equal(t, "-", absent.String())
}

func TestTarget_WithRemainder(t *testing.T) {
	t.Parallel()

	target := &Target{Scheme: "http", Hostname: "h", Remainder: "/old"}
	derived := target.WithRemainder("/new")

	assert.Equal(t, "/new", derived.Remainder)
	assert.Equal(t, "/old", target.Remainder)
	assert.Equal(t, target.Hostname, derived.Hostname)
}

func TestStatic(t *testing.T) {
	t.Parallel()

	entries := []Entry{
		{Pattern: "^/api/.*", Backends: []string{"http://10.0.0.1:8080"}},
		{Pattern: "^/web/.*", Backends: []string{"http://10.0.0.2:8080"}},
	}
	p := NewStatic(entries)

	assert.Equal(t, []string{"^/api/.*", "^/web/.*"}, p.Regexes())
	assert.Equal(t, entries, p.Routes())

	p.SetEntries(entries[:1])
	assert.Len(t, p.Routes(), 1)
}

func TestStaticFactory(t *testing.T) {
	t.Parallel()

	factory := StaticFactory([]Entry{{Pattern: "^/", Backends: []string{"http://b"}}})
	p := factory(ConnContext{ID: "conn-1"})
	assert.Len(t, p.Routes(), 1)
}

func TestHeaderRewrite_Request(t *testing.T) {
	t.Parallel()

	p := NewHeaderRewrite(HeaderRewriteConfig{
		RequestSet:    map[string]string{"X-Gateway": "avrproxy"},
		RequestRemove: []string{"Cookie"},
	})

	req := message.NewRequest("GET", "/")
	req.SetHeader("Cookie", "session=1")

	got, verdict := p.BeforeRouting(req)
	assert.Equal(t, VerdictContinue, verdict)
	assert.Equal(t, "avrproxy", got.Header("X-Gateway"))
	assert.Empty(t, got.Header("Cookie"))
}

func TestHeaderRewrite_Response(t *testing.T) {
	t.Parallel()

	p := NewHeaderRewrite(HeaderRewriteConfig{
		ResponseSet:    map[string]string{"X-Proxied": "1"},
		ResponseRemove: []string{"Server"},
	})

	resp := message.NewResponse(200, "OK")
	resp.SetHeader("Server", "nginx")

	got, verdict := p.AfterUpstreamData(resp)
	assert.Equal(t, VerdictContinue, verdict)
	assert.Equal(t, "1", got.Header("X-Proxied"))
	assert.Empty(t, got.Header("Server"))
}
