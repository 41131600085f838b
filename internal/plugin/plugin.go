// Package plugin defines the route-plugin capability surface of the
// reverse proxy. Plugins advertise path patterns, expose route tables,
// and hook into the request/response flow of the connection handler.
//
// A plugin instance lives for exactly one client connection; the plugin
// list is fixed at connection setup in registration order and is never
// reordered afterwards.
package plugin

import (
	"regexp"

	"github.com/vyrodovalexey/avrproxy/internal/message"
	"github.com/vyrodovalexey/avrproxy/internal/upstream"
)

// Verdict is the tagged outcome of a hook invocation.
type Verdict int

const (
	// VerdictContinue passes the (possibly replaced) message to the next
	// hook in the chain.
	VerdictContinue Verdict = iota

	// VerdictAbort rejects the request; the connection is terminated.
	VerdictAbort

	// VerdictPassThrough stops the response chain immediately and
	// forwards the original unmodified raw bytes to the client.
	VerdictPassThrough
)

// String returns the string representation of the verdict.
func (v Verdict) String() string {
	switch v {
	case VerdictContinue:
		return "continue"
	case VerdictAbort:
		return "abort"
	case VerdictPassThrough:
		return "pass-through"
	default:
		return "unknown"
	}
}

// Entry is a single route table entry: a path pattern with either a
// static list of candidate backend URLs or, when Backends is empty, a
// bare pattern whose target the owning plugin resolves dynamically.
type Entry struct {
	Pattern  string
	Backends []string
}

// Static reports whether the entry carries a static candidate list.
func (e Entry) Static() bool {
	return len(e.Backends) > 0
}

// ClientWriter queues outbound bytes toward the client connection.
type ClientWriter interface {
	Queue(b []byte)
}

// ConnContext carries the per-connection identity and shared handles a
// plugin instance is constructed with.
type ConnContext struct {
	// ID is the connection identity.
	ID string

	// Client queues bytes to the client.
	Client ClientWriter

	// Pool is the shared upstream connection pool handle.
	Pool *upstream.Pool
}

// Factory constructs a plugin instance for a new client connection.
type Factory func(ctx ConnContext) Plugin

// Plugin is the capability set consumed by the request router and
// response pipeline.
type Plugin interface {
	// Regexes advertises the inbound path patterns this plugin is
	// interested in. Used to build the server-wide route table.
	Regexes() []string

	// Routes returns the plugin's route entries in evaluation order.
	Routes() []Entry

	// BeforeRouting may transform or reject the request prior to route
	// matching. VerdictAbort terminates the connection.
	BeforeRouting(req *message.Request) (*message.Request, Verdict)

	// HandleRoute resolves the target for a bare-pattern entry.
	HandleRoute(req *message.Request, pattern *regexp.Regexp) (*Target, error)

	// AfterUpstreamData may transform the parsed upstream response.
	// VerdictPassThrough short-circuits the chain.
	AfterUpstreamData(resp *message.Response) (*message.Response, Verdict)

	// OnAccessLog may override fields of the access-log context. A nil
	// return leaves the context untouched.
	OnAccessLog(ctx map[string]any) map[string]any
}

// Base provides pass-through defaults for all hooks. Concrete plugins
// embed it and override what they need.
type Base struct{}

// Regexes returns no patterns.
func (Base) Regexes() []string { return nil }

// Routes returns no entries.
func (Base) Routes() []Entry { return nil }

// BeforeRouting passes the request through unchanged.
func (Base) BeforeRouting(req *message.Request) (*message.Request, Verdict) {
	return req, VerdictContinue
}

// HandleRoute is never called unless the plugin exposes bare-pattern
// entries.
func (Base) HandleRoute(req *message.Request, pattern *regexp.Regexp) (*Target, error) {
	return nil, nil
}

// AfterUpstreamData passes the response through unchanged.
func (Base) AfterUpstreamData(resp *message.Response) (*message.Response, Verdict) {
	return resp, VerdictContinue
}

// OnAccessLog leaves the context untouched.
func (Base) OnAccessLog(ctx map[string]any) map[string]any { return nil }
