package proxy

import (
	"context"
	"time"

	"github.com/vyrodovalexey/avrproxy/internal/message"
	"github.com/vyrodovalexey/avrproxy/internal/observability"
	"github.com/vyrodovalexey/avrproxy/internal/plugin"
	"github.com/vyrodovalexey/avrproxy/internal/upstream"
)

// Default ports for the two supported schemes.
const (
	DefaultHTTPPort  = 80
	DefaultHTTPSPort = 443
)

// Handler orchestrates one client connection: it routes requests to a
// backend, forwards rewritten requests, and pipes upstream response
// chunks back through the plugin chain.
//
// The enclosing connection loop guarantees HandleRequest,
// HandleUpstreamData and teardown never run concurrently for the same
// handler, so Handler holds no locks.
type Handler struct {
	id        string
	plugins   []plugin.Plugin
	router    *Router
	connector *upstream.Connector
	client    plugin.ClientWriter
	logger    observability.Logger

	httpPort   int
	httpsPort  int
	accessTmpl *AccessLogTemplate

	choice     *plugin.Target
	upstream   *upstream.Conn
	resp       *message.Response
	pendingRaw []byte
	rawMode    bool
	exchStart  time.Time
	lastStatus int
}

// HandlerOption is a functional option for configuring the handler.
type HandlerOption func(*Handler)

// WithHandlerLogger sets the logger for the handler.
func WithHandlerLogger(logger observability.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithDefaultPorts overrides the default ports used when a target
// carries no explicit port.
func WithDefaultPorts(httpPort, httpsPort int) HandlerOption {
	return func(h *Handler) {
		if httpPort > 0 {
			h.httpPort = httpPort
		}
		if httpsPort > 0 {
			h.httpsPort = httpsPort
		}
	}
}

// WithAccessLogFormat sets the access-log format template.
func WithAccessLogFormat(format string) HandlerOption {
	return func(h *Handler) {
		h.accessTmpl = NewAccessLogTemplate(format)
	}
}

// NewHandler creates a connection handler over an ordered plugin list.
func NewHandler(
	id string,
	plugins []plugin.Plugin,
	router *Router,
	connector *upstream.Connector,
	client plugin.ClientWriter,
	opts ...HandlerOption,
) *Handler {
	h := &Handler{
		id:         id,
		plugins:    plugins,
		router:     router,
		connector:  connector,
		client:     client,
		logger:     observability.NopLogger(),
		httpPort:   DefaultHTTPPort,
		httpsPort:  DefaultHTTPSPort,
		accessTmpl: NewAccessLogTemplate(""),
		resp:       &message.Response{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Upstream returns the active upstream connection, if any.
func (h *Handler) Upstream() *upstream.Conn {
	return h.upstream
}

// Target returns the target chosen for the current request, if any.
func (h *Handler) Target() *plugin.Target {
	return h.choice
}

// HandleRequest runs the before-routing chain, resolves a target, and
// forwards the rewritten request to the backend.
func (h *Handler) HandleRequest(ctx context.Context, req *message.Request) error {
	h.exchStart = time.Now()
	metrics := getProxyMetrics()

	for _, p := range h.plugins {
		replaced, verdict := p.BeforeRouting(req)
		if verdict == plugin.VerdictAbort || replaced == nil {
			metrics.requestsTotal.WithLabelValues("aborted").Inc()
			return NewRoutingAbortError(req.Method, req.Path)
		}
		req = replaced
	}

	target, err := h.router.Resolve(req)
	if err != nil {
		metrics.requestsTotal.WithLabelValues("no_route").Inc()
		return err
	}
	h.choice = target

	conn, err := h.connectTarget(ctx, target)
	if err != nil {
		metrics.requestsTotal.WithLabelValues("connect_error").Inc()
		metrics.upstreamErrors.WithLabelValues(connectErrorType(err)).Inc()
		return err
	}
	h.upstream = conn

	req.Path = target.Remainder
	if req.Path == "" {
		req.Path = "/"
	}

	if err := conn.Queue(req.Build()); err != nil {
		return err
	}
	metrics.requestsTotal.WithLabelValues("routed").Inc()
	return nil
}

// connectTarget reuses the active upstream connection when it already
// points at the resolved backend, otherwise closes it and dials anew.
func (h *Handler) connectTarget(ctx context.Context, target *plugin.Target) (*upstream.Conn, error) {
	port := target.Port
	if port == 0 {
		if target.Scheme == upstream.SchemeHTTPS {
			port = h.httpsPort
		} else {
			port = h.httpPort
		}
	}

	if h.upstream != nil && !h.upstream.Closed() {
		if h.upstream.Scheme() == target.Scheme &&
			h.upstream.Host() == target.Hostname && h.upstream.Port() == port {
			return h.upstream, nil
		}
		// The connection loop still has a reader goroutine parked in
		// Read on this conn. It must not reappear in the shared pool
		// while that reader lives, so close instead of releasing.
		_ = h.upstream.Close()
		h.upstream = nil
	}

	start := time.Now()
	conn, err := h.connector.Connect(ctx, target.Scheme, target.Hostname, port)
	if err != nil {
		return nil, err
	}
	getProxyMetrics().connectSeconds.Observe(time.Since(start).Seconds())
	return conn, nil
}

// HandleUpstreamData feeds a raw upstream chunk through the response
// parser and the plugins' after-hook chain, then queues the result to
// the client. It returns the status codes of responses that reached
// structural completion during this chunk, in arrival order.
//
// A pass-through verdict forwards the original raw bytes unchanged and
// discards whatever earlier hooks in the chain produced; once a
// response goes raw it stays raw for its remaining chunks. A chain that
// keeps continuing serializes the transformed response only when it is
// structurally complete, so a response split across reads is never
// forwarded twice.
func (h *Handler) HandleUpstreamData(raw []byte) ([]int, error) {
	var completed []int

	data := raw
	for len(data) > 0 {
		if err := h.resp.Parse(data); err != nil {
			return completed, err
		}

		// Bytes past the end of the current response belong to a
		// pipelined next one and are re-parsed after the reset.
		used := data
		if h.resp.Complete() {
			used = data[:len(data)-len(h.resp.Rest())]
		}
		h.pendingRaw = append(h.pendingRaw, used...)

		h.forwardResponse()

		if !h.resp.Complete() {
			return completed, nil
		}

		completed = append(completed, h.resp.StatusCode)
		h.lastStatus = h.resp.StatusCode
		h.logger.Debug("upstream response completed",
			observability.Int("status_code", h.resp.StatusCode),
		)

		data = h.resp.Rest()
		h.resp.Reset()
		h.pendingRaw = nil
		h.rawMode = false
	}
	return completed, nil
}

// forwardResponse runs the after-hook chain over the accumulated
// response and queues whatever is ready for the client: raw bytes on a
// pass-through verdict, the serialized transformed response once it is
// complete, nothing while a transformed response is still partial.
func (h *Handler) forwardResponse() {
	if h.rawMode {
		getProxyMetrics().passThroughTotal.Inc()
		h.client.Queue(h.pendingRaw)
		h.pendingRaw = nil
		return
	}

	current := h.resp
	for _, p := range h.plugins {
		replaced, verdict := p.AfterUpstreamData(current)
		if verdict == plugin.VerdictPassThrough || replaced == nil {
			getProxyMetrics().passThroughTotal.Inc()
			h.client.Queue(h.pendingRaw)
			h.pendingRaw = nil
			h.rawMode = true
			return
		}
		current = replaced
	}

	if h.resp.Complete() {
		h.client.Queue(current.Build())
		h.pendingRaw = nil
	}
}

// OnClientConnectionClose tears down the upstream connection. Closing
// an already-closed or absent upstream is a no-op.
func (h *Handler) OnClientConnectionClose() {
	if h.upstream != nil && !h.upstream.Closed() {
		h.logger.Debug("closing upstream server connection")
		_ = h.upstream.Close()
	}
	h.upstream = nil
}

// OnAccessLog builds the access-log record for the completed exchange,
// merges plugin overrides in plugin order, and emits the rendered line.
func (h *Handler) OnAccessLog(ctx map[string]any) {
	if ctx == nil {
		ctx = make(map[string]any)
	}
	ctx["upstream_proxy_pass"] = h.choice.String()
	if _, ok := ctx["status_code"]; !ok && h.lastStatus != 0 {
		ctx["status_code"] = h.lastStatus
	}
	if _, ok := ctx["duration_ms"]; !ok && !h.exchStart.IsZero() {
		ctx["duration_ms"] = time.Since(h.exchStart).Milliseconds()
	}

	for _, p := range h.plugins {
		if override := p.OnAccessLog(ctx); override != nil {
			ctx = override
		}
	}

	h.logger.Info(h.accessTmpl.Render(ctx),
		observability.String("conn_id", h.id),
	)
}
