package server

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/vyrodovalexey/avrproxy/internal/message"
	"github.com/vyrodovalexey/avrproxy/internal/observability"
	"github.com/vyrodovalexey/avrproxy/internal/proxy"
	"github.com/vyrodovalexey/avrproxy/internal/upstream"
)

const readBufferSize = 16 * 1024

type eventKind int

const (
	evClientData eventKind = iota
	evClientClosed
	evUpstreamData
	evUpstreamClosed
)

type event struct {
	kind eventKind
	data []byte
	gen  int
}

// clientWriter adapts the client socket to the plugin.ClientWriter
// surface. Only the connection event loop writes through it.
type clientWriter struct {
	conn   net.Conn
	logger observability.Logger
}

func (w *clientWriter) Queue(b []byte) {
	if _, err := w.conn.Write(b); err != nil {
		w.logger.Debug("client write failed", observability.Error(err))
	}
}

// Connection runs the event loop for one client connection. All
// handler invocations happen on the loop goroutine, so request
// handling, response handling and teardown never race.
type Connection struct {
	id          string
	client      net.Conn
	handler     *proxy.Handler
	logger      observability.Logger
	readTimeout time.Duration

	req          *message.Request
	events       chan event
	done         chan struct{}
	upstreamGen  int
	lastUpstream *upstream.Conn

	// pending holds requests forwarded upstream whose responses have
	// not completed yet, in dispatch order. Teardown drains it so a
	// connection dying mid-exchange still gets an access-log record.
	pending []exchange
}

// exchange is the request side of one in-flight request/response pair.
type exchange struct {
	method string
	path   string
	start  time.Time
}

// NewConnection creates a connection loop over an established client
// socket and its handler.
func NewConnection(
	id string,
	client net.Conn,
	handler *proxy.Handler,
	logger observability.Logger,
	readTimeout time.Duration,
) *Connection {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Connection{
		id:          id,
		client:      client,
		handler:     handler,
		logger:      logger.With(observability.String("conn_id", id)),
		readTimeout: readTimeout,
		req:         &message.Request{},
		events:      make(chan event),
		done:        make(chan struct{}),
	}
}

// Serve runs the event loop until the client disconnects, the upstream
// closes, or the context is cancelled.
func (c *Connection) Serve(ctx context.Context) {
	defer c.teardown()
	defer close(c.done)

	go c.readClient()

	for {
		select {
		case <-ctx.Done():
			return

		case ev := <-c.events:
			switch ev.kind {
			case evClientData:
				if !c.onClientData(ctx, ev.data) {
					return
				}

			case evClientClosed:
				return

			case evUpstreamData:
				if ev.gen != c.upstreamGen {
					continue
				}
				statuses, err := c.handler.HandleUpstreamData(ev.data)
				for _, status := range statuses {
					c.logExchange(status)
				}
				if err != nil {
					c.logger.Warn("upstream response parse failed",
						observability.Error(err),
					)
					return
				}

			case evUpstreamClosed:
				if ev.gen != c.upstreamGen {
					continue
				}
				c.logger.Debug("upstream closed connection")
				return
			}
		}
	}
}

// onClientData feeds a raw client chunk into the request parser and
// dispatches completed requests, including pipelined ones packed into
// the same chunk. It reports whether the connection should stay open.
func (c *Connection) onClientData(ctx context.Context, chunk []byte) bool {
	data := chunk
	for {
		if err := c.req.Parse(data); err != nil {
			c.logger.Debug("malformed request", observability.Error(err))
			c.respond(400, "Bad Request")
			return false
		}
		if !c.req.Complete() {
			return true
		}

		// The handler rewrites the path to the backend remainder, so
		// record the exchange as the client sent it.
		ex := exchange{method: c.req.Method, path: c.req.Path, start: time.Now()}
		rest := c.req.Rest()

		err := c.handler.HandleRequest(ctx, c.req)
		switch {
		case err == nil:
			c.pending = append(c.pending, ex)
			c.req.Reset()
			c.ensureUpstreamReader()

		case errors.Is(err, proxy.ErrRoutingAbort):
			c.logger.Debug("request aborted by plugin")
			return false

		case errors.Is(err, proxy.ErrNoRouteMatched):
			// Recoverable: tell the client and keep the connection.
			c.logger.Debug("no route matched",
				observability.String("path", ex.path),
			)
			c.respond(404, "Not Found")
			c.emitAccessLog(ex, 404)
			c.req.Reset()

		default:
			c.logger.Warn("upstream connect failed", observability.Error(err))
			c.respond(502, "Bad Gateway")
			return false
		}

		if len(rest) == 0 {
			return true
		}
		data = rest
	}
}

// logExchange pairs a completed upstream response with the oldest
// outstanding request and emits its access-log record.
func (c *Connection) logExchange(status int) {
	var ex exchange
	if len(c.pending) > 0 {
		ex = c.pending[0]
		c.pending = c.pending[1:]
	}
	c.emitAccessLog(ex, status)
}

func (c *Connection) emitAccessLog(ex exchange, status int) {
	method, path := ex.method, ex.path
	if method == "" {
		method = "-"
	}
	if path == "" {
		path = "-"
	}
	ctx := map[string]any{
		"client_addr":    c.client.RemoteAddr().String(),
		"request_method": method,
		"request_path":   path,
	}
	if status != 0 {
		ctx["status_code"] = status
	}
	if !ex.start.IsZero() {
		ctx["duration_ms"] = time.Since(ex.start).Milliseconds()
	}
	c.handler.OnAccessLog(ctx)
}

// ensureUpstreamReader starts a reader goroutine for the handler's
// current upstream connection. A replaced connection is closed by the
// handler, which unblocks its reader; any events it raced in carry a
// stale generation and are dropped.
func (c *Connection) ensureUpstreamReader() {
	conn := c.handler.Upstream()
	if conn == nil || conn == c.lastUpstream {
		return
	}
	c.upstreamGen++
	c.lastUpstream = conn
	go c.readUpstream(conn, c.upstreamGen)
}

func (c *Connection) readClient() {
	buf := make([]byte, readBufferSize)
	for {
		if c.readTimeout > 0 {
			_ = c.client.SetReadDeadline(time.Now().Add(c.readTimeout))
		}
		n, err := c.client.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if !c.send(event{kind: evClientData, data: chunk}) {
				return
			}
		}
		if err != nil {
			c.send(event{kind: evClientClosed})
			return
		}
	}
}

func (c *Connection) readUpstream(conn *upstream.Conn, gen int) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if !c.send(event{kind: evUpstreamData, data: chunk, gen: gen}) {
				return
			}
		}
		if err != nil {
			c.send(event{kind: evUpstreamClosed, gen: gen})
			return
		}
	}
}

func (c *Connection) send(ev event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

// respond writes a minimal error response to the client.
func (c *Connection) respond(status int, reason string) {
	resp := message.NewResponse(status, reason)
	resp.SetBody(nil)
	if _, err := c.client.Write(resp.Build()); err != nil {
		c.logger.Debug("error response write failed", observability.Error(err))
	}
}

func (c *Connection) teardown() {
	// Completed exchanges were logged as their responses finished;
	// only exchanges cut off mid-response are left to record here.
	for _, ex := range c.pending {
		c.emitAccessLog(ex, 0)
	}
	c.pending = nil
	c.handler.OnClientConnectionClose()
	_ = c.client.Close()
}
