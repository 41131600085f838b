package server

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vyrodovalexey/avrproxy/internal/observability"
)

// ConnectionTracker tracks active client connections for metrics and
// graceful shutdown.
type ConnectionTracker struct {
	connections sync.Map
	maxConns    int
	connCount   atomic.Int64
	logger      observability.Logger
}

// TrackedConnection is a tracked client connection with metadata.
type TrackedConnection struct {
	ID         string
	RemoteAddr string
	StartTime  time.Time
	conn       net.Conn
}

// NewConnectionTracker creates a tracker enforcing maxConns.
func NewConnectionTracker(maxConns int, logger observability.Logger) *ConnectionTracker {
	if maxConns <= 0 {
		maxConns = 1024
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &ConnectionTracker{
		maxConns: maxConns,
		logger:   logger,
	}
}

// Add registers a connection. It fails when the connection cap is
// reached.
func (t *ConnectionTracker) Add(conn net.Conn) (*TrackedConnection, error) {
	if int(t.connCount.Load()) >= t.maxConns {
		return nil, fmt.Errorf("maximum connections reached: %d", t.maxConns)
	}

	tracked := &TrackedConnection{
		ID:         uuid.New().String(),
		RemoteAddr: conn.RemoteAddr().String(),
		StartTime:  time.Now(),
		conn:       conn,
	}
	t.connections.Store(tracked.ID, tracked)
	t.connCount.Add(1)
	getServerMetrics().activeConnections.Inc()

	t.logger.Debug("connection added",
		observability.String("id", tracked.ID),
		observability.String("remote_addr", tracked.RemoteAddr),
	)
	return tracked, nil
}

// Remove unregisters a connection.
func (t *ConnectionTracker) Remove(id string) {
	if _, loaded := t.connections.LoadAndDelete(id); loaded {
		t.connCount.Add(-1)
		getServerMetrics().activeConnections.Dec()
		t.logger.Debug("connection removed", observability.String("id", id))
	}
}

// Count returns the number of active connections.
func (t *ConnectionTracker) Count() int {
	return int(t.connCount.Load())
}

// List returns all tracked connections.
func (t *ConnectionTracker) List() []*TrackedConnection {
	var connections []*TrackedConnection
	t.connections.Range(func(_, value interface{}) bool {
		connections = append(connections, value.(*TrackedConnection))
		return true
	})
	return connections
}

// CloseAll force-closes every tracked connection.
func (t *ConnectionTracker) CloseAll() {
	t.connections.Range(func(_, value interface{}) bool {
		tracked := value.(*TrackedConnection)
		if tracked.conn != nil {
			_ = tracked.conn.Close()
		}
		return true
	})
}
