package upstream

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipeConn(t *testing.T, host string, port int) *Conn {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return newConn(client, "http", host, port)
}

func TestConn_Close_Idempotent(t *testing.T) {
	t.Parallel()

	conn := pipeConn(t, "backend", 8080)

	require.NoError(t, conn.Close())
	assert.True(t, conn.Closed())

	// Closing again is a no-op, never an error.
	assert.NoError(t, conn.Close())
	assert.NoError(t, conn.Close())
}

func TestConn_Queue_AfterClose(t *testing.T) {
	t.Parallel()

	conn := pipeConn(t, "backend", 8080)
	require.NoError(t, conn.Close())

	err := conn.Queue([]byte("data"))
	assert.ErrorIs(t, err, ErrConnClosed)
}

func TestConn_Queue(t *testing.T) {
	t.Parallel()

	client, server := net.Pipe()
	defer server.Close()

	conn := newConn(client, "http", "backend", 9090)
	defer conn.Close()

	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 4)
		n, _ := server.Read(buf)
		done <- buf[:n]
	}()

	require.NoError(t, conn.Queue([]byte("ping")))
	assert.Equal(t, []byte("ping"), <-done)

	assert.Equal(t, "backend", conn.Host())
	assert.Equal(t, 9090, conn.Port())
}
