package upstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_AcquireEmpty(t *testing.T) {
	t.Parallel()

	pool := NewPool()
	conn, ok := pool.Acquire("http", "backend", 8080)
	assert.False(t, ok)
	assert.Nil(t, conn)
}

func TestPool_ReleaseAcquire(t *testing.T) {
	t.Parallel()

	pool := NewPool()
	conn := pipeConn(t, "backend", 8080)

	pool.Release(conn)
	assert.Equal(t, 1, pool.IdleCount("http", "backend", 8080))

	got, ok := pool.Acquire("http", "backend", 8080)
	require.True(t, ok)
	assert.Same(t, conn, got)
	assert.Equal(t, 0, pool.IdleCount("http", "backend", 8080))
}

func TestPool_AcquireSkipsClosed(t *testing.T) {
	t.Parallel()

	pool := NewPool()
	conn := pipeConn(t, "backend", 8080)
	pool.Release(conn)

	require.NoError(t, conn.Close())

	_, ok := pool.Acquire("http", "backend", 8080)
	assert.False(t, ok)
}

func TestPool_ReleaseClosedDiscarded(t *testing.T) {
	t.Parallel()

	pool := NewPool()
	conn := pipeConn(t, "backend", 8080)
	require.NoError(t, conn.Close())

	pool.Release(conn)
	assert.Equal(t, 0, pool.IdleCount("http", "backend", 8080))
}

func TestPool_MaxIdlePerHost(t *testing.T) {
	t.Parallel()

	pool := NewPool(WithMaxIdlePerHost(1))

	first := pipeConn(t, "backend", 8080)
	second := pipeConn(t, "backend", 8080)

	pool.Release(first)
	pool.Release(second)

	assert.Equal(t, 1, pool.IdleCount("http", "backend", 8080))
	assert.True(t, second.Closed())
	assert.False(t, first.Closed())
}

func TestPool_KeyedBySchemeHostAndPort(t *testing.T) {
	t.Parallel()

	pool := NewPool()
	pool.Release(pipeConn(t, "backend", 8080))

	_, ok := pool.Acquire("http", "backend", 9090)
	assert.False(t, ok)

	_, ok = pool.Acquire("http", "other", 8080)
	assert.False(t, ok)

	// A plaintext conn must never be handed out for a TLS target at
	// the same backend address.
	_, ok = pool.Acquire("https", "backend", 8080)
	assert.False(t, ok)

	_, ok = pool.Acquire("http", "backend", 8080)
	assert.True(t, ok)
}

func TestPool_Close(t *testing.T) {
	t.Parallel()

	pool := NewPool()
	idle := pipeConn(t, "backend", 8080)
	pool.Release(idle)

	pool.Close()
	assert.True(t, idle.Closed())

	// Releases after close discard the connection.
	late := pipeConn(t, "backend", 8080)
	pool.Release(late)
	assert.True(t, late.Closed())
	assert.Equal(t, 0, pool.IdleCount("http", "backend", 8080))
}
