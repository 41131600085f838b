package server

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trackedPipe(t *testing.T) net.Conn {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return client
}

func TestConnectionTracker_AddRemove(t *testing.T) {
	t.Parallel()

	tracker := NewConnectionTracker(4, nil)

	tracked, err := tracker.Add(trackedPipe(t))
	require.NoError(t, err)
	assert.NotEmpty(t, tracked.ID)
	assert.Equal(t, 1, tracker.Count())

	tracker.Remove(tracked.ID)
	assert.Equal(t, 0, tracker.Count())

	// Removing twice is harmless.
	tracker.Remove(tracked.ID)
	assert.Equal(t, 0, tracker.Count())
}

func TestConnectionTracker_Cap(t *testing.T) {
	t.Parallel()

	tracker := NewConnectionTracker(2, nil)

	_, err := tracker.Add(trackedPipe(t))
	require.NoError(t, err)
	_, err = tracker.Add(trackedPipe(t))
	require.NoError(t, err)

	_, err = tracker.Add(trackedPipe(t))
	assert.Error(t, err)
	assert.Equal(t, 2, tracker.Count())
}

func TestConnectionTracker_List(t *testing.T) {
	t.Parallel()

	tracker := NewConnectionTracker(4, nil)
	a, err := tracker.Add(trackedPipe(t))
	require.NoError(t, err)
	b, err := tracker.Add(trackedPipe(t))
	require.NoError(t, err)

	ids := map[string]bool{}
	for _, tc := range tracker.List() {
		ids[tc.ID] = true
	}
	assert.True(t, ids[a.ID])
	assert.True(t, ids[b.ID])
}

func TestConnectionTracker_CloseAll(t *testing.T) {
	t.Parallel()

	tracker := NewConnectionTracker(4, nil)
	client, server := net.Pipe()
	defer server.Close()

	_, err := tracker.Add(client)
	require.NoError(t, err)

	tracker.CloseAll()

	_, err = client.Write([]byte("x"))
	assert.Error(t, err)
}
