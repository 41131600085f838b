package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteTable_SnapshotIsolation(t *testing.T) {
	t.Parallel()

	table := NewRouteTable([]Entry{
		{Pattern: "^/api/.*", Backends: []string{"http://10.0.0.1:8080"}},
	})

	snapshot := table.Snapshot()
	require.Len(t, snapshot, 1)

	table.Set([]Entry{
		{Pattern: "^/v2/.*", Backends: []string{"http://10.0.0.2:8080"}},
	})

	// The earlier snapshot is unaffected by the swap.
	assert.Equal(t, "^/api/.*", snapshot[0].Pattern)
	assert.Equal(t, "^/v2/.*", table.Snapshot()[0].Pattern)
}

func TestStaticFromTable(t *testing.T) {
	t.Parallel()

	table := NewRouteTable([]Entry{
		{Pattern: "^/api/.*", Backends: []string{"http://10.0.0.1:8080"}},
	})
	factory := StaticFromTable(table)

	before := factory(ConnContext{ID: "c1"})
	require.Len(t, before.Routes(), 1)
	assert.Equal(t, "^/api/.*", before.Routes()[0].Pattern)

	table.Set([]Entry{
		{Pattern: "^/v2/.*", Backends: []string{"http://10.0.0.2:8080"}},
	})

	// Existing instances keep their snapshot; new connections see the
	// swapped table.
	assert.Equal(t, "^/api/.*", before.Routes()[0].Pattern)
	after := factory(ConnContext{ID: "c2"})
	assert.Equal(t, "^/v2/.*", after.Routes()[0].Pattern)
}
