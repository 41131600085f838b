package plugin

import "sync"

// RouteTable is a shared, swappable route table. Configuration reload
// replaces the entries; connections established afterwards see the new
// table, in-flight connections keep the snapshot they started with.
type RouteTable struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewRouteTable creates a route table with the given initial entries.
func NewRouteTable(entries []Entry) *RouteTable {
	return &RouteTable{entries: entries}
}

// Set replaces the table contents.
func (t *RouteTable) Set(entries []Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = entries
}

// Snapshot returns a copy of the current entries.
func (t *RouteTable) Snapshot() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snapshot := make([]Entry, len(t.entries))
	copy(snapshot, t.entries)
	return snapshot
}

// Static is a route plugin backed by a fixed route table, typically
// loaded from configuration. All entries carry static candidate lists;
// it performs no dynamic resolution and no message rewriting.
type Static struct {
	Base
	entries []Entry
}

// NewStatic creates a static route plugin from the given entries.
func NewStatic(entries []Entry) *Static {
	return &Static{entries: entries}
}

// StaticFactory returns a Factory producing a Static plugin with the
// given entries for every connection.
func StaticFactory(entries []Entry) Factory {
	return func(ConnContext) Plugin {
		return NewStatic(entries)
	}
}

// StaticFromTable returns a Factory producing a Static plugin whose
// entries are snapshotted from the shared table at connection setup.
func StaticFromTable(table *RouteTable) Factory {
	return func(ConnContext) Plugin {
		return NewStatic(table.Snapshot())
	}
}

// Regexes advertises the patterns of all entries.
func (p *Static) Regexes() []string {
	patterns := make([]string, 0, len(p.entries))
	for _, e := range p.entries {
		patterns = append(patterns, e.Pattern)
	}
	return patterns
}

// Routes returns the configured entries in order.
func (p *Static) Routes() []Entry {
	return p.entries
}

// SetEntries replaces the route table. Used by configuration reload;
// the caller is responsible for not racing active handlers.
func (p *Static) SetEntries(entries []Entry) {
	p.entries = entries
}
