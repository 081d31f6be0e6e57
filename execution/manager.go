// Package execution owns the in-memory record of which blocks live on
// which node for which table. It's the block manager and table state
// registry described alongside the ingestion coordinator: a plain,
// explicitly-constructed component rather than a process-wide
// singleton, so tests can spin up as many independent instances as
// they need.
package execution

import (
	"sync"

	"github.com/blockmeshdb/coordinator/meta"
)

// TableStates maps table name to that table's block registry, for one
// node.
type TableStates map[string]*TableState

// Manager tracks, for every node the coordinator knows about, which
// blocks it holds per table. A single mutex guards the whole
// registry; callers must not hold it across RPCs or other I/O, so
// Manager's own methods never block on anything but memory access.
type Manager struct {
	mu sync.Mutex

	data       map[meta.Address]TableStates
	emptySpecs map[string]struct{}
	blocks     int64
}

// NewManager returns a Manager seeded with an empty local table set.
func NewManager() *Manager {
	return &Manager{
		data:       map[meta.Address]TableStates{meta.Local: {}},
		emptySpecs: map[string]struct{}{},
	}
}

// Add registers a single block for node/table, creating the node and
// table entries if this is the first block seen for either. It
// returns false, without inserting anything, if a structurally-equal
// block is already present.
func (m *Manager) Add(node meta.Address, table string, b *BatchBlock) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	states, ok := m.data[node]
	if !ok {
		states = TableStates{}
		m.data[node] = states
	}
	ts, ok := states[table]
	if !ok {
		ts = NewTableState()
		states[table] = ts
	}
	if !ts.Add(b) {
		return false
	}
	m.blocks++
	return true
}

// AddBatch registers every block in blocks for node/table and returns
// how many were actually inserted, skipping any that duplicate a
// block already present.
func (m *Manager) AddBatch(node meta.Address, table string, blocks []*BatchBlock) int {
	n := 0
	for _, b := range blocks {
		if m.Add(node, table, b) {
			n++
		}
	}
	return n
}

// RemoveBySpec drops every block belonging to specID from node/table
// and returns the count removed.
func (m *Manager) RemoveBySpec(node meta.Address, table, specID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	states, ok := m.data[node]
	if !ok {
		return 0
	}
	ts, ok := states[table]
	if !ok {
		return 0
	}
	n := ts.RemoveBySpec(specID)
	m.blocks -= int64(n)
	return n
}

// RecordEmptySpec marks specID as known to produce no blocks, so
// placement logic can treat it as satisfied without ever seeing a
// block for it.
func (m *Manager) RecordEmptySpec(specID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emptySpecs[specID] = struct{}{}
}

// EmptySpecs returns a snapshot of the empty-spec set.
func (m *Manager) EmptySpecs() map[string]struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]struct{}, len(m.emptySpecs))
	for id := range m.emptySpecs {
		out[id] = struct{}{}
	}
	return out
}

// ClearEmptySpecs empties the empty-spec set, called at the start of
// each expiration pass so stale entries don't accumulate forever.
func (m *Manager) ClearEmptySpecs() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emptySpecs = map[string]struct{}{}
}

// State returns the local (in-process) table state for table, or an
// empty sentinel if none is registered. This never allocates a new
// entry; use Add for that.
func (m *Manager) State(table string) *TableState {
	m.mu.Lock()
	defer m.mu.Unlock()
	states, ok := m.data[meta.Local]
	if !ok {
		return emptyTableState
	}
	ts, ok := states[table]
	if !ok {
		return emptyTableState
	}
	return ts
}

// States returns node's full table registry. The returned map may be
// empty but is never nil.
func (m *Manager) States(node meta.Address) TableStates {
	m.mu.Lock()
	defer m.mu.Unlock()
	states, ok := m.data[node]
	if !ok {
		return TableStates{}
	}
	return states
}

// Swap atomically replaces node's entire table registry, used when a
// worker reports its full state in one shot (for example on an
// update/poll RPC response).
func (m *Manager) Swap(node meta.Address, states TableStates) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[node] = states
}

// RemoveNode drops every table state recorded for node, called when
// the coordinator learns a worker is gone for good.
func (m *Manager) RemoveNode(node meta.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, node)
}

// NumBlocks returns the number of blocks currently tracked across
// every node.
func (m *Manager) NumBlocks() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, states := range m.data {
		for _, ts := range states {
			for _, blocks := range ts.blocksBySpec {
				n += int64(len(blocks))
			}
		}
	}
	return n
}

// Tables returns the set of table names known across every node,
// stopping once limit distinct names have been collected. A limit of
// 0 means no limit.
func (m *Manager) Tables(limit int) map[string]struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := map[string]struct{}{}
	for _, states := range m.data {
		for table := range states {
			if _, ok := out[table]; ok {
				continue
			}
			out[table] = struct{}{}
			if limit > 0 && len(out) >= limit {
				return out
			}
		}
	}
	return out
}

// HasSpec reports whether specID is known to be satisfied for table,
// either because it's recorded as empty (no blocks needed) or because
// node actually holds blocks for it.
func (m *Manager) HasSpec(table, specID string, node meta.Address) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.emptySpecs[specID]; ok {
		return true
	}
	states, ok := m.data[node]
	if !ok {
		return false
	}
	ts, ok := states[table]
	if !ok {
		return false
	}
	return ts.HasSpec(specID)
}

// Metrics returns a merged TableState aggregating every node's blocks
// for table, useful for reporting total footprint independent of
// placement.
func (m *Manager) Metrics(table string) *TableState {
	m.mu.Lock()
	defer m.mu.Unlock()

	merged := NewTableState()
	for _, states := range m.data {
		if ts, ok := states[table]; ok {
			merged = merged.Merge(ts)
		}
	}
	return merged
}

// ActiveSpecs returns the union of spec IDs held by any node in
// activeNodes, across every table, plus every spec held under
// meta.Local, which always counts as active. Other nodes tracked in the
// registry but absent from activeNodes are excluded, so a spec whose
// only copy lives on a node that has since left the cluster won't
// count as active.
func (m *Manager) ActiveSpecs(activeNodes []meta.Address) map[string]struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	active := make(map[meta.Address]struct{}, len(activeNodes))
	for _, n := range activeNodes {
		active[n] = struct{}{}
	}

	out := map[string]struct{}{}
	for node, states := range m.data {
		if node != meta.Local {
			if _, ok := active[node]; !ok {
				continue
			}
		}
		for _, ts := range states {
			for _, id := range ts.Specs() {
				out[id] = struct{}{}
			}
		}
	}
	return out
}

// Hist returns, for the local table state, the byte size held per
// spec. Full columnar histograms live in the query engine, which is
// out of scope here; this is a coarse-grained stand-in. Placement and
// expiry do not call it.
func (m *Manager) Hist(table string) map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := map[string]int64{}
	states, ok := m.data[meta.Local]
	if !ok {
		return out
	}
	ts, ok := states[table]
	if !ok {
		return out
	}
	for id, blocks := range ts.blocksBySpec {
		var n int64
		for _, b := range blocks {
			n += b.RawBytes()
		}
		out[id] = n
	}
	return out
}
