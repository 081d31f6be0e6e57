package execution

// TableState is the registry of blocks a single node holds for a
// single table, grouped by the spec they belong to. It carries no
// lock of its own. A Manager's mutex guards the Manager's own maps,
// but State and States hand out the TableState pointers themselves,
// and callers use them without that mutex held.
type TableState struct {
	blocksBySpec map[string][]*BatchBlock
}

// NewTableState returns an empty TableState.
func NewTableState() *TableState {
	return &TableState{blocksBySpec: map[string][]*BatchBlock{}}
}

// emptyTableState is the sentinel returned by Manager.State for a
// table it has no entry for, so callers never need a nil check.
var emptyTableState = NewTableState()

// Add registers a block under its spec, and returns false without
// inserting it if a structurally-equal block (same table, spec, and
// content) is already present, so a retried ingestion task can't
// double-count the same bytes.
func (t *TableState) Add(b *BatchBlock) bool {
	for _, existing := range t.blocksBySpec[b.SpecID] {
		if existing.Equal(b) {
			return false
		}
	}
	t.blocksBySpec[b.SpecID] = append(t.blocksBySpec[b.SpecID], b)
	return true
}

// RemoveBySpec drops every block belonging to specID and returns how
// many were removed.
func (t *TableState) RemoveBySpec(specID string) int {
	blocks, ok := t.blocksBySpec[specID]
	if !ok {
		return 0
	}
	delete(t.blocksBySpec, specID)
	return len(blocks)
}

// HasSpec reports whether the table state holds any blocks for
// specID.
func (t *TableState) HasSpec(specID string) bool {
	_, ok := t.blocksBySpec[specID]
	return ok
}

// Specs returns the set of spec IDs the table state currently holds
// blocks for.
func (t *TableState) Specs() []string {
	specs := make([]string, 0, len(t.blocksBySpec))
	for id := range t.blocksBySpec {
		specs = append(specs, id)
	}
	return specs
}

// RawBytes sums the in-memory footprint of every block held.
func (t *TableState) RawBytes() int64 {
	var total int64
	for _, blocks := range t.blocksBySpec {
		for _, b := range blocks {
			total += b.RawBytes()
		}
	}
	return total
}

// Expired evaluates keep for every spec the table state holds and
// returns the IDs for which keep returned false.
func (t *TableState) Expired(keep func(specID string) bool) []string {
	var expired []string
	for id := range t.blocksBySpec {
		if !keep(id) {
			expired = append(expired, id)
		}
	}
	return expired
}

// Merge folds other's blocks into a new TableState without mutating
// either input, used to build cross-node metrics for a table.
func (t *TableState) Merge(other *TableState) *TableState {
	merged := NewTableState()
	for id, blocks := range t.blocksBySpec {
		merged.blocksBySpec[id] = append(merged.blocksBySpec[id], blocks...)
	}
	if other != nil {
		for id, blocks := range other.blocksBySpec {
			merged.blocksBySpec[id] = append(merged.blocksBySpec[id], blocks...)
		}
	}
	return merged
}
