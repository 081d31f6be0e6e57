package meta

import "time"

// SpecState is the lifecycle state of a Spec as tracked by the
// coordinator: NEW until a worker has confirmed it's holding the
// data, READY once ingestion succeeds.
type SpecState uint8

const (
	SpecNew SpecState = iota
	SpecReady
)

func (s SpecState) String() string {
	switch s {
	case SpecNew:
		return "NEW"
	case SpecReady:
		return "READY"
	default:
		return "UNKNOWN"
	}
}

// Template is a path pattern that may contain macro placeholders, for
// example "warehouse/{date}/{hour}/events.parquet".
type Template string

// Spec identifies one materialized partition of a table: a single
// path, pinned to a point in time (or a fixed value set, for
// non-time-partitioned tables), and its residency state in the
// cluster.
//
// A SpecReady spec always has an Affinity, and a spec with no Affinity
// is always SpecNew. The converse does not hold: placement sets
// Affinity first, and the spec stays SpecNew (placed but not yet
// synced) until a worker confirms the ingestion task.
type Spec struct {
	ID              string
	Table           string
	Path            string
	Version         string
	SyncedVersion   string
	PartitionValues map[string]string
	Start           time.Time
	End             time.Time
	State           SpecState
	Affinity        Address
}

// Assigned reports whether the spec has been placed on a node.
func (s *Spec) Assigned() bool {
	return s.Affinity != NoAffinity
}

// NeedSync reports whether the spec has been placed but a worker
// hasn't yet confirmed it holds the current Version, meaning a task
// still needs to be sent: either it's never been synced at all, or
// its registry entry was refreshed to a new config version since the
// last time a worker acknowledged it.
func (s *Spec) NeedSync() bool {
	return s.Assigned() && (s.State == SpecNew || s.SyncedVersion != s.Version)
}

// Reset clears a spec's placement, returning it to its initial,
// unassigned state. Used when a spec's node is lost or found to be an
// orphan (assigned to a node the cluster no longer knows about).
func (s *Spec) Reset() {
	s.Affinity = NoAffinity
	s.State = SpecNew
	s.SyncedVersion = ""
}

// TableSpec describes a table's partitioning scheme: the path
// template to materialize, the macro this template resolves to, and
// (for time-partitioned tables) the window of watermarks the spec
// provider should enumerate. End of the zero value means "up to now".
// Macro is normally left zero by callers that construct a TableSpec
// from configuration; ingest.Repo.Refresh derives it from Template via
// Extract before generation ever sees it, so a caller-supplied value
// here is only a hint used by tests that skip Refresh and call a
// Provider directly.
type TableSpec struct {
	Name     string
	Template Template
	Macro    PatternMacro
	Start    time.Time
	End      time.Time
}
