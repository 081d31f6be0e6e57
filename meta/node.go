package meta

import "fmt"

// Address identifies a worker node, in "host:port" form.
type Address string

func (a Address) String() string { return string(a) }

// NoAffinity is the zero Address, used as the affinity of an unassigned
// spec.
const NoAffinity Address = ""

// Local is the pseudo-address the block manager uses for blocks held
// directly by the current process, as opposed to blocks it's only
// tracking on behalf of a remote worker. It's distinct from NoAffinity:
// a spec can have no affinity yet (NoAffinity) while blocks already sit
// in the local process's own state (Local).
const Local Address = "_local"

// Node describes a worker's placement-relevant state as seen by the
// coordinator: whether it's currently reachable, and how much memory
// it currently holds (used to drive least-loaded placement).
type Node struct {
	Address  Address
	IsActive bool
	Size     int64
}

func (n Node) String() string {
	return fmt.Sprintf("%s(active=%t,size=%d)", n.Address, n.IsActive, n.Size)
}
