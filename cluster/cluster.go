// Package cluster defines the coordinator's view of the outside
// cluster config store: which nodes exist, whether they're active,
// and what tables the cluster is configured to ingest. The
// coordinator treats this as an external system it reads from and
// occasionally annotates (node size); it never owns this state.
package cluster

import (
	"context"
	"sync"

	"github.com/blockmeshdb/coordinator/meta"
)

// Info is the read side of the cluster config store: the set of nodes
// currently registered, and the tables configured for ingestion.
type Info interface {
	Nodes(ctx context.Context) ([]meta.Node, error)
	Tables(ctx context.Context) ([]meta.TableSpec, error)
	// UpdateNodeSize records a node's current in-memory footprint, as
	// observed after an expiration pass, so subsequent placement
	// decisions see up-to-date load.
	UpdateNodeSize(ctx context.Context, addr meta.Address, size int64) error
	// Version returns an opaque, monotonically-changing string used
	// to tag generated specs; callers should treat it as ordered but
	// not otherwise meaningful.
	Version(ctx context.Context) (string, error)
}

// StaticInfo is an in-memory Info backed by a fixed node and table
// list, useful for tests and for single-process deployments that
// don't run an external store.
type StaticInfo struct {
	mu      sync.Mutex
	nodes   map[meta.Address]meta.Node
	tables  []meta.TableSpec
	version string
}

// NewStaticInfo returns a StaticInfo seeded with nodes and tables.
func NewStaticInfo(nodes []meta.Node, tables []meta.TableSpec, version string) *StaticInfo {
	s := &StaticInfo{
		nodes:   map[meta.Address]meta.Node{},
		tables:  tables,
		version: version,
	}
	for _, n := range nodes {
		s.nodes[n.Address] = n
	}
	return s
}

func (s *StaticInfo) Nodes(context.Context) ([]meta.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]meta.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n)
	}
	return out, nil
}

func (s *StaticInfo) Tables(context.Context) ([]meta.TableSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tables, nil
}

func (s *StaticInfo) UpdateNodeSize(_ context.Context, addr meta.Address, size int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[addr]
	if !ok {
		return nil
	}
	n.Size = size
	s.nodes[addr] = n
	return nil
}

func (s *StaticInfo) Version(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version, nil
}

// RemoveNode drops addr from the node set, used by tests simulating a
// node leaving the cluster.
func (s *StaticInfo) RemoveNode(addr meta.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nodes, addr)
}

var _ Info = (*StaticInfo)(nil)
