package ingest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/blockmeshdb/coordinator/cluster"
	coorderrors "github.com/blockmeshdb/coordinator/errors"
	"github.com/blockmeshdb/coordinator/execution"
	"github.com/blockmeshdb/coordinator/logger"
	"github.com/blockmeshdb/coordinator/meta"
	"github.com/blockmeshdb/coordinator/node"
	"github.com/blockmeshdb/coordinator/storage"
)

// RepoConfig configures a Repo. Cluster and Manager are required; a
// nil Provider or Logger falls back to a sensible default. FS is
// forwarded to the default Provider so spec signatures can fold in a
// source file's real size and modification time; it's ignored when
// Provider is set explicitly.
type RepoConfig struct {
	Cluster  cluster.Info
	Manager  *execution.Manager
	Provider *Provider
	Logger   logger.Logger
	FS       storage.FileSystem
}

// Repo is the reconciliation loop that keeps the cluster's actual
// spec placement converging on the desired state implied by the
// cluster's table configuration. Refresh, Expire, Assign, and Lost all
// take a single shared mutex, so calls to them are serialized; Lost is
// reached both from a poller goroutine, unsynchronized with the rest,
// and internally from Expire's own node passes, which use the unlocked
// lostLocked instead to avoid self-deadlock.
type Repo struct {
	mu sync.Mutex

	cluster  cluster.Info
	manager  *execution.Manager
	provider *Provider
	logger   logger.Logger
	metrics  *Metrics

	registries map[string]*Registry
}

// NewRepo returns a Repo. Panics if cfg.Cluster or cfg.Manager is
// nil, since neither has a meaningful zero-value stand-in.
func NewRepo(cfg RepoConfig) *Repo {
	if cfg.Cluster == nil {
		panic("ingest: RepoConfig.Cluster is required")
	}
	if cfg.Manager == nil {
		panic("ingest: RepoConfig.Manager is required")
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NopLogger
	}
	provider := cfg.Provider
	if provider == nil {
		provider = NewProvider(log, cfg.FS)
	}

	return &Repo{
		cluster:    cfg.Cluster,
		manager:    cfg.Manager,
		provider:   provider,
		logger:     log,
		metrics:    NewMetrics(),
		registries: map[string]*Registry{},
	}
}

// Metrics returns the Repo's counter set, for a caller that wants to
// register them with its own Prometheus registry.
func (r *Repo) Metrics() *Metrics {
	return r.metrics
}

// Refresh regenerates every table's spec set from the current cluster
// configuration and diffs it into each table's registry, preserving
// placement for specs that survive the diff. It returns the total
// number of specs registered across all tables after the refresh.
func (r *Repo) Refresh(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	version, err := r.cluster.Version(ctx)
	if err != nil {
		return 0, err
	}
	tables, err := r.cluster.Tables(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	seen := make(map[string]bool, len(tables))
	total := 0
	for _, table := range tables {
		seen[table.Name] = true

		// A template stored after a pass through a URL escaper arrives
		// with its placeholders as "%7Bname%7D" rather than "{name}";
		// restore those before anything downstream tries to extract or
		// materialize against it.
		restored := meta.RestoreTemplate(string(table.Template), meta.MacroNames)

		if strings.Contains(restored, "{") && meta.Extract(restored) == meta.Invalid {
			r.logger.Warnf("ingest: %v", newErrInvalidTemplate(table.Name, restored))
			continue
		}

		if u, err := meta.ParseURI(restored); err == nil && u.Scheme != "local" {
			if _, err := storage.SchemeFor(u.Scheme); err != nil {
				r.logger.Warnf("ingest: %v", newErrInvalidTemplate(table.Name, restored))
				continue
			}
		}

		// Macro is derived from the template itself rather than trusted
		// from configuration, so a stale or mistaken Macro field on the
		// table can never produce a spec shape that disagrees with its
		// own source-path template.
		table.Template = meta.Template(restored)
		table.Macro = meta.Extract(restored)

		reg, ok := r.registries[table.Name]
		if !ok {
			reg = NewRegistry()
			r.registries[table.Name] = reg
		}

		specs := r.provider.GenerateAt(ctx, version, table, now)
		reg.Update(specs)
		total += reg.Len()
	}

	// A table dropped from configuration keeps its manager entries
	// until the next Expire pass expires all of them; the registry itself
	// is dropped here so a stale table can't keep being counted or
	// assigned against.
	for name := range r.registries {
		if !seen[name] {
			delete(r.registries, name)
		}
	}

	return total, nil
}

// Expire pulls each active node's current state, determines which
// specs it holds are no longer in that table's registry (their
// retention window has rolled past them), and sends a single
// expiration task per node covering all of them. It returns the
// total number of specs expired across the cluster.
func (r *Repo) Expire(ctx context.Context, clientMaker node.ClientMaker) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.manager.ClearEmptySpecs()

	nodes, err := r.cluster.Nodes(ctx)
	if err != nil {
		return 0, err
	}

	// Each active node's expiry pass is independent of every other
	// node's, so they run concurrently: one slow or unreachable
	// worker shouldn't hold up expiry on the rest of the cluster.
	var numExpired int64
	g, gctx := errgroup.WithContext(ctx)
	for _, n := range nodes {
		n := n
		if !n.IsActive {
			continue
		}
		g.Go(func() error {
			expired := r.expireNode(gctx, n.Address, clientMaker)
			atomic.AddInt64(&numExpired, int64(expired))
			return nil
		})
	}
	_ = g.Wait()

	return int(numExpired), nil
}

// expireNode pulls addr's current state, computes which specs it
// holds are no longer wanted, and sends a single expiration task
// covering them. It never returns an error itself; every failure is
// logged and treated as "nothing expired this pass, try again later."
func (r *Repo) expireNode(ctx context.Context, addr meta.Address, clientMaker node.ClientMaker) int {
	client := clientMaker(addr)
	states, err := client.Update(ctx)
	if err != nil {
		// A dial failure means addr is gone outright, not just slow to
		// answer this one poll; resetting its specs now rather than
		// waiting for the separate liveness poller saves a full cycle
		// before reassignment starts.
		if coorderrors.IsAny(err, node.ErrCodeNodeGone) {
			n := r.lostLocked(addr)
			r.logger.Warnf("ingest: expire: %s unreachable, reset %d specs: %v", addr, n, err)
		} else {
			r.logger.Warnf("ingest: expire: %s poll failed: %v", addr, err)
		}
		return 0
	}
	r.manager.Swap(addr, states)

	var expired []*meta.Spec
	var memorySize int64
	for table, ts := range r.manager.States(addr) {
		// A table with no registry was dropped from configuration, so
		// none of its specs are wanted any more.
		reg, ok := r.registries[table]
		ids := ts.Expired(func(id string) bool {
			if !ok {
				return false
			}
			_, stillWanted := reg.Get(id)
			return stillWanted
		})
		// An expired ID is by definition no longer in reg, so there's
		// no live spec object to look up; the worker only needs the
		// ID and table to drop it, so a bare stand-in is enough.
		for _, id := range ids {
			expired = append(expired, &meta.Spec{ID: id, Table: table})
		}
		memorySize += ts.RawBytes()
	}

	numExpired := 0
	if len(expired) > 0 {
		task := node.NewExpirationTask(expired)
		reply, err := client.Task(ctx, task)
		if err != nil {
			r.logger.Warnf("ingest: expire: task to %s failed: %v", addr, err)
		} else {
			r.logger.Debugf("ingest: expire: %s -> %s (%d specs)", addr, reply.State, len(expired))
			numExpired = len(expired)
			r.metrics.TasksSent.Inc()
			r.metrics.SpecsExpired.Add(float64(numExpired))
		}
	}

	if err := r.cluster.UpdateNodeSize(ctx, addr, memorySize); err != nil {
		r.logger.Warnf("ingest: expire: updating size for %s: %v", addr, err)
	}

	return numExpired
}

// Assign places every unassigned spec on an active node using
// round-robin least-loaded-first ordering, resets specs whose
// affinity node has fallen out of the cluster (orphans), and sends an
// ingestion task for every spec that's placed but not yet
// synchronized. It returns the number of tasks sent and the number of
// nodes considered for placement.
func (r *Repo) Assign(ctx context.Context, clientMaker node.ClientMaker) (int, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	nodes, err := r.cluster.Nodes(ctx)
	if err != nil {
		return 0, 0, err
	}
	if len(nodes) == 0 {
		r.logger.Warnf("ingest: assign: no nodes in cluster")
		return 0, 0, nil
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Size < nodes[j].Size })

	activeAddrs := make([]meta.Address, 0, len(nodes))
	for _, n := range nodes {
		if n.IsActive {
			activeAddrs = append(activeAddrs, n.Address)
		}
	}
	activeSpecs := r.manager.ActiveSpecs(activeAddrs)
	emptySpecs := r.manager.EmptySpecs()

	idx := 0
	tasksSent := 0

	for _, reg := range r.registries {
		for _, spec := range reg.Specs() {
			if spec.State == meta.SpecReady && !spec.Assigned() {
				// A READY spec with no affinity violates the invariant
				// that every READY spec has an affinity. Nothing
				// upstream should be able to produce this, so treat it
				// as a bug and force the spec back to a sane state
				// rather than let it wedge placement forever.
				r.logger.Warnf("ingest: assign: %v", newErrInconsistent(fmt.Sprintf("spec %s is READY with no affinity", spec.ID)))
				spec.Reset()
			}

			if spec.Assigned() {
				_, active := activeSpecs[spec.ID]
				_, empty := emptySpecs[spec.ID]
				if !active && !empty {
					spec.Reset()
					r.metrics.SpecsOrphaned.Inc()
				}
			}

			if !spec.Assigned() {
				next, err := placeOnRing(nodes, idx, spec)
				idx = next
				if err != nil {
					return tasksSent, len(nodes), newErrFatal(err.Error())
				}
			}

			if !spec.NeedSync() {
				continue
			}

			client := clientMaker(spec.Affinity)
			reply, err := client.Task(ctx, node.NewIngestionTask(spec))
			if err != nil {
				r.logger.Warnf("ingest: assign: task for %s to %s failed: %v", spec.ID, spec.Affinity, err)
				continue
			}
			tasksSent++
			r.metrics.TasksSent.Inc()

			switch reply.State {
			case node.Succeeded:
				if reply.Empty {
					r.manager.RecordEmptySpec(spec.ID)
					r.logger.Debugf("ingest: assign: %v", newErrEmptySpec(spec.ID))
				}
				spec.State = meta.SpecReady
				spec.SyncedVersion = spec.Version
			case node.Failed, node.Queue, node.InProgress:
				r.logger.Warnf("ingest: assign: spec %s on %s in state %s, will retry", spec.ID, spec.Affinity, reply.State)
			}
		}
	}

	return tasksSent, len(nodes), nil
}

// placeOnRing walks nodes starting at idx, wrapping around, until it
// finds an active node to assign spec to. It returns the ring
// position to resume from on the next call, and an error if no
// active node exists anywhere in the ring.
func placeOnRing(nodes []meta.Node, idx int, spec *meta.Spec) (int, error) {
	start := idx
	for {
		n := nodes[idx]
		idx = (idx + 1) % len(nodes)
		if n.IsActive {
			spec.Affinity = n.Address
			return idx, nil
		}
		if idx == start {
			return idx, newErrFatal("no active node available for placement")
		}
	}
}

// Lost resets every spec currently assigned to addr back to
// unassigned, so the next Assign pass places them elsewhere. It
// returns the number of specs reset. It takes Repo's mutex itself,
// since its real caller is a health poller running on its own
// goroutine, unsynchronized with Refresh/Assign/Expire.
func (r *Repo) Lost(addr meta.Address) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lostLocked(addr)
}

// lostLocked is Lost's body without the lock, for callers that already
// hold r.mu — namely expireNode, reached from Expire's own goroutines.
func (r *Repo) lostLocked(addr meta.Address) int {
	count := 0
	for _, reg := range r.registries {
		for _, spec := range reg.Specs() {
			if spec.Assigned() && spec.Affinity == addr {
				spec.Reset()
				count++
			}
		}
	}
	r.manager.RemoveNode(addr)
	return count
}
