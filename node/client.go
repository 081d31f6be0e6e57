package node

import (
	"context"

	"github.com/blockmeshdb/coordinator/execution"
	"github.com/blockmeshdb/coordinator/meta"
)

// Client is the coordinator's view of a single worker: enough to
// probe liveness, pull its current state, and hand it work.
type Client interface {
	// Echo round-trips name off the worker, used as a cheap liveness
	// check; coordinatord's poller probes nodes with it.
	Echo(ctx context.Context, name string) (string, error)

	// Update pulls the worker's current table state, so the
	// coordinator's block manager can be kept in sync without the
	// worker having to push every change.
	Update(ctx context.Context) (execution.TableStates, error)

	// Task hands the worker a unit of work and returns its resulting
	// reply. For ingestion tasks this blocks until the worker either
	// finishes or reports failure; for expiration it's fire-and-wait
	// for acknowledgement only.
	Task(ctx context.Context, t Task) (TaskReply, error)

	// Query pushes plan down to the worker and returns its result
	// batch. The coordinator's reconciliation loop never calls this.
	// The worker's Server routes the request but answers it with
	// 501 Not Implemented, so no BatchRows come back from it.
	Query(ctx context.Context, plan QueryPlan) (BatchRows, error)
}

// ClientMaker builds a Client for a given node address. Passing this
// around as a closure, rather than a concrete transport, is what
// keeps the coordinator's reconciliation logic testable without a
// network.
type ClientMaker func(addr meta.Address) Client
