package node

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/blockmeshdb/coordinator/execution"
	"github.com/blockmeshdb/coordinator/logger"
	"github.com/blockmeshdb/coordinator/meta"
	"github.com/blockmeshdb/coordinator/storage"
)

// Loader loads the bytes a spec's materialized path refers to. On a
// real worker this is backed by a storage.FileSystem; tests can swap
// in a fake.
type Loader interface {
	Load(ctx context.Context, path string) (size int64, err error)
}

// FSLoader adapts a storage.FileSystem to Loader.
type FSLoader struct {
	FS storage.FileSystem
}

func (l FSLoader) Load(ctx context.Context, path string) (int64, error) {
	info, err := l.FS.Info(ctx, path)
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}

// Server is the worker-side handler for the coordinator's RPC surface:
// echo, poll (state pull), task (ingest/expire), and query (routed,
// answered as not implemented). It owns a single
// node's block manager entry, keyed under meta.Local.
type Server struct {
	self    meta.Address
	manager *execution.Manager
	loader  Loader
	logger  logger.Logger
}

// NewServer returns a Server for the node identified by self.
func NewServer(self meta.Address, manager *execution.Manager, loader Loader, log logger.Logger) *Server {
	if log == nil {
		log = logger.NopLogger
	}
	return &Server{self: self, manager: manager, loader: loader, logger: log}
}

// Router builds the mux.Router exposing this server's endpoints.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/echo", s.handleEcho).Methods(http.MethodPost)
	r.HandleFunc("/poll", s.handlePoll).Methods(http.MethodPost)
	r.HandleFunc("/task", s.handleTask).Methods(http.MethodPost)
	r.HandleFunc("/query", s.handleQuery).Methods(http.MethodPost)
	return r
}

func (s *Server) handleEcho(w http.ResponseWriter, r *http.Request) {
	var req echoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, echoResponse{Name: req.Name})
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	states := s.manager.States(meta.Local)
	out := map[string][]string{}
	for table, ts := range states {
		out[table] = ts.Specs()
	}
	writeJSON(w, out)
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	var t Task
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch t.Type {
	case Ingestion:
		state, empty := s.ingest(r.Context(), t.Spec)
		writeJSON(w, taskResponse{State: state, Empty: empty})
	case Expiration:
		writeJSON(w, taskResponse{State: s.expire(t.Specs)})
	default:
		http.Error(w, "unknown task type", http.StatusBadRequest)
	}
}

// handleQuery accepts a QueryPlan and reports the wire contract as
// unimplemented: executing it is the query engine's job, out of scope
// here. The endpoint decodes the plan, rejecting a malformed body with
// 400, and answers every well-formed plan with 501.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var plan QueryPlan
	if err := json.NewDecoder(r.Body).Decode(&plan); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	http.Error(w, "query execution not implemented", http.StatusNotImplemented)
}

// ingest loads spec's materialized path and records a block for it.
// The returned bool reports whether the loader ran to completion but
// produced zero bytes, the "loader returned zero blocks" case the
// coordinator needs to distinguish from a normal successful load: it
// gets treated as an empty spec (covered without a block) rather than
// as evidence of a stale placement.
func (s *Server) ingest(ctx context.Context, spec *meta.Spec) (TaskState, bool) {
	if spec == nil {
		return Failed, false
	}

	size, err := s.loader.Load(ctx, spec.Path)
	if err != nil {
		s.logger.Warnf("node: ingest %s: %v", spec.ID, err)
		return Failed, false
	}

	// The worker tracks how much space a spec occupies without
	// holding the coordinator's copy of its bytes; only a real
	// query engine, out of scope here, would materialize Payload.
	s.manager.Add(meta.Local, spec.Table, &execution.BatchBlock{
		SpecID:  spec.ID,
		Table:   spec.Table,
		Start:   spec.Start,
		End:     spec.End,
		Payload: make([]byte, sizeCap(size)),
	})
	return Succeeded, size == 0
}

// sizeCap bounds how much of a spec's reported size the in-memory
// block actually holds. A worker backing a real analytical engine
// would mmap or stream the underlying file instead of copying it into
// a byte slice; that machinery lives in the query engine, which is
// out of scope here, so this stand-in caps memory use at 1MiB per
// block regardless of the file's real size.
func sizeCap(n int64) int64 {
	const max = 1 << 20
	if n > max {
		return max
	}
	if n < 0 {
		return 0
	}
	return n
}

func (s *Server) expire(specs []*meta.Spec) TaskState {
	for _, spec := range specs {
		s.manager.RemoveBySpec(meta.Local, spec.Table, spec.ID)
	}
	return Succeeded
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
