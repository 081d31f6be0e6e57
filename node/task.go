// Package node defines the RPC contract between the coordinator and
// worker nodes (echo/query/poll/task), and provides an HTTP+JSON
// transport for it along with a health-polling loop.
package node

import (
	"github.com/google/uuid"

	"github.com/blockmeshdb/coordinator/meta"
)

// TaskType distinguishes the two kinds of work the coordinator hands
// to a worker.
type TaskType string

const (
	Ingestion  TaskType = "INGESTION"
	Expiration TaskType = "EXPIRATION"
)

// TaskState is the lifecycle of a task as reported back by a worker.
type TaskState string

const (
	Queue      TaskState = "QUEUE"
	InProgress TaskState = "IN_PROGRESS"
	Succeeded  TaskState = "SUCCEEDED"
	Failed     TaskState = "FAILED"
)

// Task is a unit of work sent to a worker: either ingest a single
// spec, or expire a batch of them. ID is a fresh random UUID for every
// task built, so a task rebuilt on a later pass gets a new ID; the
// worker's Server does not read it.
type Task struct {
	ID    string       `json:"id"`
	Type  TaskType     `json:"type"`
	Spec  *meta.Spec   `json:"spec,omitempty"`
	Specs []*meta.Spec `json:"specs,omitempty"`
}

// TaskReply is a worker's answer to a Task. State is always one of the
// four TaskState values; Empty is only meaningful alongside a
// SUCCEEDED ingestion, reporting that the loader ran but produced no
// block for the spec, so the coordinator can record it as an empty
// spec instead of guessing from its own possibly-stale local state.
type TaskReply struct {
	State TaskState
	Empty bool
}

// NewIngestionTask builds a task instructing a worker to materialize
// and load a single spec.
func NewIngestionTask(spec *meta.Spec) Task {
	return Task{ID: uuid.NewString(), Type: Ingestion, Spec: spec}
}

// NewExpirationTask builds a task instructing a worker to drop the
// given specs from memory.
func NewExpirationTask(specs []*meta.Spec) Task {
	return Task{ID: uuid.NewString(), Type: Expiration, Specs: specs}
}
