package ingest

import (
	"fmt"

	"github.com/blockmeshdb/coordinator/errors"
)

const (
	// ErrCodeInvalidTemplate marks a table whose path template fails
	// to resolve to a usable macro.
	ErrCodeInvalidTemplate errors.Code = "InvalidTemplate"

	// ErrCodeEmptySpec marks a spec a worker reported producing no
	// data for.
	ErrCodeEmptySpec errors.Code = "EmptySpec"

	// ErrCodeInconsistent marks state the coordinator can detect but
	// not safely repair on its own, such as a spec whose invariant
	// (a READY spec always has an affinity) has been violated.
	ErrCodeInconsistent errors.Code = "Inconsistent"

	// ErrCodeFatal marks an error the reconciliation loop can't
	// recover from within the current pass, such as running out of
	// active nodes mid-assignment.
	ErrCodeFatal errors.Code = "Fatal"
)

func newErrInvalidTemplate(table string, template string) error {
	return errors.New(ErrCodeInvalidTemplate, fmt.Sprintf("table %s: template %q does not resolve to a valid macro", table, template))
}

func newErrEmptySpec(id string) error {
	return errors.New(ErrCodeEmptySpec, fmt.Sprintf("spec %s reported empty", id))
}

func newErrInconsistent(msg string) error {
	return errors.New(ErrCodeInconsistent, msg)
}

func newErrFatal(msg string) error {
	return errors.New(ErrCodeFatal, msg)
}
