package node_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/blockmeshdb/coordinator/meta"
	"github.com/blockmeshdb/coordinator/node"
)

func TestNewIngestionTask(t *testing.T) {
	spec := &meta.Spec{ID: "s1", Table: "events"}
	task := node.NewIngestionTask(spec)

	assert.Equal(t, node.Ingestion, task.Type)
	assert.Same(t, spec, task.Spec)
	assert.Nil(t, task.Specs)
	assert.NotEmpty(t, task.ID)
}

func TestNewExpirationTask(t *testing.T) {
	specs := []*meta.Spec{{ID: "s1"}, {ID: "s2"}}
	task := node.NewExpirationTask(specs)

	assert.Equal(t, node.Expiration, task.Type)
	assert.Equal(t, specs, task.Specs)
	assert.Nil(t, task.Spec)
}

func TestTaskIDsAreUnique(t *testing.T) {
	t1 := node.NewIngestionTask(&meta.Spec{ID: "s1"})
	t2 := node.NewIngestionTask(&meta.Spec{ID: "s1"})
	assert.NotEqual(t, t1.ID, t2.ID)
}
