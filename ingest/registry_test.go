package ingest_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockmeshdb/coordinator/ingest"
	"github.com/blockmeshdb/coordinator/meta"
)

func TestRegistryUpdatePreservesPlacement(t *testing.T) {
	reg := ingest.NewRegistry()

	reg.Update([]*meta.Spec{{ID: "s1"}, {ID: "s2"}})
	s1, ok := reg.Get("s1")
	require.True(t, ok)
	s1.Affinity = "node-a:80"
	s1.State = meta.SpecReady

	// Re-run generation: s1 survives (same ID), s2 is dropped, s3 is new.
	reg.Update([]*meta.Spec{{ID: "s1"}, {ID: "s3"}})

	got, ok := reg.Get("s1")
	require.True(t, ok)
	assert.Equal(t, meta.Address("node-a:80"), got.Affinity)
	assert.Equal(t, meta.SpecReady, got.State)

	_, ok = reg.Get("s2")
	assert.False(t, ok)

	_, ok = reg.Get("s3")
	assert.True(t, ok)

	assert.Equal(t, 2, reg.Len())
}

func TestRegistrySpecsPreservesOrder(t *testing.T) {
	reg := ingest.NewRegistry()
	reg.Update([]*meta.Spec{{ID: "a"}, {ID: "b"}, {ID: "c"}})

	ids := []string{}
	for _, s := range reg.Specs() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}
