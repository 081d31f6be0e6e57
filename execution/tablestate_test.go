package execution_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/blockmeshdb/coordinator/execution"
)

func TestTableStateExpired(t *testing.T) {
	ts := execution.NewTableState()
	ts.Add(&execution.BatchBlock{SpecID: "keep", Table: "events"})
	ts.Add(&execution.BatchBlock{SpecID: "drop", Table: "events"})

	keep := func(id string) bool { return id == "keep" }
	expired := ts.Expired(keep)

	assert.ElementsMatch(t, []string{"drop"}, expired)
}

func TestTableStateMergeDoesNotMutateInputs(t *testing.T) {
	a := execution.NewTableState()
	a.Add(&execution.BatchBlock{SpecID: "s1", Table: "events", Payload: []byte("ab")})

	b := execution.NewTableState()
	b.Add(&execution.BatchBlock{SpecID: "s2", Table: "events", Payload: []byte("cde")})

	merged := a.Merge(b)
	assert.ElementsMatch(t, []string{"s1", "s2"}, merged.Specs())
	assert.EqualValues(t, 5, merged.RawBytes())

	assert.ElementsMatch(t, []string{"s1"}, a.Specs())
	assert.ElementsMatch(t, []string{"s2"}, b.Specs())
}

func TestBatchBlockHashAndEqual(t *testing.T) {
	a := &execution.BatchBlock{SpecID: "s1", Table: "events", Payload: []byte("abc")}
	b := &execution.BatchBlock{SpecID: "s1", Table: "events", Payload: []byte("abc")}
	c := &execution.BatchBlock{SpecID: "s1", Table: "events", Payload: []byte("abd")}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))
	assert.EqualValues(t, 3, a.RawBytes())
}

func TestBatchBlockHashDistinguishesTimeRange(t *testing.T) {
	day1 := time.Date(2026, 8, 6, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 7, 0, 0, 0, 0, time.UTC)

	a := &execution.BatchBlock{SpecID: "s1", Table: "events", Start: day1, End: day1.Add(24 * time.Hour), Payload: []byte("abc")}
	b := &execution.BatchBlock{SpecID: "s1", Table: "events", Start: day2, End: day2.Add(24 * time.Hour), Payload: []byte("abc")}

	assert.False(t, a.Equal(b), "same spec/table/payload but a different covered window must not dedup as equal")
}
