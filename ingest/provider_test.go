package ingest_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockmeshdb/coordinator/ingest"
	"github.com/blockmeshdb/coordinator/meta"
)

func TestGenerateAtStaticTable(t *testing.T) {
	ctx := context.Background()
	p := ingest.NewProvider(nil, nil)
	table := meta.TableSpec{Name: "dims", Template: "dims/region.parquet", Macro: meta.Invalid}

	specs := p.GenerateAt(ctx, "v1", table, time.Now().UTC())
	require.Len(t, specs, 1)
	assert.True(t, strings.HasPrefix(specs[0].ID, "dims|"))
	assert.Equal(t, "dims/region.parquet", specs[0].Path)
	assert.Equal(t, meta.SpecNew, specs[0].State)
	assert.Equal(t, meta.NoAffinity, specs[0].Affinity)
}

func TestGenerateAtIDIsStableAcrossRuns(t *testing.T) {
	ctx := context.Background()
	table := meta.TableSpec{Name: "dims", Template: "dims/region.parquet", Macro: meta.Invalid}
	now := time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC)

	id1 := ingest.NewProvider(nil, nil).GenerateAt(ctx, "v1", table, now)[0].ID
	id2 := ingest.NewProvider(nil, nil).GenerateAt(ctx, "v1", table, now)[0].ID
	assert.Equal(t, id1, id2, "identical table/path/hints must hash to the same spec ID")
}

func TestGenerateAtTimestampTable(t *testing.T) {
	ctx := context.Background()
	p := ingest.NewProvider(nil, nil)
	table := meta.TableSpec{Name: "events", Template: "events_{timestamp}.parquet", Macro: meta.Timestamp}

	now := time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC)
	specs := p.GenerateAt(ctx, "v1", table, now)
	require.Len(t, specs, 1)
	assert.Equal(t, "events_1786017600.parquet", specs[0].Path)
	assert.True(t, strings.HasPrefix(specs[0].ID, "events|"))
}

func TestGenerateAtHourlyWindow(t *testing.T) {
	ctx := context.Background()
	p := ingest.NewProvider(nil, nil)
	start := time.Date(2026, 8, 6, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 6, 3, 0, 0, 0, time.UTC)
	table := meta.TableSpec{
		Name:     "events",
		Template: "{date}/{hour}/events.parquet",
		Macro:    meta.CompositeHourly,
		Start:    start,
		End:      end,
	}

	specs := p.GenerateAt(ctx, "v1", table, end)
	require.Len(t, specs, 3)
	assert.Equal(t, "2026-08-06/00/events.parquet", specs[0].Path)
	assert.Equal(t, "2026-08-06/01/events.parquet", specs[1].Path)
	assert.Equal(t, "2026-08-06/02/events.parquet", specs[2].Path)
	for _, s := range specs {
		assert.True(t, strings.HasPrefix(s.ID, "events|"))
	}
	assert.NotEqual(t, specs[0].ID, specs[1].ID, "distinct paths must not collide on ID")

	assert.Equal(t, start, specs[0].Start)
	assert.Equal(t, start.Add(time.Hour), specs[0].End, "an hourly spec's window is exactly one hour wide")
}

func TestGenerateAtEmptyWindowProducesNoSpecs(t *testing.T) {
	ctx := context.Background()
	p := ingest.NewProvider(nil, nil)
	table := meta.TableSpec{
		Name:     "events",
		Template: "{date}/events.parquet",
		Macro:    meta.CompositeDaily,
	}
	specs := p.GenerateAt(ctx, "v1", table, time.Now().UTC())
	assert.Empty(t, specs)
}
