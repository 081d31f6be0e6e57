package meta_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockmeshdb/coordinator/meta"
)

func TestExtract(t *testing.T) {
	cases := []struct {
		name     string
		template string
		want     meta.PatternMacro
	}{
		{"no macros", "warehouse/events.parquet", meta.Invalid},
		{"daily", "warehouse/{date}/events.parquet", meta.CompositeDaily},
		{"hourly", "warehouse/{date}/{hour}/events.parquet", meta.CompositeHourly},
		{"minutely", "warehouse/{date}/{hour}/{minute}/events.parquet", meta.CompositeMinutely},
		{"secondly", "warehouse/{date}/{hour}/{minute}/{second}/events.parquet", meta.CompositeSecondly},
		{"timestamp", "warehouse/events_{timestamp}.parquet", meta.Timestamp},
		{"case insensitive", "warehouse/{DATE}/{Hour}/events.parquet", meta.CompositeHourly},
		{"non-cumulative combination is invalid", "warehouse/{hour}/{second}/events.parquet", meta.Invalid},
		{"timestamp mixed with date is invalid", "warehouse/{date}/{timestamp}.parquet", meta.Invalid},
		{"unknown placeholder ignored", "warehouse/{date}/{region}/events.parquet", meta.CompositeDaily},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, meta.Extract(c.template))
		})
	}
}

func TestSeconds(t *testing.T) {
	assert.EqualValues(t, 86400, meta.Seconds(meta.Daily))
	assert.EqualValues(t, 3600, meta.Seconds(meta.Hourly))
	assert.EqualValues(t, 60, meta.Seconds(meta.Minutely))
	assert.EqualValues(t, 1, meta.Seconds(meta.Secondly))
}

func TestMaterialize(t *testing.T) {
	wm := time.Date(2026, 8, 6, 14, 32, 5, 0, time.UTC).Unix()

	t.Run("invalid macro leaves template untouched", func(t *testing.T) {
		got := meta.Materialize(meta.Invalid, "warehouse/events.parquet", wm)
		assert.Equal(t, "warehouse/events.parquet", got)
	})

	t.Run("timestamp replaces only its own placeholder", func(t *testing.T) {
		got := meta.Materialize(meta.Timestamp, "events_{timestamp}.parquet", wm)
		assert.Equal(t, "events_1786026725.parquet", got)
	})

	t.Run("hourly replaces date and hour but not minute", func(t *testing.T) {
		got := meta.Materialize(meta.CompositeHourly, "{date}/{hour}/{minute}/x", wm)
		assert.Equal(t, "2026-08-06/14/{minute}/x", got)
	})

	t.Run("secondly replaces the whole chain", func(t *testing.T) {
		got := meta.Materialize(meta.CompositeSecondly, "{date}/{hour}/{minute}/{second}/x", wm)
		assert.Equal(t, "2026-08-06/14/32/05/x", got)
	})
}

func TestWatermark(t *testing.T) {
	wm := meta.Watermark(map[string]string{
		"date":   "2026-08-06",
		"hour":   "14",
		"minute": "32",
		"second": "05",
	})
	want := time.Date(2026, 8, 6, 0, 0, 0, 0, time.UTC).Unix() + 14*3600 + 32*60 + 5
	assert.EqualValues(t, want, wm)
}

func TestEnumeratePathsWithMacros(t *testing.T) {
	t.Run("no values returns the template unchanged", func(t *testing.T) {
		got := meta.EnumeratePathsWithMacros("static/path", nil)
		require.Len(t, got, 1)
		assert.Contains(t, got, "static/path")
	})

	t.Run("cartesian product over multiple names", func(t *testing.T) {
		got := meta.EnumeratePathsWithMacros("region/{region}/date/{date}", map[string][]string{
			"region": {"us", "eu"},
			"date":   {"2026-08-01", "2026-08-02"},
		})
		require.Len(t, got, 4)
		assert.Contains(t, got, "region/us/date/2026-08-01")
		assert.Contains(t, got, "region/eu/date/2026-08-02")
	})

	t.Run("colliding paths keep the first combination", func(t *testing.T) {
		got := meta.EnumeratePathsWithMacros("fixed/path", map[string][]string{
			"unused": {"a", "b"},
		})
		require.Len(t, got, 1)
		assert.Contains(t, got, "fixed/path")
		assert.Equal(t, map[string]string{"unused": "a"}, got["fixed/path"])
	})
}

func TestRestoreTemplate(t *testing.T) {
	got := meta.RestoreTemplate("warehouse/%7Bdate%7D/%7Bhour%7D/x", []string{"date", "hour"})
	assert.Equal(t, "warehouse/{date}/{hour}/x", got)
}
