package ingest

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/blockmeshdb/coordinator/logger"
	"github.com/blockmeshdb/coordinator/meta"
	"github.com/blockmeshdb/coordinator/storage"
)

// Provider generates the ordered set of specs a table's partitioning
// scheme implies, as of a point in time. It holds no state of its
// own; the caller (the spec repository) is responsible for diffing
// the returned set against what it already knows by ID, and for
// preserving the State and Affinity of specs that already exist.
type Provider struct {
	logger logger.Logger
	fs     storage.FileSystem
}

// NewProvider returns a Provider. A nil logger falls back to
// logger.NopLogger. fs is optional: when set, it's stat'd for each
// materialized path to fold size and modification time into that
// spec's signature, so a file rewritten in place gets a fresh spec
// even though its path hasn't changed. A nil fs just means every spec
// signs with a zero size/mtime hint, which is still stable across
// refreshes as long as the underlying file isn't rewritten.
func NewProvider(log logger.Logger, fs storage.FileSystem) *Provider {
	if log == nil {
		log = logger.NopLogger
	}
	return &Provider{logger: log, fs: fs}
}

// Generate produces the specs implied by table's template and macro
// as of now, tagged with version. Every returned spec has State ==
// SpecNew and Affinity == meta.NoAffinity; it's the caller's job to
// reconcile that against any existing spec sharing the same ID.
//
// Tables with no time macro (meta.Invalid) or a bare {timestamp}
// placeholder produce exactly one spec representing the table's
// single static partition, or its current instant. Tables using the
// daily/hourly/minutely/secondly chain produce one spec per aligned
// window between table.Start and table.End (or now, if End is zero).
func (p *Provider) Generate(ctx context.Context, version string, table meta.TableSpec) []*meta.Spec {
	return p.GenerateAt(ctx, version, table, time.Now().UTC())
}

// GenerateAt is Generate with an explicit "now", for deterministic
// tests.
func (p *Provider) GenerateAt(ctx context.Context, version string, table meta.TableSpec, now time.Time) []*meta.Spec {
	switch meta.Granularity(table.Macro) {
	case meta.Invalid:
		return []*meta.Spec{p.newSpec(ctx, version, table, table.Start, 0, map[string]string{})}
	case meta.Timestamp:
		wm := now.Unix()
		return []*meta.Spec{p.newSpec(ctx, version, table, now, 0, map[string]string{"timestamp": fmt.Sprintf("%d", wm)})}
	default:
		return p.generateWindowed(ctx, version, table, now)
	}
}

func (p *Provider) generateWindowed(ctx context.Context, version string, table meta.TableSpec, now time.Time) []*meta.Spec {
	step := meta.Seconds(meta.Granularity(table.Macro))
	if step <= 0 {
		p.logger.Warnf("ingest: table %s has no step for macro %v, skipping", table.Name, table.Macro)
		return nil
	}

	end := table.End
	if end.IsZero() {
		end = now
	}
	start := table.Start
	if start.IsZero() || start.After(end) {
		p.logger.Warnf("ingest: table %s has empty or inverted window [%s, %s)", table.Name, start, end)
		return nil
	}

	// Align the start to a step boundary so successive calls to
	// Generate produce the same watermarks (and therefore the same
	// spec IDs) as time advances.
	startSec := (start.Unix() / step) * step
	endSec := end.Unix()

	var specs []*meta.Spec
	for wm := startSec; wm < endSec; wm += step {
		t := time.Unix(wm, 0).UTC()
		specs = append(specs, p.newSpec(ctx, version, table, t, step, watermarkParts(table.Macro, t)))
	}
	return specs
}

func watermarkParts(macro meta.PatternMacro, t time.Time) map[string]string {
	parts := map[string]string{}
	if macro >= meta.CompositeDaily {
		parts["date"] = t.Format("2006-01-02")
	}
	if macro >= meta.CompositeHourly {
		parts["hour"] = t.Format("15")
	}
	if macro >= meta.CompositeMinutely {
		parts["minute"] = t.Format("04")
	}
	if macro >= meta.CompositeSecondly {
		parts["second"] = t.Format("05")
	}
	return parts
}

// newSpec builds the Spec anchored at t. stepSeconds is the width of
// the time window t opens, zero for a spec with no meaningful range
// (a static table, or a Timestamp spec, which covers a single instant).
func (p *Provider) newSpec(ctx context.Context, version string, table meta.TableSpec, t time.Time, stepSeconds int64, parts map[string]string) *meta.Spec {
	watermark := t.Unix()
	if wm, ok := parts["timestamp"]; ok {
		fmt.Sscanf(wm, "%d", &watermark)
	}

	// A template may carry an explicit scheme ("s3://bucket/{date}/x")
	// so its source location is unambiguous; only the scheme-relative
	// part gets materialized and handed to a worker, which is already
	// bound to one bucket via its own storage configuration.
	rawTemplate := string(table.Template)
	template := rawTemplate
	if u, err := meta.ParseURI(rawTemplate); err == nil {
		template = u.Path
	}
	path := meta.Materialize(table.Macro, template, watermark)

	var sizeHint, mtimeHint int64
	if p.fs != nil {
		if info, err := p.fs.Info(ctx, path); err == nil {
			sizeHint = info.Size
			mtimeHint = info.ModTime.Unix()
		}
	}

	start := time.Unix(watermark, 0).UTC()
	end := start
	if stepSeconds > 0 {
		end = start.Add(time.Duration(stepSeconds) * time.Second)
	}

	return &meta.Spec{
		ID:              signature(table.Name, path, sizeHint, mtimeHint),
		Table:           table.Name,
		Path:            path,
		Version:         version,
		PartitionValues: parts,
		Start:           start,
		End:             end,
		State:           meta.SpecNew,
		Affinity:        meta.NoAffinity,
	}
}

// signature is a stable hash of a spec's identity: which table it
// belongs to, its materialized path, and hints about the underlying
// file's size and modification time. Folding in the hints means a
// file rewritten in place at the same path still produces a fresh
// signature, so it's picked up as a new spec rather than assumed
// unchanged.
func signature(table, path string, sizeHint, mtimeHint int64) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s\x00%s\x00%d\x00%d", table, path, sizeHint, mtimeHint)
	return fmt.Sprintf("%s|%016x", table, h.Sum64())
}
