package ingest

import "github.com/blockmeshdb/coordinator/meta"

// Registry holds the current, ordered set of specs the coordinator
// knows about for one table. It's updated wholesale on each refresh
// pass: newly generated specs are diffed against what's already
// registered by ID, so a spec's placement (State, Affinity) survives
// across refreshes as long as its ID keeps showing up.
type Registry struct {
	byID  map[string]*meta.Spec
	order []string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byID: map[string]*meta.Spec{}}
}

// Update replaces the registry's contents with fresh, so that specs
// whose ID already existed keep their prior State and Affinity, and
// specs no longer produced (their retention window has rolled past
// them) are dropped. A preserved spec's Version, Path, and
// PartitionValues are refreshed from the newly generated copy even
// though its placement is kept, so a config version bump on an
// otherwise-unchanged spec still trips NeedSync on the next Assign
// pass.
func (r *Registry) Update(fresh []*meta.Spec) {
	next := make(map[string]*meta.Spec, len(fresh))
	order := make([]string, 0, len(fresh))

	for _, spec := range fresh {
		if existing, ok := r.byID[spec.ID]; ok {
			existing.Version = spec.Version
			existing.Path = spec.Path
			existing.PartitionValues = spec.PartitionValues
			next[spec.ID] = existing
		} else {
			next[spec.ID] = spec
		}
		order = append(order, spec.ID)
	}

	r.byID = next
	r.order = order
}

// Specs returns every spec in the registry, in generation order.
func (r *Registry) Specs() []*meta.Spec {
	out := make([]*meta.Spec, 0, len(r.order))
	for _, id := range r.order {
		if spec, ok := r.byID[id]; ok {
			out = append(out, spec)
		}
	}
	return out
}

// Get returns the spec registered under id, if any.
func (r *Registry) Get(id string) (*meta.Spec, bool) {
	spec, ok := r.byID[id]
	return spec, ok
}

// Len returns the number of specs currently registered.
func (r *Registry) Len() int {
	return len(r.byID)
}
