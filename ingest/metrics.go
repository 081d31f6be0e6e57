package ingest

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the coordinator's own counters. There's no /metrics
// endpoint wired up here (that's an observability surface outside
// this module's scope); Repo just increments a plain, unregistered
// counter set so a caller that does own such an endpoint can register
// and expose them.
type Metrics struct {
	SpecsExpired  prometheus.Counter
	TasksSent     prometheus.Counter
	SpecsOrphaned prometheus.Counter
}

// NewMetrics returns a fresh, unregistered Metrics set.
func NewMetrics() *Metrics {
	return &Metrics{
		SpecsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coordinator_specs_expired_total",
			Help: "Total number of specs expired from worker memory.",
		}),
		TasksSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coordinator_tasks_sent_total",
			Help: "Total number of ingestion and expiration tasks sent to workers.",
		}),
		SpecsOrphaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coordinator_specs_orphaned_total",
			Help: "Total number of specs reset because their affinity node left the cluster.",
		}),
	}
}
