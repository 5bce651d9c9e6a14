// Package promstats implements scheduler.StatsSink over
// github.com/prometheus/client_golang, counting every EventKind by task
// name the way the rest of this codebase's prometheus component registers
// its own collectors against a *prometheus.Registry.
package promstats

import (
	"github.com/prometheus/client_golang/prometheus"

	scheduler "github.com/gocronforge/dbscheduler"
)

// Config configures the metric namespace/subsystem, matching the
// application-wide Prometheus component's own Config shape.
type Config struct {
	Namespace string
	Subsystem string
}

// Sink is a scheduler.StatsSink that records every Event as a Prometheus
// counter, labeled by event kind, task name, and instance id's task name
// only (instance id is intentionally excluded from labels: it is typically
// unbounded cardinality, one series per scheduled row).
type Sink struct {
	events *prometheus.CounterVec
}

var _ scheduler.StatsSink = (*Sink)(nil)

// New builds a Sink and registers its collectors with registry.
func New(registry prometheus.Registerer, cfg Config) *Sink {
	if cfg.Subsystem == "" {
		cfg.Subsystem = "scheduler"
	}
	s := &Sink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "events_total",
			Help:      "Count of scheduler lifecycle events by kind and task.",
		}, []string{"kind", "task"}),
	}
	registry.MustRegister(s.events)
	return s
}

func (s *Sink) Report(e scheduler.Event) {
	s.events.WithLabelValues(e.Kind.String(), e.TaskName).Inc()
}
