// Package metrics holds the Prometheus instrumentation for the daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	EventsProduced  prometheus.Counter
	EventsSkipped   prometheus.Counter
	EventsExhausted prometheus.Counter
	RecordsQueued   prometheus.Counter
	RecordsDropped  prometheus.Counter
	SinkErrors      *prometheus.CounterVec
}

// New creates all metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates all metrics on the given registerer. Tests use a
// fresh registry per suite to avoid duplicate registration panics.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsProduced: factory.NewCounter(prometheus.CounterOpts{
			Name: "aumon_events_produced_total",
			Help: "Audit records fully assembled into events",
		}),
		EventsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "aumon_events_skipped_total",
			Help: "Audit records skipped by filter or defect",
		}),
		EventsExhausted: factory.NewCounter(prometheus.CounterOpts{
			Name: "aumon_events_exhausted_total",
			Help: "Audit records abandoned after a capture budget was exhausted",
		}),
		RecordsQueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "aumon_pipeline_records_queued_total",
			Help: "Event records accepted into the pipeline buffer",
		}),
		RecordsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "aumon_pipeline_records_dropped_total",
			Help: "Event records dropped because the pipeline buffer was full",
		}),
		SinkErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aumon_pipeline_sink_errors_total",
			Help: "Failed writes per downstream sink",
		}, []string{"sink"}),
	}
}
