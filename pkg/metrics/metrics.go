// Package metrics exposes prometheus instrumentation for the HTTP
// surface and the transfer job lifecycle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/icrar/govospace/pkg/events"
)

var (
	// API metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vospace_http_requests_total",
			Help: "Total HTTP requests by method, route and status code",
		},
		[]string{"method", "route", "code"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vospace_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// Namespace metrics
	NodeOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vospace_node_operations_total",
			Help: "Node lifecycle operations by kind",
		},
		[]string{"kind"},
	)

	// Job metrics
	JobsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vospace_jobs_created_total",
			Help: "Total transfer jobs created",
		},
	)

	JobPhaseTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vospace_job_phase_transitions_total",
			Help: "Job phase transitions by target phase",
		},
		[]string{"phase"},
	)
)

// Register registers all collectors with the default registry. Must be
// called once at startup.
func Register() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		NodeOperationsTotal,
		JobsCreatedTotal,
		JobPhaseTotal,
	)
}

// Watch consumes broker events and feeds the lifecycle counters. It
// returns when the subscriber channel is closed.
func Watch(sub events.Subscriber) {
	for event := range sub {
		switch event.Type {
		case events.EventNodeCreated, events.EventNodeUpdated, events.EventNodeDeleted,
			events.EventNodeMoved, events.EventNodeCopied:
			NodeOperationsTotal.WithLabelValues(string(event.Type)).Inc()
		case events.EventJobCreated:
			JobsCreatedTotal.Inc()
		case events.EventJobPhase:
			JobPhaseTotal.WithLabelValues(event.Metadata["phase"]).Inc()
		}
	}
}
