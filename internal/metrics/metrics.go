// Package metrics provides Prometheus metrics for the dispatch engine and
// its event sinks.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the custom prometheus registry served on /metrics.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

// =============================================================================
// Dispatch
// =============================================================================

// AssignmentsTotal counts successful assignments by path (assign, claim, sweep, submit).
var AssignmentsTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "dispatch",
	Name:      "assignments_total",
	Help:      "Successful ticket assignments by path",
}, []string{"path"})

// RejectionsTotal counts failed assign/claim attempts by error kind.
var RejectionsTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "dispatch",
	Name:      "rejections_total",
	Help:      "Rejected assign and claim attempts by error kind",
}, []string{"operation", "kind"})

// TransitionsTotal counts ticket state changes by target status.
var TransitionsTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "dispatch",
	Name:      "transitions_total",
	Help:      "Ticket status transitions by target status",
}, []string{"status"})

// QueueDepth is the number of tickets waiting in the priority queue.
var QueueDepth = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: "dispatch",
	Name:      "queue_depth",
	Help:      "Number of queued tickets",
})

// AgentLoad is the number of tickets held per agent.
var AgentLoad = factory.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "dispatch",
	Name:      "agent_load",
	Help:      "Tickets currently held by each agent",
}, []string{"agent"})

// SweepsTotal counts auto-assignment sweeps.
var SweepsTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "dispatch",
	Name:      "sweeps_total",
	Help:      "Auto-assignment sweeps run",
})

// SweepFailuresTotal counts per-ticket failures inside sweeps.
var SweepFailuresTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "dispatch",
	Name:      "sweep_failures_total",
	Help:      "Tickets whose assignment failed during a sweep",
})

// SweepDurationSeconds tracks time spent in one sweep.
var SweepDurationSeconds = factory.NewHistogram(prometheus.HistogramOpts{
	Namespace: "dispatch",
	Name:      "sweep_duration_seconds",
	Help:      "Time taken by one auto-assignment sweep",
	Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
})

// =============================================================================
// Events
// =============================================================================

// EventsPublishedTotal counts events delivered to sinks.
var EventsPublishedTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "events",
	Name:      "published_total",
	Help:      "Events handed to sinks by event type",
}, []string{"event"})

// EventsDroppedTotal counts events dropped because the buffer was full or closed.
var EventsDroppedTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "events",
	Name:      "dropped_total",
	Help:      "Events dropped before reaching sinks",
})

// EventSinkErrorsTotal counts sink delivery failures.
var EventSinkErrorsTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "events",
	Name:      "sink_errors_total",
	Help:      "Event deliveries that failed in a sink",
})

// =============================================================================
// HTTP
// =============================================================================

// HTTPRequestsTotal counts handled requests by route and status code.
var HTTPRequestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "http",
	Name:      "requests_total",
	Help:      "HTTP requests by method, route and status",
}, []string{"method", "route", "status"})

// HTTPRequestDurationSeconds tracks request latency by route.
var HTTPRequestDurationSeconds = factory.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency by method and route",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "route"})

// =============================================================================
// Helper Functions
// =============================================================================

// ForgetAgent drops the load series of a removed agent.
func ForgetAgent(agentID string) {
	AgentLoad.DeleteLabelValues(agentID)
}
