// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics defines the process-wide Prometheus collectors shared by
// the transport, resilience, and process-group packages.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "vidharvest",
		Name:      "circuit_breaker_status",
		Help:      "Current circuit breaker state (0=closed,1=open,2=half-open).",
	}, []string{"name"})

	circuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vidharvest",
		Name:      "circuit_breaker_trips_total",
		Help:      "Total number of circuit breaker trips.",
	}, []string{"name", "reason"})

	failureRateOpen = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vidharvest",
		Name:      "failure_rate_breaker_open_total",
		Help:      "Total number of times a failure-rate breaker entered the open state.",
	}, []string{"stage"})

	failureRateHalfOpen = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vidharvest",
		Name:      "failure_rate_breaker_half_open_total",
		Help:      "Total number of times a failure-rate breaker admitted a half-open probe.",
	}, []string{"stage"})

	failureRateTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vidharvest",
		Name:      "failure_rate_breaker_trips_total",
		Help:      "Total number of failure-rate breaker trips, by reason.",
	}, []string{"stage", "reason"})

	procTerminate = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vidharvest",
		Name:      "muxer_proc_terminate_total",
		Help:      "Total signals sent to muxer child process groups.",
	}, []string{"signal", "outcome"})

	procWait = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vidharvest",
		Name:      "muxer_proc_wait_total",
		Help:      "Total muxer child process exit outcomes observed after a terminate signal.",
	}, []string{"outcome"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vidharvest",
		Name:      "transport_retries_total",
		Help:      "Total retry attempts issued by the rate-limited transport.",
	}, []string{"reason"})

	commitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vidharvest",
		Name:      "dataset_commits_total",
		Help:      "Total dataset store commits, by operation and outcome.",
	}, []string{"operation", "outcome"})

	downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vidharvest",
		Name:      "downloads_total",
		Help:      "Total stream downloads attempted, by outcome.",
	}, []string{"outcome"})
)

// SetCircuitBreakerState is kept for compatibility with callers that record
// the state as a label; state transitions are now tracked solely via the
// numeric gauge (SetCircuitBreakerStatus) to avoid unbounded label
// cardinality from repeated Set calls with changing label values.
func SetCircuitBreakerState(name, state string) {}

// SetCircuitBreakerStatus records the circuit breaker's current numeric state.
func SetCircuitBreakerStatus(name string, status int) {
	circuitBreakerState.WithLabelValues(name).Set(float64(status))
}

// RecordCircuitBreakerTrip increments the trip counter for name.
func RecordCircuitBreakerTrip(name, reason string) {
	circuitBreakerTrips.WithLabelValues(name, reason).Inc()
}

// IncFailureRateOpen records a failure-rate breaker entering OPEN.
func IncFailureRateOpen(stage string) {
	failureRateOpen.WithLabelValues(stage).Inc()
}

// IncFailureRateHalfOpen records a failure-rate breaker admitting a probe.
func IncFailureRateHalfOpen(stage string) {
	failureRateHalfOpen.WithLabelValues(stage).Inc()
}

// IncFailureRateTrips records a failure-rate breaker trip with its reason.
func IncFailureRateTrips(stage, reason string) {
	failureRateTrips.WithLabelValues(stage, reason).Inc()
}

// IncProcTerminate records a termination signal sent to a muxer child
// process group and its delivery outcome ("sent", "esrch", "error").
func IncProcTerminate(signal, outcome string) {
	procTerminate.WithLabelValues(signal, outcome).Inc()
}

// IncProcWait records the exit outcome observed after terminating a muxer
// child process.
func IncProcWait(outcome string) {
	procWait.WithLabelValues(outcome).Inc()
}

// IncRetry records a retry attempt by the rate-limited transport.
func IncRetry(reason string) {
	retriesTotal.WithLabelValues(reason).Inc()
}

// IncCommit records a dataset store commit outcome.
func IncCommit(operation, outcome string) {
	commitsTotal.WithLabelValues(operation, outcome).Inc()
}

// IncDownload records a stream download outcome.
func IncDownload(outcome string) {
	downloadsTotal.WithLabelValues(outcome).Inc()
}
