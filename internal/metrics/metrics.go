// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Transitions counts successful connection state transitions.
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teetime_connection_transitions_total",
		Help: "Connection state transitions by operation and outcome",
	}, []string{"op", "outcome"})

	// MutationFailures counts mutations that returned an error, by reason code.
	MutationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teetime_connection_mutation_failures_total",
		Help: "Failed connection mutations by operation and reason",
	}, []string{"op", "reason"})

	// RaceRecoveries counts send calls that hit a uniqueness conflict and re-ran.
	RaceRecoveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "teetime_connection_race_recoveries_total",
		Help: "Send attempts recovered after a concurrent insert",
	})

	// Repairs counts stale rows cleaned up by send.
	Repairs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teetime_connection_repairs_total",
		Help: "Stale connection rows removed while sending",
	}, []string{"kind"})

	// StatusLookups counts status resolutions by cache result.
	StatusLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teetime_status_lookups_total",
		Help: "Relationship status lookups by cache result",
	}, []string{"result"})

	// Rollbacks counts optimistic updates that were reverted.
	Rollbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teetime_optimistic_rollbacks_total",
		Help: "Optimistic status updates rolled back after a failed mutation",
	}, []string{"op"})

	// EventsPublished counts notification events by type and result.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teetime_events_published_total",
		Help: "Connection events handed to the notification publisher",
	}, []string{"type", "result"})

	// HTTPRequests observes API latency by route pattern and status code.
	HTTPRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "teetime_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "code"})
)
