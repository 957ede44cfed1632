package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "feynwatch"

// Ingestion Metrics
var (
	EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "raw_events_total",
		Help:      "Raw events received from the backend, by transport",
	}, []string{"source"})

	PollErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "poll_errors_total",
		Help:      "Failed session snapshot fetches",
	})

	StreamReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "stream_reconnects_total",
		Help:      "Push-stream disconnects followed by a reconnect attempt",
	})

	StreamFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "stream_fallbacks_total",
		Help:      "Times the push stream was disabled in favour of polling",
	})
)

// Reconciliation Metrics
var (
	ReconcileDuplicates = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "duplicates",
		Help:      "Duplicate events suppressed in the latest reconciled view",
	})

	ProcessedEvents = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "processed_events",
		Help:      "Events in the latest reconciled view",
	})
)

// Workflow Metrics
var (
	Workflows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "workflow",
		Name:      "finished_total",
		Help:      "Finished workflows by outcome",
	}, []string{"outcome"})

	WorkflowDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "workflow",
		Name:      "duration_seconds",
		Help:      "Wall time from submit to completion",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})
)

// Health Metrics
var (
	HealthChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "health",
		Name:      "checks_total",
		Help:      "Backend liveness checks by result",
	}, []string{"result"})

	BackendConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "health",
		Name:      "backend_connected",
		Help:      "1 when the last liveness check succeeded",
	})
)
