// Package metrics provides Prometheus metrics for the combat monitor.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the monitor.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Ingestion - event buffer quality
	eventsIngested  prometheus.Counter
	eventsDuplicate prometheus.Counter
	eventsMalformed prometheus.Counter
	eventsEvicted   prometheus.Counter
	bufferSize      prometheus.Gauge

	// Snapshots - stats aggregator freshness
	snapshotsApplied prometheus.Counter
	snapshotsStale   prometheus.Counter
	snapshotSequence prometheus.Gauge

	// Poll cycle health
	pollSuccess     prometheus.Counter
	pollFailure     prometheus.Counter
	pollConsecutive prometheus.Gauge
	degraded        prometheus.Gauge

	// Push stream health
	pushMessages   *prometheus.CounterVec
	pushDropped    prometheus.Counter
	pushReconnects prometheus.Counter

	// Dispute workflow
	disputesFiled    prometheus.Counter
	disputesResolved *prometheus.CounterVec

	// Intervention dispatch
	interventionsDispatched *prometheus.CounterVec
	interventionConflicts   prometheus.Counter
	interventionFailures    prometheus.Counter

	// HTTP surface
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "combatwatch",
		subsystem:        "monitor",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.eventsIngested = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_ingested_total",
		Help:      "Total number of combat events accepted into the buffer",
	})
	m.eventsDuplicate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_duplicate_total",
		Help:      "Total number of duplicate event arrivals dropped as no-ops",
	})
	m.eventsMalformed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_malformed_total",
		Help:      "Total number of events rejected for missing id or timestamp",
	})
	m.eventsEvicted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_evicted_total",
		Help:      "Total number of events evicted oldest-first at capacity",
	})
	m.bufferSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "buffer_size",
		Help:      "Current number of buffered combat events",
	})

	m.snapshotsApplied = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "snapshots_applied_total",
		Help:      "Total number of authoritative stats snapshots accepted",
	})
	m.snapshotsStale = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "snapshots_stale_total",
		Help:      "Total number of stats snapshots discarded as stale",
	})
	m.snapshotSequence = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "snapshot_sequence",
		Help:      "Sequence number of the currently held stats snapshot",
	})

	m.pollSuccess = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "poll_success_total",
		Help:      "Total number of fully successful poll cycles",
	})
	m.pollFailure = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "poll_failure_total",
		Help:      "Total number of poll cycles with at least one failed fetch",
	})
	m.pollConsecutive = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "poll_consecutive_failures",
		Help:      "Current streak of consecutive poll failures",
	})
	m.degraded = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "degraded",
		Help:      "1 while the monitor is in degraded mode, 0 otherwise",
	})

	m.pushMessages = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "push_messages_total",
			Help:      "Total number of push stream messages delivered, by kind",
		},
		[]string{"kind"},
	)
	m.pushDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "push_dropped_total",
		Help:      "Total number of push messages dropped as undecodable or unknown",
	})
	m.pushReconnects = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "push_reconnects_total",
		Help:      "Total number of push stream reconnect attempts",
	})

	m.disputesFiled = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "disputes_filed_total",
		Help:      "Total number of disputes entering the tracker",
	})
	m.disputesResolved = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "disputes_resolved_total",
			Help:      "Total number of authority-confirmed dispute resolutions, by outcome",
		},
		[]string{"outcome"},
	)

	m.interventionsDispatched = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "interventions_dispatched_total",
			Help:      "Total number of acknowledged interventions, by action",
		},
		[]string{"action"},
	)
	m.interventionConflicts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "intervention_conflicts_total",
		Help:      "Total number of dispatches refused while one was in flight",
	})
	m.interventionFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "intervention_failures_total",
		Help:      "Total number of interventions that failed or were rejected",
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)
}

// Package-level helpers recording on the global manager.

func RecordEventIngested()  { globalManager.eventsIngested.Inc() }
func RecordEventDuplicate() { globalManager.eventsDuplicate.Inc() }
func RecordEventMalformed() { globalManager.eventsMalformed.Inc() }
func RecordEventEvicted()   { globalManager.eventsEvicted.Inc() }

func UpdateBufferSize(size int) { globalManager.bufferSize.Set(float64(size)) }

func RecordSnapshotApplied()           { globalManager.snapshotsApplied.Inc() }
func RecordSnapshotStale()             { globalManager.snapshotsStale.Inc() }
func UpdateSnapshotSequence(seq int64) { globalManager.snapshotSequence.Set(float64(seq)) }

func RecordPollSuccess() { globalManager.pollSuccess.Inc() }
func RecordPollFailure() { globalManager.pollFailure.Inc() }

func UpdateConsecutivePollFailures(n int) { globalManager.pollConsecutive.Set(float64(n)) }

// UpdateDegraded flips the degraded-mode gauge.
func UpdateDegraded(degraded bool) {
	if degraded {
		globalManager.degraded.Set(1)
		return
	}
	globalManager.degraded.Set(0)
}

func RecordPushMessage(kind string) { globalManager.pushMessages.WithLabelValues(kind).Inc() }
func RecordPushDropped()            { globalManager.pushDropped.Inc() }
func RecordPushReconnect()          { globalManager.pushReconnects.Inc() }

func RecordDisputeFiled() { globalManager.disputesFiled.Inc() }

func RecordDisputeResolved(outcome string) {
	globalManager.disputesResolved.WithLabelValues(outcome).Inc()
}

func RecordInterventionDispatched(action string) {
	globalManager.interventionsDispatched.WithLabelValues(action).Inc()
}

func RecordInterventionConflict() { globalManager.interventionConflicts.Inc() }
func RecordInterventionFailed()   { globalManager.interventionFailures.Inc() }

func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// GetRegistry exposes the custom registry for the /metrics handler.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
