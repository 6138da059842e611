// Package metrics provides Prometheus metrics for the funnel telemetry core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the funnel SDK.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	registry         prometheus.Registerer

	// Recording metrics
	eventsRecorded prometheus.Counter
	eventsDropped  *prometheus.CounterVec

	// Queue metrics
	queueSize     prometheus.Gauge
	queueCapacity prometheus.Gauge
	queueAppends  prometheus.Counter
	queueRejects  prometheus.Counter
	queueSwaps    prometheus.Counter

	// Upload metrics
	uploadAttempts  prometheus.Counter
	uploadCycles    *prometheus.CounterVec
	uploadLatency   prometheus.Histogram
	uploadBatchSize prometheus.Histogram
	uploadInFlight  prometheus.Gauge

	// Engagement metrics
	engageCacheHits   prometheus.Counter
	engageCacheMisses prometheus.Counter
	engageRequests    *prometheus.CounterVec

	// Trigger metrics
	triggerEvaluations prometheus.Counter
	triggerMatches     prometheus.Counter

	// Action store metrics
	actionReads  prometheus.Counter
	actionWrites prometheus.Counter

	// Error tracking
	errorsByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "funnel",
		subsystem:        "telemetry",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

// Registry returns the registry backing the global manager, for exposition.
func Registry() *prometheus.Registry {
	return customRegistry
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.eventsRecorded = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_recorded_total",
		Help:      "Total number of events accepted by record",
	})

	m.eventsDropped = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "events_dropped_total",
			Help:      "Total number of events dropped, by reason",
		},
		[]string{"reason"},
	)

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_size",
		Help:      "Current number of events in the active buffer",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_capacity",
		Help:      "Configured capacity of the active buffer",
	})

	m.queueAppends = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_appends_total",
		Help:      "Total number of successful queue appends",
	})

	m.queueRejects = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_rejects_total",
		Help:      "Total number of rejected queue appends",
	})

	m.queueSwaps = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_swaps_total",
		Help:      "Total number of buffer role swaps",
	})

	m.uploadAttempts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "upload_attempts_total",
		Help:      "Total number of batch submissions to the collector",
	})

	m.uploadCycles = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "upload_cycles_total",
			Help:      "Total number of upload cycles, by outcome",
		},
		[]string{"outcome"},
	)

	m.uploadLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "upload_latency_milliseconds",
		Help:      "Histogram of single submission latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.uploadBatchSize = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "upload_batch_size",
		Help:      "Histogram of events per uploaded batch",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
	})

	m.uploadInFlight = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "upload_in_flight",
		Help:      "1 while an upload cycle is running, else 0",
	})

	m.engageCacheHits = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "engage_cache_hits_total",
		Help:      "Total number of engagement cache hits",
	})

	m.engageCacheMisses = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "engage_cache_misses_total",
		Help:      "Total number of engagement cache misses",
	})

	m.engageRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "engage_requests_total",
			Help:      "Total number of engagement requests, by outcome",
		},
		[]string{"outcome"},
	)

	m.triggerEvaluations = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "trigger_evaluations_total",
		Help:      "Total number of trigger evaluations",
	})

	m.triggerMatches = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "trigger_matches_total",
		Help:      "Total number of trigger evaluations that produced an action",
	})

	m.actionReads = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "action_store_reads_total",
		Help:      "Total number of persistent action reads",
	})

	m.actionWrites = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "action_store_writes_total",
		Help:      "Total number of persistent action writes",
	})

	m.errorsByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_component_total",
			Help:      "Total number of errors by component and type",
		},
		[]string{"component", "error_type"},
	)
}

// Package-level helpers operating on the global manager.

func RecordEventRecorded() {
	if globalManager.enabled {
		globalManager.eventsRecorded.Inc()
	}
}

func RecordEventDropped(reason string) {
	if globalManager.enabled {
		globalManager.eventsDropped.WithLabelValues(reason).Inc()
	}
}

func UpdateQueueSize(n int) {
	if globalManager.enabled {
		globalManager.queueSize.Set(float64(n))
	}
}

func UpdateQueueCapacity(n int) {
	if globalManager.enabled {
		globalManager.queueCapacity.Set(float64(n))
	}
}

func RecordQueueAppend() {
	if globalManager.enabled {
		globalManager.queueAppends.Inc()
	}
}

func RecordQueueReject() {
	if globalManager.enabled {
		globalManager.queueRejects.Inc()
	}
}

func RecordQueueSwap() {
	if globalManager.enabled {
		globalManager.queueSwaps.Inc()
	}
}

func RecordUploadAttempt() {
	if globalManager.enabled {
		globalManager.uploadAttempts.Inc()
	}
}

func RecordUploadCycle(outcome string) {
	if globalManager.enabled {
		globalManager.uploadCycles.WithLabelValues(outcome).Inc()
	}
}

func RecordUploadLatency(ms float64) {
	if globalManager.enabled {
		globalManager.uploadLatency.Observe(ms)
	}
}

func RecordUploadBatchSize(n int) {
	if globalManager.enabled {
		globalManager.uploadBatchSize.Observe(float64(n))
	}
}

func UpdateUploadInFlight(inFlight bool) {
	if !globalManager.enabled {
		return
	}
	if inFlight {
		globalManager.uploadInFlight.Set(1)
	} else {
		globalManager.uploadInFlight.Set(0)
	}
}

func RecordEngageCacheHit() {
	if globalManager.enabled {
		globalManager.engageCacheHits.Inc()
	}
}

func RecordEngageCacheMiss() {
	if globalManager.enabled {
		globalManager.engageCacheMisses.Inc()
	}
}

func RecordEngageRequest(outcome string) {
	if globalManager.enabled {
		globalManager.engageRequests.WithLabelValues(outcome).Inc()
	}
}

func RecordTriggerEvaluation() {
	if globalManager.enabled {
		globalManager.triggerEvaluations.Inc()
	}
}

func RecordTriggerMatch() {
	if globalManager.enabled {
		globalManager.triggerMatches.Inc()
	}
}

func RecordActionRead() {
	if globalManager.enabled {
		globalManager.actionReads.Inc()
	}
}

func RecordActionWrite() {
	if globalManager.enabled {
		globalManager.actionWrites.Inc()
	}
}

func RecordErrorByComponent(component, errorType string) {
	if globalManager.enabled {
		globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
	}
}
