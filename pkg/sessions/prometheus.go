package sessions

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsCollector implements MetricsCollector using Prometheus metrics.
//
// Session ids are random, so per-session series would grow without bound;
// labels carry states, update types and error kinds only.
type PrometheusMetricsCollector struct {
	stateTransitions *prometheus.CounterVec
	syncDuration     *prometheus.HistogramVec
	stopDuration     prometheus.Histogram
	errors           *prometheus.CounterVec
	queueDepth       prometheus.Gauge
	queueAdds        prometheus.Counter
	queueRetries     prometheus.Counter
	backoffDuration  prometheus.Histogram

	registry *prometheus.Registry
}

// NewPrometheusMetricsCollector creates a collector registered on registry
// (a private registry when nil)
func NewPrometheusMetricsCollector(namespace string, registry *prometheus.Registry) *PrometheusMetricsCollector {
	if namespace == "" {
		namespace = "pylaunch"
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	pmc := &PrometheusMetricsCollector{registry: registry}

	pmc.stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_state_transitions_total",
			Help:      "Total number of debug session state transitions",
		},
		[]string{"from_state", "to_state"},
	)

	pmc.syncDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_sync_duration_seconds",
			Help:      "Duration of debug session liveness syncs",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"update_type", "status"},
	)

	pmc.stopDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_stop_duration_seconds",
			Help:      "Duration of debuggee shutdown",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	pmc.errors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_errors_total",
			Help:      "Total number of debug session errors",
		},
		[]string{"error_type"},
	)

	pmc.queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_work_queue_depth",
			Help:      "Current depth of the session work queue",
		},
	)

	pmc.queueAdds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_work_queue_adds_total",
			Help:      "Total number of items added to the session work queue",
		},
	)

	pmc.queueRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_work_queue_retries_total",
			Help:      "Total number of session work queue retries",
		},
	)

	pmc.backoffDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_backoff_duration_seconds",
			Help:      "Duration of backoff delays for failing sessions",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	registry.MustRegister(
		pmc.stateTransitions,
		pmc.syncDuration,
		pmc.stopDuration,
		pmc.errors,
		pmc.queueDepth,
		pmc.queueAdds,
		pmc.queueRetries,
		pmc.backoffDuration,
	)

	return pmc
}

func (pmc *PrometheusMetricsCollector) SessionStateTransition(_ SessionID, fromState, toState SessionState) {
	pmc.stateTransitions.WithLabelValues(fromState.String(), toState.String()).Inc()
}

func (pmc *PrometheusMetricsCollector) SyncDuration(_ SessionID, updateType UpdateType, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	pmc.syncDuration.WithLabelValues(updateType.String(), status).Observe(duration.Seconds())
}

func (pmc *PrometheusMetricsCollector) StopDuration(_ SessionID, duration time.Duration) {
	pmc.stopDuration.Observe(duration.Seconds())
}

func (pmc *PrometheusMetricsCollector) SessionError(_ SessionID, errorType string) {
	pmc.errors.WithLabelValues(errorType).Inc()
}

func (pmc *PrometheusMetricsCollector) WorkQueueDepth(depth int) {
	pmc.queueDepth.Set(float64(depth))
}

func (pmc *PrometheusMetricsCollector) WorkQueueAdd(SessionID, time.Duration) {
	pmc.queueAdds.Inc()
}

func (pmc *PrometheusMetricsCollector) WorkQueueRetry(SessionID) {
	pmc.queueRetries.Inc()
}

func (pmc *PrometheusMetricsCollector) WorkQueueBackoffDuration(_ SessionID, duration time.Duration) {
	pmc.backoffDuration.Observe(duration.Seconds())
}

// Registry returns the Prometheus registry for HTTP handler setup
func (pmc *PrometheusMetricsCollector) Registry() *prometheus.Registry {
	return pmc.registry
}

// Compile-time interface compliance check
var _ MetricsCollector = (*PrometheusMetricsCollector)(nil)
