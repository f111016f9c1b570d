package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusLogger counts events in a Prometheus registry
type PrometheusLogger struct {
	events   *prometheus.CounterVec
	registry *prometheus.Registry
}

// NewPrometheusLogger creates a counter-backed logger.
// When registry is nil a private registry is created.
func NewPrometheusLogger(namespace string, registry *prometheus.Registry) *PrometheusLogger {
	if namespace == "" {
		namespace = "pylaunch"
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	pl := &PrometheusLogger{
		registry: registry,
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "telemetry_events_total",
				Help:      "Total number of telemetry events by kind and data",
			},
			[]string{"event", "data"},
		),
	}

	registry.MustRegister(pl.events)
	return pl
}

// LogEvent increments the counter for the event.
// Watch relaunch paths are not used as label values to keep cardinality bounded.
func (pl *PrometheusLogger) LogEvent(kind EventKind, data interface{}) {
	label := formatData(data)
	if kind == EventWatchRelaunch {
		label = ""
	}
	pl.events.WithLabelValues(kind.String(), label).Inc()
}

// Registry returns the Prometheus registry for HTTP handler setup
func (pl *PrometheusLogger) Registry() *prometheus.Registry {
	return pl.registry
}

var _ Logger = (*PrometheusLogger)(nil)
