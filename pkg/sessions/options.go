package sessions

import (
	"log/slog"
	"time"
)

// Option configures the Manager
type Option func(*Manager)

// WithSyncer sets the Syncer implementation
func WithSyncer(syncer Syncer) Option {
	return func(m *Manager) {
		m.syncer = syncer
	}
}

// WithResyncInterval sets how often running sessions are checked
func WithResyncInterval(d time.Duration) Option {
	return func(m *Manager) {
		m.resyncInterval = d
	}
}

// WithBackOffPeriod sets the maximum error backoff
func WithBackOffPeriod(d time.Duration) Option {
	return func(m *Manager) {
		m.backOffPeriod = d
	}
}

// WithGracePeriod sets the default time a debuggee gets to exit before it is killed
func WithGracePeriod(d time.Duration) Option {
	return func(m *Manager) {
		m.defaultGracePeriod = d
	}
}

// WithMetricsCollector sets the metrics collector
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(m *Manager) {
		m.metrics = mc
	}
}

// WithLogger sets the structured logger
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}
