package sessions

import (
	"time"
)

// MetricsCollector defines the interface for collecting session manager metrics
type MetricsCollector interface {
	// SessionStateTransition records a state transition for a session
	SessionStateTransition(id SessionID, fromState, toState SessionState)

	// SyncDuration records the duration of a liveness sync
	SyncDuration(id SessionID, updateType UpdateType, duration time.Duration, err error)

	// StopDuration records how long stopping the debuggee took
	StopDuration(id SessionID, duration time.Duration)

	// SessionError records an error for a session
	SessionError(id SessionID, errorType string)

	// WorkQueueDepth records the current work queue depth
	WorkQueueDepth(depth int)

	// WorkQueueAdd records an item added to the work queue
	WorkQueueAdd(id SessionID, delay time.Duration)

	// WorkQueueRetry records a retry from the work queue
	WorkQueueRetry(id SessionID)

	// WorkQueueBackoffDuration records backoff duration
	WorkQueueBackoffDuration(id SessionID, duration time.Duration)
}

type noopMetricsCollector struct{}

func (noopMetricsCollector) SessionStateTransition(SessionID, SessionState, SessionState) {}
func (noopMetricsCollector) SyncDuration(SessionID, UpdateType, time.Duration, error)     {}
func (noopMetricsCollector) StopDuration(SessionID, time.Duration)                        {}
func (noopMetricsCollector) SessionError(SessionID, string)                               {}
func (noopMetricsCollector) WorkQueueDepth(int)                                           {}
func (noopMetricsCollector) WorkQueueAdd(SessionID, time.Duration)                        {}
func (noopMetricsCollector) WorkQueueRetry(SessionID)                                     {}
func (noopMetricsCollector) WorkQueueBackoffDuration(SessionID, time.Duration)            {}

// NewNoopMetricsCollector creates a no-op metrics collector
func NewNoopMetricsCollector() MetricsCollector {
	return noopMetricsCollector{}
}
