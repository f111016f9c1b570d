// Package telemetry records launcher usage events.
//
// Every sink is fire-and-forget: LogEvent has no error return, and a sink
// that cannot deliver an event logs the problem and drops it. Launches never
// wait on or fail because of telemetry.
package telemetry

import (
	"fmt"
	"log/slog"
)

// EventKind identifies what happened
type EventKind int

const (
	// EventLaunch - a project or file launch was dispatched.
	// Data is 0 for a plain launch and 1 for a debug launch.
	EventLaunch EventKind = iota
	// EventWatchRelaunch - the watcher relaunched a changed file.
	// Data is the file path.
	EventWatchRelaunch
)

// String returns the string representation of an EventKind
func (k EventKind) String() string {
	switch k {
	case EventLaunch:
		return "Launch"
	case EventWatchRelaunch:
		return "WatchRelaunch"
	default:
		return "Unknown"
	}
}

// Launch discriminators for EventLaunch
const (
	LaunchNoDebug = 0
	LaunchDebug   = 1
)

// Logger receives telemetry events
type Logger interface {
	LogEvent(kind EventKind, data interface{})
}

// LoggerFunc adapts a function to Logger
type LoggerFunc func(kind EventKind, data interface{})

// LogEvent calls f
func (f LoggerFunc) LogEvent(kind EventKind, data interface{}) {
	f(kind, data)
}

// Noop discards all events
type Noop struct{}

// LogEvent does nothing
func (Noop) LogEvent(EventKind, interface{}) {}

// Multi fans an event out to several loggers in order
type Multi []Logger

// LogEvent forwards the event to every logger
func (m Multi) LogEvent(kind EventKind, data interface{}) {
	for _, l := range m {
		if l != nil {
			l.LogEvent(kind, data)
		}
	}
}

// guarded recovers panics from the wrapped logger
type guarded struct {
	next   Logger
	logger *slog.Logger
}

// Guard wraps a logger so a panicking sink cannot unwind into the caller.
// Recovered panics are reported on logger (slog.Default() when nil).
// A Multi is guarded per sink, so one panicking sink does not starve the rest.
func Guard(next Logger, logger *slog.Logger) Logger {
	if logger == nil {
		logger = slog.Default()
	}

	switch l := next.(type) {
	case nil:
		return Noop{}
	case *guarded:
		return l
	case Multi:
		guardedSinks := make(Multi, 0, len(l))
		for _, sink := range l {
			if sink != nil {
				guardedSinks = append(guardedSinks, Guard(sink, logger))
			}
		}
		return guardedSinks
	default:
		return &guarded{next: next, logger: logger}
	}
}

func (g *guarded) LogEvent(kind EventKind, data interface{}) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Warn("telemetry sink panicked, event dropped",
				"event", kind.String(),
				"panic", fmt.Sprint(r))
		}
	}()
	g.next.LogEvent(kind, data)
}

// SlogLogger writes events to a structured logger at debug level
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates a logger backed by l (slog.Default() when nil)
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{logger: l}
}

// LogEvent logs the event
func (s *SlogLogger) LogEvent(kind EventKind, data interface{}) {
	s.logger.Debug("telemetry event", "event", kind.String(), "data", data)
}

// formatData renders event data as a label or column value
func formatData(data interface{}) string {
	if data == nil {
		return ""
	}
	return fmt.Sprint(data)
}

// Compile-time interface compliance checks
var (
	_ Logger = Noop{}
	_ Logger = Multi(nil)
	_ Logger = LoggerFunc(nil)
	_ Logger = (*SlogLogger)(nil)
)
