package sessions

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SessionState represents the lifecycle state of a supervised debug session
type SessionState int

const (
	// SessionStateStarting - session registered, first sync pending
	SessionStateStarting SessionState = iota
	// SessionStateRunning - debuggee is alive
	SessionStateRunning
	// SessionStateStopping - debuggee is being shut down
	SessionStateStopping
	// SessionStateStopped - debuggee is gone, awaiting cleanup
	SessionStateStopped
	// SessionStateFinished - session fully cleaned up
	SessionStateFinished
)

// String returns the string representation of a SessionState
func (s SessionState) String() string {
	switch s {
	case SessionStateStarting:
		return "Starting"
	case SessionStateRunning:
		return "Running"
	case SessionStateStopping:
		return "Stopping"
	case SessionStateStopped:
		return "Stopped"
	case SessionStateFinished:
		return "Finished"
	default:
		return "Unknown"
	}
}

// SessionID uniquely identifies a supervised session
type SessionID string

// UpdateType specifies the kind of update
type UpdateType int

const (
	// UpdateTypeCreate - register a new session
	UpdateTypeCreate UpdateType = iota
	// UpdateTypeSync - periodic liveness check
	UpdateTypeSync
	// UpdateTypeStop - stop the session
	UpdateTypeStop
)

// String returns the string representation of an UpdateType
func (ut UpdateType) String() string {
	switch ut {
	case UpdateTypeCreate:
		return "Create"
	case UpdateTypeSync:
		return "Sync"
	case UpdateTypeStop:
		return "Stop"
	default:
		return "Unknown"
	}
}

// Update contains a state change for a session
type Update struct {
	ID          SessionID
	UpdateType  UpdateType
	StartTime   time.Time
	Config      interface{} // Syncer-specific session data
	StopOptions *StopOptions
}

// StopOptions control how a session is stopped
type StopOptions struct {
	// CompletedCh is closed once the debuggee has stopped
	CompletedCh chan<- struct{}
	// GracePeriod overrides the manager default; it can only shrink
	GracePeriod *time.Duration
}

// SessionStatus is a snapshot of a session's runtime state
type SessionStatus struct {
	State      SessionState
	Healthy    bool
	StartedAt  time.Time
	LastSync   time.Time
	ErrorCount int
	LastError  error
}

// Syncer defines the lifecycle hooks the manager drives for each session
type Syncer interface {
	// SyncSession checks on a running session.
	// Returns (terminal, error) where terminal=true means the debuggee has exited.
	SyncSession(ctx context.Context, updateType UpdateType, config interface{}) (terminal bool, err error)

	// SyncStopping stops the debuggee, waiting at most gracePeriod before forcing it
	SyncStopping(ctx context.Context, config interface{}, gracePeriod time.Duration) error

	// SyncStopped releases whatever the session still holds
	SyncStopped(ctx context.Context, config interface{}) error
}

// Manager supervises zero or more concurrent debug sessions
type Manager struct {
	mu sync.Mutex

	signals  map[SessionID]chan struct{}
	statuses map[SessionID]*sessionStatus

	syncer             Syncer
	resyncInterval     time.Duration
	backOffPeriod      time.Duration
	defaultGracePeriod time.Duration
	workQueue          WorkQueue
	metrics            MetricsCollector
	logger             *slog.Logger

	closing        bool
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
	wg             sync.WaitGroup
}

// Internal state tracking per session
type sessionStatus struct {
	ctx      context.Context
	cancelFn context.CancelFunc

	working bool
	pending *Update
	active  *Update

	syncedAt   time.Time
	startedAt  time.Time
	stoppingAt time.Time
	stoppedAt  time.Time
	finishedAt time.Time

	gracePeriod time.Duration
	graceSet    bool
	completed   []chan<- struct{}
	done        chan struct{}

	errorCount       int
	lastError        error
	consecutiveFails int
}

func newSessionStatus() *sessionStatus {
	return &sessionStatus{done: make(chan struct{})}
}

// State returns the current state of the session
func (ss *sessionStatus) State() SessionState {
	if !ss.finishedAt.IsZero() {
		return SessionStateFinished
	}
	if !ss.stoppedAt.IsZero() {
		return SessionStateStopped
	}
	if !ss.stoppingAt.IsZero() {
		return SessionStateStopping
	}
	if !ss.syncedAt.IsZero() {
		return SessionStateRunning
	}
	return SessionStateStarting
}

// IsStopping returns true if the session is stopping or beyond
func (ss *sessionStatus) IsStopping() bool {
	return !ss.stoppingAt.IsZero()
}

// IsFinished returns true if the session is finished
func (ss *sessionStatus) IsFinished() bool {
	return !ss.finishedAt.IsZero()
}

// Healthy returns true if the session is running without repeated errors
func (ss *sessionStatus) Healthy() bool {
	return ss.errorCount < 5 && ss.State() == SessionStateRunning
}

func (ss *sessionStatus) snapshot() SessionStatus {
	return SessionStatus{
		State:      ss.State(),
		Healthy:    ss.Healthy(),
		StartedAt:  ss.startedAt,
		LastSync:   ss.syncedAt,
		ErrorCount: ss.errorCount,
		LastError:  ss.lastError,
	}
}
