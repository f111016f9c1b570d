package debugtarget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/jrepp/pylaunch/pkg/launcherr"
	"github.com/jrepp/pylaunch/pkg/procstart"
	"github.com/jrepp/pylaunch/pkg/sessions"
)

// Session is the supervisor config for a launched debuggee
type Session struct {
	ID        sessions.SessionID
	Process   procstart.Process
	Script    string
	Address   string
	LogDir    string
	StartedAt time.Time

	reapOnce sync.Once
}

// reap waits for the process in the background so Exited fires
func (s *Session) reap() {
	s.reapOnce.Do(func() {
		go func() { _ = s.Process.Wait() }()
	})
}

// Exited reports whether the debuggee has exited
func (s *Session) Exited() bool {
	s.reap()
	select {
	case <-s.Process.Exited():
		return true
	default:
		return false
	}
}

// SessionSyncer drives debuggee sessions for a sessions.Manager
type SessionSyncer struct {
	killTimeout time.Duration
	logger      *slog.Logger
}

// NewSessionSyncer creates a SessionSyncer
func NewSessionSyncer(logger *slog.Logger) *SessionSyncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionSyncer{
		killTimeout: 5 * time.Second,
		logger:      logger,
	}
}

func sessionFrom(config interface{}) (*Session, error) {
	s, ok := config.(*Session)
	if !ok || s == nil || s.Process == nil {
		return nil, fmt.Errorf("invalid config type: expected *debugtarget.Session, got %T", config)
	}
	return s, nil
}

// SyncSession reports terminal once the debuggee has exited
func (ss *SessionSyncer) SyncSession(ctx context.Context, updateType sessions.UpdateType, config interface{}) (bool, error) {
	s, err := sessionFrom(config)
	if err != nil {
		return false, err
	}

	if s.Exited() {
		ss.logger.Info("debuggee exited",
			"session_id", s.ID,
			"pid", s.Process.PID(),
			"exit", exitDescription(s.Process.Wait()))
		return true, nil
	}
	return false, nil
}

// SyncStopping asks the debuggee to exit and kills it after gracePeriod
func (ss *SessionSyncer) SyncStopping(ctx context.Context, config interface{}, gracePeriod time.Duration) error {
	s, err := sessionFrom(config)
	if err != nil {
		return err
	}
	if s.Exited() {
		return nil
	}

	ss.logger.Info("stopping debuggee", "session_id", s.ID, "pid", s.Process.PID(), "grace_period", gracePeriod)

	if err := s.Process.Signal(terminateSignal); err != nil {
		ss.logger.Warn("terminate signal failed, killing", "session_id", s.ID, "error", err)
		gracePeriod = 0
	}

	grace := time.NewTimer(gracePeriod)
	defer grace.Stop()

	select {
	case <-s.Process.Exited():
		ss.logger.Debug("debuggee exited gracefully", "session_id", s.ID)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-grace.C:
	}

	ss.logger.Warn("debuggee did not exit within grace period, killing", "session_id", s.ID)
	if err := s.Process.Kill(); err != nil {
		return launcherr.TerminationFailed(string(s.ID), err)
	}

	killWait := time.NewTimer(ss.killTimeout)
	defer killWait.Stop()

	select {
	case <-s.Process.Exited():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-killWait.C:
		return launcherr.TerminationFailed(string(s.ID), errors.New("process did not exit after kill"))
	}
}

// SyncStopped removes the adapter log directory
func (ss *SessionSyncer) SyncStopped(ctx context.Context, config interface{}) error {
	s, err := sessionFrom(config)
	if err != nil {
		return err
	}

	if s.LogDir != "" {
		if err := os.RemoveAll(s.LogDir); err != nil {
			return fmt.Errorf("remove log dir: %w", err)
		}
	}

	ss.logger.Debug("debug session cleaned up", "session_id", s.ID, "uptime", time.Since(s.StartedAt))
	return nil
}

func exitDescription(err error) string {
	if err == nil {
		return "exit status 0"
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.String()
	}
	return err.Error()
}

var _ sessions.Syncer = (*SessionSyncer)(nil)
