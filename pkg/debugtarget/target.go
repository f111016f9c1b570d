package debugtarget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jrepp/pylaunch/pkg/launcherr"
	"github.com/jrepp/pylaunch/pkg/procstart"
	"github.com/jrepp/pylaunch/pkg/sessions"
)

// TargetInfo is the Target built by DefaultFactory
type TargetInfo struct {
	info    *procstart.StartInfo
	script  string
	address string

	spawner    Spawner
	supervisor Supervisor
	logger     *slog.Logger

	mu        sync.Mutex
	listener  net.Listener
	logDir    string
	launched  bool
	closed    bool
	sessionID sessions.SessionID
}

// Address is the host:port the adapter listens on
func (t *TargetInfo) Address() string { return t.address }

// StartInfo is the debuggee command
func (t *TargetInfo) StartInfo() *procstart.StartInfo { return t.info }

// LogDir is the adapter log directory, empty when logging is off
func (t *TargetInfo) LogDir() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.logDir
}

// SessionID is the supervisor id assigned by Launch
func (t *TargetInfo) SessionID() sessions.SessionID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

// Launch starts the debuggee. It may be called once.
func (t *TargetInfo) Launch(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return launcherr.DebugLaunchFailed(t.script, errors.New("target is closed"))
	}
	if t.launched {
		return launcherr.DebugLaunchFailed(t.script, errors.New("target was already launched"))
	}
	t.launched = true

	if t.listener != nil {
		if err := t.listener.Close(); err != nil {
			t.logger.Warn("failed to release reserved port", "address", t.address, "error", err)
		}
		t.listener = nil
	}

	proc, err := t.spawner.StartProcess(ctx, t.info)
	if err != nil {
		return err
	}

	id := sessions.SessionID(uuid.NewString())
	t.sessionID = id

	t.logger.Info("debuggee started",
		"session_id", id,
		"pid", proc.PID(),
		"script", t.script,
		"address", t.address)

	if t.supervisor == nil {
		if err := proc.Release(); err != nil {
			t.logger.Warn("failed to release debuggee handle", "pid", proc.PID(), "error", err)
		}
		// The debuggee still writes here; leave it behind
		if t.logDir != "" {
			t.logger.Info("adapter logs kept", "log_dir", t.logDir)
			t.logDir = ""
		}
		return nil
	}

	// The session owns the log directory from here on
	session := &Session{
		ID:        id,
		Process:   proc,
		Script:    t.script,
		Address:   t.address,
		LogDir:    t.logDir,
		StartedAt: time.Now(),
	}
	t.logDir = ""

	t.supervisor.Update(sessions.Update{
		ID:         id,
		UpdateType: sessions.UpdateTypeCreate,
		StartTime:  session.StartedAt,
		Config:     session,
	})
	return nil
}

// Close releases the port reservation and log directory. Safe to call more than once.
func (t *TargetInfo) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	var errs []error
	if t.listener != nil {
		if err := t.listener.Close(); err != nil {
			errs = append(errs, fmt.Errorf("release port %s: %w", t.address, err))
		}
		t.listener = nil
	}
	if t.logDir != "" {
		if err := os.RemoveAll(t.logDir); err != nil {
			errs = append(errs, fmt.Errorf("remove log dir: %w", err))
		}
		t.logDir = ""
	}
	return errors.Join(errs...)
}

var _ Target = (*TargetInfo)(nil)
