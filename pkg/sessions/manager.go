// Package sessions supervises debuggee processes started by debug launches.
//
// Each session gets its own worker goroutine driven by a delayed work queue:
// running sessions are re-checked every resync interval, failing syncs back
// off exponentially, and a stop request walks the session through
// Stopping -> Stopped -> Finished using the configured Syncer.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// NewManager creates a new session manager
func NewManager(opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		signals:            make(map[SessionID]chan struct{}),
		statuses:           make(map[SessionID]*sessionStatus),
		resyncInterval:     2 * time.Second,
		backOffPeriod:      5 * time.Second,
		defaultGracePeriod: 10 * time.Second,
		workQueue:          NewWorkQueue(),
		metrics:            NewNoopMetricsCollector(),
		logger:             slog.Default(),
		shutdownCtx:        ctx,
		shutdownCancel:     cancel,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.wg.Add(1)
	go m.workQueueConsumer()

	return m
}

// Update submits a session update
func (m *Manager) Update(update Update) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if update.StartTime.IsZero() {
		update.StartTime = time.Now()
	}

	status, exists := m.statuses[update.ID]
	if !exists {
		if update.UpdateType == UpdateTypeStop {
			m.logger.Debug("stop requested for unknown session", "session_id", update.ID)
			return
		}
		if m.closing {
			m.logger.Warn("session manager is shutting down, update rejected", "session_id", update.ID)
			return
		}
		status = newSessionStatus()
		m.statuses[update.ID] = status
	}

	if status.IsFinished() {
		m.logger.Debug("session is finished, ignoring update", "session_id", update.ID, "update_type", update.UpdateType)
		if update.StopOptions != nil && update.StopOptions.CompletedCh != nil {
			close(update.StopOptions.CompletedCh)
		}
		return
	}

	if update.UpdateType == UpdateTypeStop {
		m.handleStopRequest(update.ID, status, update.StopOptions)
	}

	// Stop requests usually carry no config; keep the one the session was created with
	if update.Config == nil {
		if status.pending != nil {
			update.Config = status.pending.Config
		} else if status.active != nil {
			update.Config = status.active.Config
		}
	}

	status.pending = &update

	sig, exists := m.signals[update.ID]
	if !exists {
		sig = make(chan struct{}, 1)
		m.signals[update.ID] = sig

		m.wg.Add(1)
		go m.sessionWorkerLoop(update.ID, sig)
	}

	notify(sig)
}

// handleStopRequest marks the session stopping. Must be called with m.mu held.
func (m *Manager) handleStopRequest(id SessionID, status *sessionStatus, opts *StopOptions) {
	alreadyStopping := status.IsStopping()

	if status.stoppingAt.IsZero() {
		status.stoppingAt = time.Now()
	}

	grace := m.defaultGracePeriod
	if opts != nil {
		if opts.GracePeriod != nil {
			grace = *opts.GracePeriod
		}
		if opts.CompletedCh != nil {
			status.completed = append(status.completed, opts.CompletedCh)
		}
	}

	// Grace period can only decrease, never increase
	if !status.graceSet || grace < status.gracePeriod {
		status.gracePeriod = grace
		status.graceSet = true
	}

	// Interrupt a liveness sync that is still in flight
	if !alreadyStopping && status.cancelFn != nil {
		m.logger.Debug("cancelling in-flight sync for stop", "session_id", id)
		status.cancelFn()
	}
}

// workQueueConsumer wakes workers whose queued sync time has come
func (m *Manager) workQueueConsumer() {
	defer m.wg.Done()

	for {
		wait := time.Second
		if d, ok := m.workQueue.NextReadyIn(); ok && d < wait {
			wait = d
		}
		timer := time.NewTimer(wait)

		select {
		case <-m.shutdownCtx.Done():
			timer.Stop()
			return
		case <-m.workQueue.Wait():
		case <-timer.C:
		}
		timer.Stop()

		m.processWorkQueue()
	}
}

// processWorkQueue dequeues all ready items and signals their workers
func (m *Manager) processWorkQueue() {
	for {
		id, ok := m.workQueue.Dequeue()
		if !ok {
			return
		}

		m.metrics.WorkQueueRetry(id)
		m.metrics.WorkQueueDepth(m.workQueue.Len())

		m.mu.Lock()
		status, exists := m.statuses[id]
		sig, sigExists := m.signals[id]
		if !exists || !sigExists || status.IsFinished() {
			m.mu.Unlock()
			continue
		}

		// No pending update: synthesize a sync for resync or retry
		if status.pending == nil {
			var config interface{}
			if status.active != nil {
				config = status.active.Config
			}
			status.pending = &Update{
				ID:         id,
				UpdateType: UpdateTypeSync,
				StartTime:  time.Now(),
				Config:     config,
			}
		}
		m.mu.Unlock()

		notify(sig)
	}
}

// sessionWorkerLoop processes updates for a single session
func (m *Manager) sessionWorkerLoop(id SessionID, sig <-chan struct{}) {
	defer m.wg.Done()
	defer m.logger.Debug("session worker stopped", "session_id", id)

	m.logger.Debug("session worker started", "session_id", id)

	for {
		select {
		case <-m.shutdownCtx.Done():
			return
		case <-sig:
			if !m.processUpdate(id) {
				return
			}
		}
	}
}

// processUpdate runs the pending update for a session.
// Returns false if the worker should exit.
func (m *Manager) processUpdate(id SessionID) bool {
	m.mu.Lock()

	status, exists := m.statuses[id]
	if !exists || status.IsFinished() {
		m.mu.Unlock()
		return false
	}

	if status.working || status.pending == nil {
		m.mu.Unlock()
		return true
	}

	status.active = status.pending
	status.pending = nil
	status.working = true

	if status.ctx == nil || status.ctx.Err() != nil {
		status.ctx, status.cancelFn = context.WithCancel(m.shutdownCtx)
	}

	ctx := status.ctx
	update := *status.active
	state := status.State()

	m.mu.Unlock()

	err := m.executeSync(ctx, id, status, update, state)

	m.completeWork(id, err)

	return true
}

// executeSync runs the syncer hook matching the session state
func (m *Manager) executeSync(ctx context.Context, id SessionID, status *sessionStatus, update Update, state SessionState) error {
	if m.syncer == nil {
		err := fmt.Errorf("no syncer configured")
		m.mu.Lock()
		status.errorCount++
		status.lastError = err
		m.mu.Unlock()
		m.metrics.SessionError(id, "no_syncer")
		return err
	}

	switch state {
	case SessionStateStarting, SessionStateRunning:
		return m.syncSession(ctx, id, status, update)
	case SessionStateStopping:
		return m.syncStopping(ctx, id, status, update)
	case SessionStateStopped:
		return m.syncStopped(ctx, id, status, update)
	case SessionStateFinished:
		return nil
	default:
		return fmt.Errorf("unknown state: %v", state)
	}
}

func (m *Manager) syncSession(ctx context.Context, id SessionID, status *sessionStatus, update Update) error {
	startTime := time.Now()

	terminal, err := m.syncer.SyncSession(ctx, update.UpdateType, update.Config)

	duration := time.Since(startTime)
	m.metrics.SyncDuration(id, update.UpdateType, duration, err)

	m.mu.Lock()
	defer m.mu.Unlock()

	oldState := status.State()

	if err != nil {
		status.errorCount++
		status.lastError = err
		m.metrics.SessionError(id, "sync_error")
		m.logger.Warn("session sync failed", "session_id", id, "error", err)
	} else {
		status.errorCount = 0
		status.lastError = nil
		status.syncedAt = time.Now()
		if status.startedAt.IsZero() {
			status.startedAt = status.syncedAt
		}
	}

	if terminal && !status.IsStopping() {
		m.logger.Info("debuggee exited, cleaning up session", "session_id", id)
		status.stoppingAt = time.Now()
		if !status.graceSet {
			status.gracePeriod = m.defaultGracePeriod
			status.graceSet = true
		}
	}

	if newState := status.State(); newState != oldState {
		m.metrics.SessionStateTransition(id, oldState, newState)
	}

	return err
}

func (m *Manager) syncStopping(ctx context.Context, id SessionID, status *sessionStatus, update Update) error {
	m.mu.Lock()
	grace := status.gracePeriod
	m.mu.Unlock()

	startTime := time.Now()
	err := m.syncer.SyncStopping(ctx, update.Config, grace)
	duration := time.Since(startTime)

	m.metrics.StopDuration(id, duration)
	m.logger.Debug("session stop completed", "session_id", id, "duration", duration, "error", err)

	m.mu.Lock()
	defer m.mu.Unlock()

	oldState := status.State()

	if err != nil {
		status.errorCount++
		status.lastError = err
		m.metrics.SessionError(id, "stop_error")
	} else {
		status.stoppedAt = time.Now()
		status.errorCount = 0
		status.lastError = nil

		for _, ch := range status.completed {
			close(ch)
		}
		status.completed = nil

		// Run the cleanup phase next
		status.pending = &Update{
			ID:         id,
			UpdateType: UpdateTypeSync,
			StartTime:  time.Now(),
			Config:     update.Config,
		}
	}

	if newState := status.State(); newState != oldState {
		m.metrics.SessionStateTransition(id, oldState, newState)
	}

	return err
}

func (m *Manager) syncStopped(ctx context.Context, id SessionID, status *sessionStatus, update Update) error {
	err := m.syncer.SyncStopped(ctx, update.Config)

	m.mu.Lock()
	defer m.mu.Unlock()

	oldState := status.State()

	if err != nil {
		status.errorCount++
		status.lastError = err
		m.metrics.SessionError(id, "cleanup_error")
	} else {
		status.finishedAt = time.Now()
		status.errorCount = 0
		status.lastError = nil
		close(status.done)
		m.logger.Info("session finished", "session_id", id)
	}

	if newState := status.State(); newState != oldState {
		m.metrics.SessionStateTransition(id, oldState, newState)
	}

	return err
}

// completeWork marks work as complete and schedules the next sync
func (m *Manager) completeWork(id SessionID, syncErr error) {
	m.mu.Lock()

	status, exists := m.statuses[id]
	if !exists {
		m.mu.Unlock()
		return
	}

	status.working = false
	sig := m.signals[id]

	if status.IsFinished() {
		m.workQueue.Remove(id)
		m.mu.Unlock()
		// Wake the worker so it sees the finished state and exits
		notify(sig)
		return
	}

	var delay time.Duration
	if syncErr != nil {
		status.consecutiveFails++

		if errors.Is(syncErr, context.Canceled) || errors.Is(syncErr, context.DeadlineExceeded) {
			delay = Jitter(time.Second, 0.5)
		} else {
			delay = ExponentialBackoff(status.consecutiveFails-1, time.Second, m.backOffPeriod)
		}
		m.logger.Debug("session sync will be retried",
			"session_id", id,
			"attempt", status.consecutiveFails,
			"delay", delay)
	} else {
		status.consecutiveFails = 0

		switch status.State() {
		case SessionStateStopping, SessionStateStopped:
			// Phase transitions run immediately
			delay = 0
		default:
			delay = Jitter(m.resyncInterval, 0.1)
		}
	}

	m.workQueue.Enqueue(id, delay)
	m.metrics.WorkQueueAdd(id, delay)
	m.metrics.WorkQueueDepth(m.workQueue.Len())
	if syncErr != nil {
		m.metrics.WorkQueueBackoffDuration(id, delay)
	}

	hasPending := status.pending != nil
	m.mu.Unlock()

	if hasPending {
		notify(sig)
	}
}

// Status returns a snapshot of a session
func (m *Manager) Status(id SessionID) (SessionStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status, exists := m.statuses[id]
	if !exists {
		return SessionStatus{}, false
	}
	return status.snapshot(), true
}

// Done returns a channel closed when the session finishes
func (m *Manager) Done(id SessionID) (<-chan struct{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status, exists := m.statuses[id]
	if !exists {
		return nil, false
	}
	return status.done, true
}

// Wait blocks until the session finishes or ctx is done
func (m *Manager) Wait(ctx context.Context, id SessionID) error {
	done, ok := m.Done(id)
	if !ok {
		return fmt.Errorf("unknown session %s", id)
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsFinished checks if session cleanup completed
func (m *Manager) IsFinished(id SessionID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	status, exists := m.statuses[id]
	return exists && status.IsFinished()
}

// Prune forgets finished sessions and returns how many were removed
func (m *Manager) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, status := range m.statuses {
		if !status.IsFinished() {
			continue
		}
		delete(m.statuses, id)
		delete(m.signals, id)
		removed++
	}
	return removed
}

// Shutdown stops every session and waits for them to finish
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("session manager shutting down")

	m.mu.Lock()
	m.closing = true
	ids := make([]SessionID, 0, len(m.statuses))
	dones := make([]chan struct{}, 0, len(m.statuses))
	for id, status := range m.statuses {
		if status.IsFinished() {
			continue
		}
		ids = append(ids, id)
		dones = append(dones, status.done)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Update(Update{ID: id, UpdateType: UpdateTypeStop})
	}

	for _, done := range dones {
		select {
		case <-done:
		case <-ctx.Done():
			m.logger.Warn("session manager shutdown timeout")
			m.shutdownCancel()
			return ctx.Err()
		}
	}

	m.shutdownCancel()
	m.wg.Wait()

	m.logger.Info("session manager shutdown complete")
	return nil
}

// HealthCheck represents the health status of the session manager
type HealthCheck struct {
	TotalSessions    int
	RunningSessions  int
	StoppingSessions int
	FailedSessions   int
	WorkQueueDepth   int
	Sessions         map[SessionID]SessionHealth
}

// SessionHealth represents the health status of an individual session
type SessionHealth struct {
	State      SessionState
	Healthy    bool
	Uptime     time.Duration
	LastSync   time.Time
	ErrorCount int
}

// Health returns the current health status of the session manager
func (m *Manager) Health() HealthCheck {
	m.mu.Lock()
	defer m.mu.Unlock()

	health := HealthCheck{
		Sessions: make(map[SessionID]SessionHealth),
	}

	for id, status := range m.statuses {
		health.TotalSessions++

		state := status.State()
		switch state {
		case SessionStateRunning:
			health.RunningSessions++
		case SessionStateStopping:
			health.StoppingSessions++
		}

		if status.errorCount > 5 {
			health.FailedSessions++
		}

		var uptime time.Duration
		if !status.startedAt.IsZero() {
			if status.finishedAt.IsZero() {
				uptime = time.Since(status.startedAt)
			} else {
				uptime = status.finishedAt.Sub(status.startedAt)
			}
		}

		health.Sessions[id] = SessionHealth{
			State:      state,
			Healthy:    status.Healthy(),
			Uptime:     uptime,
			LastSync:   status.syncedAt,
			ErrorCount: status.errorCount,
		}
	}

	health.WorkQueueDepth = m.workQueue.Len()

	return health
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
