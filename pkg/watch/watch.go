// Package watch relaunches a script whenever it changes on disk.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jrepp/pylaunch/pkg/launcher"
	"github.com/jrepp/pylaunch/pkg/telemetry"
)

// DefaultDebounce coalesces the bursts of events editors produce on save
const DefaultDebounce = 500 * time.Millisecond

// Relauncher launches a single file
type Relauncher interface {
	LaunchFile(ctx context.Context, file string, debug bool) (launcher.StatusCode, error)
}

// Watcher relaunches one file after it is written
type Watcher struct {
	file       string
	relauncher Relauncher
	debounce   time.Duration
	initial    bool
	telemetry  telemetry.Logger
	logger     *slog.Logger

	ready     chan struct{}
	readyOnce sync.Once
}

// Option configures a Watcher
type Option func(*Watcher)

// WithDebounce sets the quiet period before a relaunch
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithInitialLaunch launches the file once before watching
func WithInitialLaunch(enabled bool) Option {
	return func(w *Watcher) {
		w.initial = enabled
	}
}

// WithTelemetry sets the sink for EventWatchRelaunch
func WithTelemetry(t telemetry.Logger) Option {
	return func(w *Watcher) {
		w.telemetry = t
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New creates a Watcher for file
func New(file string, relauncher Relauncher, opts ...Option) (*Watcher, error) {
	if file == "" {
		return nil, fmt.Errorf("file to watch is required")
	}
	if relauncher == nil {
		return nil, fmt.Errorf("relauncher is required")
	}

	abs, err := filepath.Abs(file)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", file, err)
	}

	w := &Watcher{
		file:       abs,
		relauncher: relauncher,
		debounce:   DefaultDebounce,
		logger:     slog.Default(),
		ready:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.telemetry = telemetry.Guard(w.telemetry, w.logger)

	return w, nil
}

// File is the absolute path being watched
func (w *Watcher) File() string { return w.file }

// Ready is closed once the watch is registered
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

// Run watches until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	if _, err := os.Stat(w.file); err != nil {
		return fmt.Errorf("cannot watch %s: %w", w.file, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors often replace the file on save
	dir := filepath.Dir(w.file)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w.logger.Info("watching file", "file", w.file, "debounce", w.debounce)
	w.readyOnce.Do(func() { close(w.ready) })

	if w.initial {
		w.relaunch(ctx, false)
	}

	var (
		debounceTimer *time.Timer
		fire          <-chan time.Time
	)
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("stopping watcher", "file", w.file)
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != w.file {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			w.logger.Debug("file changed", "file", filepath.Base(event.Name), "op", event.Op)

			if debounceTimer == nil {
				debounceTimer = time.NewTimer(w.debounce)
			} else {
				if !debounceTimer.Stop() {
					select {
					case <-debounceTimer.C:
					default:
					}
				}
				debounceTimer.Reset(w.debounce)
			}
			fire = debounceTimer.C

		case <-fire:
			fire = nil
			w.relaunch(ctx, true)

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) relaunch(ctx context.Context, changed bool) {
	if changed {
		w.telemetry.LogEvent(telemetry.EventWatchRelaunch, w.file)
	}

	status, err := w.relauncher.LaunchFile(ctx, w.file, false)
	if err != nil {
		w.logger.Error("relaunch failed", "file", w.file, "status", status, "error", err)
		return
	}
	w.logger.Info("relaunched", "file", w.file, "status", status)
}
