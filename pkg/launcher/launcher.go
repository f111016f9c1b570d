package launcher

import (
	"context"
	"log/slog"

	"github.com/jrepp/pylaunch/pkg/debugtarget"
	"github.com/jrepp/pylaunch/pkg/launchconfig"
	"github.com/jrepp/pylaunch/pkg/launcherr"
	"github.com/jrepp/pylaunch/pkg/procstart"
	"github.com/jrepp/pylaunch/pkg/telemetry"
)

// StatusCode is the host-facing result of a launch
type StatusCode int

const (
	// StatusOK means the launch was accepted
	StatusOK StatusCode = 0
	// StatusFailed accompanies a returned error
	StatusFailed StatusCode = -1
)

// String returns the string representation of a StatusCode
func (s StatusCode) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Launcher starts a project or a single file from one run configuration
type Launcher struct {
	config    *launchconfig.Configuration
	processes procstart.Factory
	spawner   procstart.Spawner
	targets   debugtarget.Factory
	telemetry telemetry.Logger
	logger    *slog.Logger
}

// Option configures a Launcher
type Option func(*Launcher)

// WithProcessFactory sets the process-start-info factory
func WithProcessFactory(f procstart.Factory) Option {
	return func(l *Launcher) {
		if f != nil {
			l.processes = f
		}
	}
}

// WithSpawner sets the process spawner
func WithSpawner(s procstart.Spawner) Option {
	return func(l *Launcher) {
		if s != nil {
			l.spawner = s
		}
	}
}

// WithDebugTargetFactory sets the debug-target-info factory
func WithDebugTargetFactory(f debugtarget.Factory) Option {
	return func(l *Launcher) {
		if f != nil {
			l.targets = f
		}
	}
}

// WithTelemetry sets the telemetry sink
func WithTelemetry(t telemetry.Logger) Option {
	return func(l *Launcher) {
		l.telemetry = t
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(l *Launcher) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a Launcher for config. Collaborators not given as options
// default to the procstart and debugtarget implementations.
func New(config *launchconfig.Configuration, opts ...Option) *Launcher {
	l := &Launcher{
		config: config,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.processes == nil {
		l.processes = procstart.NewDefaultFactory()
	}
	if l.spawner == nil {
		l.spawner = procstart.NewExecSpawner(procstart.WithSpawnerLogger(l.logger))
	}
	if l.targets == nil {
		l.targets = debugtarget.NewDefaultFactory(debugtarget.WithLogger(l.logger))
	}
	l.telemetry = telemetry.Guard(l.telemetry, l.logger)

	return l
}

// Config returns the held configuration
func (l *Launcher) Config() *launchconfig.Configuration {
	return l.config
}

// LaunchProject launches the held configuration as is
func (l *Launcher) LaunchProject(ctx context.Context, debug bool) (StatusCode, error) {
	return l.launch(ctx, l.config, debug)
}

// LaunchFile launches file with the held configuration's settings.
// The held configuration is not modified.
func (l *Launcher) LaunchFile(ctx context.Context, file string, debug bool) (StatusCode, error) {
	if file == "" {
		return StatusFailed, launcherr.InvalidArgument("file", "file path is empty")
	}

	config := l.config.Clone()
	if config == nil {
		config = &launchconfig.Configuration{}
	}
	config.ScriptName = file

	return l.launch(ctx, config, debug)
}

func (l *Launcher) launch(ctx context.Context, config *launchconfig.Configuration, debug bool) (StatusCode, error) {
	data := telemetry.LaunchNoDebug
	if debug {
		data = telemetry.LaunchDebug
	}
	l.telemetry.LogEvent(telemetry.EventLaunch, data)

	if debug {
		if err := l.launchDebug(ctx, config); err != nil {
			return StatusFailed, err
		}
		return StatusOK, nil
	}

	info, err := l.processes.CreateProcessStartInfo(ctx, config)
	if err != nil {
		return StatusFailed, err
	}

	handle, err := l.spawner.Start(ctx, info)
	if err != nil {
		return StatusFailed, err
	}

	pid := handle.PID()
	if err := handle.Release(); err != nil {
		l.logger.Warn("failed to release process handle", "pid", pid, "error", err)
	}

	l.logger.Debug("launched", "script", config.ScriptName, "pid", pid)
	return StatusOK, nil
}

func (l *Launcher) launchDebug(ctx context.Context, config *launchconfig.Configuration) error {
	target, err := l.targets.CreateDebugTargetInfo(ctx, config)
	if err != nil {
		return err
	}
	defer func() {
		if err := target.Close(); err != nil {
			l.logger.Warn("failed to close debug target", "script", config.ScriptName, "error", err)
		}
	}()

	if err := target.Launch(ctx); err != nil {
		return err
	}

	l.logger.Debug("debug launch accepted", "script", config.ScriptName)
	return nil
}
