package launcher

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrepp/pylaunch/pkg/debugtarget"
	"github.com/jrepp/pylaunch/pkg/launchconfig"
	"github.com/jrepp/pylaunch/pkg/launcherr"
	"github.com/jrepp/pylaunch/pkg/procstart"
	"github.com/jrepp/pylaunch/pkg/telemetry"
)

type event struct {
	kind telemetry.EventKind
	data interface{}
}

// recordingTelemetry captures events
type recordingTelemetry struct {
	mu     sync.Mutex
	events []event
}

func (r *recordingTelemetry) LogEvent(kind telemetry.EventKind, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{kind, data})
}

func (r *recordingTelemetry) recorded() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event(nil), r.events...)
}

// recordingProcesses captures the configurations passed to the factory
type recordingProcesses struct {
	configs []*launchconfig.Configuration
	err     error
}

func (r *recordingProcesses) CreateProcessStartInfo(ctx context.Context, config *launchconfig.Configuration) (*procstart.StartInfo, error) {
	r.configs = append(r.configs, config)
	if r.err != nil {
		return nil, r.err
	}
	return &procstart.StartInfo{Path: config.InterpreterPath, Args: []string{config.ScriptName}}, nil
}

type stubHandle struct {
	released int
	err      error
}

func (h *stubHandle) PID() int { return 99 }

func (h *stubHandle) Release() error {
	h.released++
	return h.err
}

type recordingSpawner struct {
	infos  []*procstart.StartInfo
	handle *stubHandle
	err    error
}

func (r *recordingSpawner) Start(ctx context.Context, info *procstart.StartInfo) (procstart.Handle, error) {
	r.infos = append(r.infos, info)
	if r.err != nil {
		return nil, r.err
	}
	if r.handle == nil {
		r.handle = &stubHandle{}
	}
	return r.handle, nil
}

type stubTarget struct {
	launches  int
	closes    int
	launchErr error
	panicMsg  string
	closeErr  error
}

func (t *stubTarget) Launch(ctx context.Context) error {
	t.launches++
	if t.panicMsg != "" {
		panic(t.panicMsg)
	}
	return t.launchErr
}

func (t *stubTarget) Close() error {
	t.closes++
	return t.closeErr
}

type recordingTargets struct {
	configs []*launchconfig.Configuration
	target  *stubTarget
	err     error
}

func (r *recordingTargets) CreateDebugTargetInfo(ctx context.Context, config *launchconfig.Configuration) (debugtarget.Target, error) {
	r.configs = append(r.configs, config)
	if r.err != nil {
		return nil, r.err
	}
	if r.target == nil {
		r.target = &stubTarget{}
	}
	return r.target, nil
}

type fixture struct {
	config    *launchconfig.Configuration
	processes *recordingProcesses
	spawner   *recordingSpawner
	targets   *recordingTargets
	telemetry *recordingTelemetry
	launcher  *Launcher
}

func newFixture() *fixture {
	f := &fixture{
		config: &launchconfig.Configuration{
			InterpreterPath:      "/usr/bin/python3",
			InterpreterArguments: []string{"-O"},
			ScriptName:           "main.py",
			ScriptArguments:      []string{"--flag"},
			Environment:          map[string]string{"A": "1"},
		},
		processes: &recordingProcesses{},
		spawner:   &recordingSpawner{},
		targets:   &recordingTargets{},
		telemetry: &recordingTelemetry{},
	}
	f.launcher = New(f.config,
		WithProcessFactory(f.processes),
		WithSpawner(f.spawner),
		WithDebugTargetFactory(f.targets),
		WithTelemetry(f.telemetry),
	)
	return f
}

func TestLaunchProject_NoDebug(t *testing.T) {
	f := newFixture()

	status, err := f.launcher.LaunchProject(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, status)

	require.Len(t, f.processes.configs, 1)
	assert.Same(t, f.config, f.processes.configs[0], "Project launch uses the held configuration")
	require.Len(t, f.spawner.infos, 1)
	assert.Equal(t, 1, f.spawner.handle.released, "Handle is released immediately")
	assert.Empty(t, f.targets.configs, "Debug factory is not used")

	assert.Equal(t, []event{{telemetry.EventLaunch, telemetry.LaunchNoDebug}}, f.telemetry.recorded())
}

func TestLaunchFile_Debug(t *testing.T) {
	f := newFixture()

	status, err := f.launcher.LaunchFile(context.Background(), "/tmp/x.py", true)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, status)

	require.Len(t, f.targets.configs, 1)
	effective := f.targets.configs[0]
	assert.Equal(t, "/tmp/x.py", effective.ScriptName)
	assert.Equal(t, []string{"-O"}, effective.InterpreterArguments, "Interpreter arguments are kept for debugging")
	assert.Equal(t, []string{"--flag"}, effective.ScriptArguments)

	assert.Equal(t, "main.py", f.config.ScriptName, "Held configuration is unchanged")
	assert.NotSame(t, f.config, effective)

	assert.Equal(t, 1, f.targets.target.launches)
	assert.Equal(t, 1, f.targets.target.closes)
	assert.Empty(t, f.processes.configs, "Process factory is not used")
	assert.Empty(t, f.spawner.infos)

	assert.Equal(t, []event{{telemetry.EventLaunch, telemetry.LaunchDebug}}, f.telemetry.recorded())
}

func TestLaunchFile_NoDebug(t *testing.T) {
	f := newFixture()

	status, err := f.launcher.LaunchFile(context.Background(), "other.py", false)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, status)

	require.Len(t, f.processes.configs, 1)
	assert.Equal(t, "other.py", f.processes.configs[0].ScriptName)
	assert.Equal(t, "main.py", f.config.ScriptName)
}

func TestLaunchFile_CloneIsIndependent(t *testing.T) {
	f := newFixture()

	_, err := f.launcher.LaunchFile(context.Background(), "a.py", false)
	require.NoError(t, err)

	effective := f.processes.configs[0]
	effective.Environment["A"] = "changed"
	effective.InterpreterArguments[0] = "-X"

	assert.Equal(t, "1", f.config.Environment["A"])
	assert.Equal(t, []string{"-O"}, f.config.InterpreterArguments)
}

func TestLaunchFile_EmptyFile(t *testing.T) {
	f := newFixture()

	status, err := f.launcher.LaunchFile(context.Background(), "", true)
	assert.Equal(t, StatusFailed, status)
	assert.True(t, launcherr.IsCode(err, launcherr.CodeInvalidArgument))

	assert.Empty(t, f.telemetry.recorded(), "Rejected launches log no telemetry")
	assert.Empty(t, f.targets.configs)
	assert.Empty(t, f.processes.configs)
}

func TestLaunch_StatusIsFixed(t *testing.T) {
	for _, debug := range []bool{false, true} {
		f := newFixture()

		status, err := f.launcher.LaunchProject(context.Background(), debug)
		require.NoError(t, err)
		assert.Equal(t, StatusOK, status)

		status, err = f.launcher.LaunchFile(context.Background(), "f.py", debug)
		require.NoError(t, err)
		assert.Equal(t, StatusOK, status)
	}
}

func TestLaunch_OneEventPerLaunch(t *testing.T) {
	f := newFixture()

	calls := []struct {
		file  string
		debug bool
	}{
		{"", false},
		{"", true},
		{"a.py", false},
		{"b.py", true},
	}
	for _, c := range calls {
		var err error
		if c.file == "" {
			_, err = f.launcher.LaunchProject(context.Background(), c.debug)
		} else {
			_, err = f.launcher.LaunchFile(context.Background(), c.file, c.debug)
		}
		require.NoError(t, err)
	}

	assert.Equal(t, []event{
		{telemetry.EventLaunch, 0},
		{telemetry.EventLaunch, 1},
		{telemetry.EventLaunch, 0},
		{telemetry.EventLaunch, 1},
	}, f.telemetry.recorded())
}

func TestLaunch_ErrorsPropagateUnchanged(t *testing.T) {
	factoryErr := errors.New("bad interpreter")
	spawnErr := launcherr.ProcessStartFailed("/usr/bin/python3", errors.New("exec format error"))
	targetErr := errors.New("no adapter")
	launchErr := errors.New("adapter crashed")

	t.Run("process factory", func(t *testing.T) {
		f := newFixture()
		f.processes.err = factoryErr

		status, err := f.launcher.LaunchProject(context.Background(), false)
		assert.Equal(t, StatusFailed, status)
		assert.Same(t, factoryErr, err)
		assert.Empty(t, f.spawner.infos)
		assert.Len(t, f.telemetry.recorded(), 1, "Telemetry is logged before dispatch")
	})

	t.Run("spawner", func(t *testing.T) {
		f := newFixture()
		f.spawner.err = spawnErr

		status, err := f.launcher.LaunchProject(context.Background(), false)
		assert.Equal(t, StatusFailed, status)
		assert.Same(t, spawnErr, err)
	})

	t.Run("debug factory", func(t *testing.T) {
		f := newFixture()
		f.targets.err = targetErr

		status, err := f.launcher.LaunchFile(context.Background(), "x.py", true)
		assert.Equal(t, StatusFailed, status)
		assert.Same(t, targetErr, err)
	})

	t.Run("debug launch", func(t *testing.T) {
		f := newFixture()
		f.targets.target = &stubTarget{launchErr: launchErr}

		status, err := f.launcher.LaunchProject(context.Background(), true)
		assert.Equal(t, StatusFailed, status)
		assert.Same(t, launchErr, err)
		assert.Equal(t, 1, f.targets.target.closes, "Target is closed when Launch fails")
	})
}

func TestLaunch_CloseOnPanic(t *testing.T) {
	f := newFixture()
	f.targets.target = &stubTarget{panicMsg: "boom"}

	assert.PanicsWithValue(t, "boom", func() {
		_, _ = f.launcher.LaunchProject(context.Background(), true)
	})
	assert.Equal(t, 1, f.targets.target.closes)
}

func TestLaunch_CloseErrorIsNotReturned(t *testing.T) {
	f := newFixture()
	f.targets.target = &stubTarget{closeErr: errors.New("busy")}

	status, err := f.launcher.LaunchProject(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, status)
}

func TestLaunch_ReleaseErrorIsNotReturned(t *testing.T) {
	f := newFixture()
	f.spawner.handle = &stubHandle{err: errors.New("invalid handle")}

	status, err := f.launcher.LaunchProject(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, status)
}

func TestLaunch_TelemetryPanicDoesNotFailLaunch(t *testing.T) {
	f := newFixture()
	l := New(f.config,
		WithProcessFactory(f.processes),
		WithSpawner(f.spawner),
		WithDebugTargetFactory(f.targets),
		WithTelemetry(telemetry.LoggerFunc(func(telemetry.EventKind, interface{}) {
			panic("sink down")
		})),
	)

	status, err := l.LaunchProject(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, status)
	assert.Len(t, f.spawner.infos, 1)
}

func TestLaunch_NilTelemetry(t *testing.T) {
	f := newFixture()
	l := New(f.config, WithProcessFactory(f.processes), WithSpawner(f.spawner))

	status, err := l.LaunchProject(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, status)
}

func TestStatusCode_String(t *testing.T) {
	assert.Equal(t, "OK", StatusOK.String())
	assert.Equal(t, "Failed", StatusFailed.String())
	assert.Equal(t, "Unknown", StatusCode(7).String())
	assert.Equal(t, 0, int(StatusOK))
	assert.Equal(t, -1, int(StatusFailed))
}
