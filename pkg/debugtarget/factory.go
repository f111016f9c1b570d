// Package debugtarget prepares and starts scripts under a debug adapter.
//
// A Target is a scoped resource: CreateDebugTargetInfo reserves a loopback
// port and an adapter log directory, Launch starts the debuggee, and Close
// releases whatever Launch did not hand over to the session supervisor.
package debugtarget

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/jrepp/pylaunch/pkg/launchconfig"
	"github.com/jrepp/pylaunch/pkg/launcherr"
	"github.com/jrepp/pylaunch/pkg/procstart"
	"github.com/jrepp/pylaunch/pkg/sessions"
)

const (
	// DefaultAdapter is the Python module that serves the debug adapter protocol
	DefaultAdapter = "debugpy"
	// DefaultHost is the address the adapter listens on
	DefaultHost = "127.0.0.1"

	// adapterCheckTimeout bounds the interpreter import check
	adapterCheckTimeout = 30 * time.Second
)

// adapterCheckScript exits non-zero when the module named by argv[1] cannot be imported
const adapterCheckScript = "import importlib.util, sys; sys.exit(0 if importlib.util.find_spec(sys.argv[1]) else 1)"

// Target is a prepared debug launch
type Target interface {
	Launch(ctx context.Context) error
	Close() error
}

// Factory creates debug targets for a configuration
type Factory interface {
	CreateDebugTargetInfo(ctx context.Context, config *launchconfig.Configuration) (Target, error)
}

// Spawner starts the debuggee and keeps a full process handle
type Spawner interface {
	StartProcess(ctx context.Context, info *procstart.StartInfo) (procstart.Process, error)
}

// Supervisor takes ownership of launched debuggees
type Supervisor interface {
	Update(update sessions.Update)
}

// DefaultFactory runs scripts as `python -m debugpy --listen host:port script`
type DefaultFactory struct {
	adapter       string
	host          string
	waitForClient bool
	adapterLog    bool

	processes  *procstart.DefaultFactory
	spawner    Spawner
	supervisor Supervisor
	logger     *slog.Logger

	listen       func(network, address string) (net.Listener, error)
	checkAdapter func(ctx context.Context, info *procstart.StartInfo) error
	tempDir      string
}

// Option configures a DefaultFactory
type Option func(*DefaultFactory)

// WithAdapter sets the adapter module run with `-m`
func WithAdapter(module string) Option {
	return func(f *DefaultFactory) {
		if module != "" {
			f.adapter = module
		}
	}
}

// WithHost sets the listen host
func WithHost(host string) Option {
	return func(f *DefaultFactory) {
		if host != "" {
			f.host = host
		}
	}
}

// WithWaitForClient makes scripts block until a client attaches. The
// "debug.wait_for_client" launch option overrides it.
func WithWaitForClient(wait bool) Option {
	return func(f *DefaultFactory) {
		f.waitForClient = wait
	}
}

// WithAdapterLog enables adapter logs in a temporary directory
func WithAdapterLog(enabled bool) Option {
	return func(f *DefaultFactory) {
		f.adapterLog = enabled
	}
}

// WithAdapterCheck controls whether the interpreter is asked to import the
// adapter module before a target is prepared. Enabled by default.
func WithAdapterCheck(enabled bool) Option {
	return func(f *DefaultFactory) {
		if enabled {
			f.checkAdapter = runAdapterCheck
		} else {
			f.checkAdapter = nil
		}
	}
}

// WithTempDir sets where adapter log directories are created
func WithTempDir(dir string) Option {
	return func(f *DefaultFactory) {
		f.tempDir = dir
	}
}

// WithProcessFactory sets how the interpreter and environment are resolved
func WithProcessFactory(pf *procstart.DefaultFactory) Option {
	return func(f *DefaultFactory) {
		if pf != nil {
			f.processes = pf
		}
	}
}

// WithSpawner sets the process spawner
func WithSpawner(s Spawner) Option {
	return func(f *DefaultFactory) {
		if s != nil {
			f.spawner = s
		}
	}
}

// WithSupervisor hands launched debuggees to a session supervisor
func WithSupervisor(s Supervisor) Option {
	return func(f *DefaultFactory) {
		f.supervisor = s
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(f *DefaultFactory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewDefaultFactory creates a DefaultFactory
func NewDefaultFactory(opts ...Option) *DefaultFactory {
	f := &DefaultFactory{
		adapter:   DefaultAdapter,
		host:      DefaultHost,
		processes: procstart.NewDefaultFactory(),
		logger:    slog.Default(),
		listen:    net.Listen,

		checkAdapter: runAdapterCheck,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.spawner == nil {
		f.spawner = procstart.NewExecSpawner(procstart.WithSpawnerLogger(f.logger))
	}
	return f
}

// CreateDebugTargetInfo implements Factory
func (f *DefaultFactory) CreateDebugTargetInfo(ctx context.Context, config *launchconfig.Configuration) (Target, error) {
	if config == nil {
		return nil, launcherr.InvalidArgument("config", "configuration is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := f.processes.ResolveInterpreter(config.InterpreterPath)
	if err != nil {
		return nil, err
	}
	if config.ScriptName == "" {
		return nil, launcherr.InvalidConfiguration("script", "script name is required")
	}

	dir := procstart.WorkingDir(config)
	env := f.processes.Environment(config)

	if f.checkAdapter != nil {
		check := &procstart.StartInfo{
			Path: path,
			Args: append(append([]string(nil), config.InterpreterArguments...), "-c", adapterCheckScript, f.adapter),
			Dir:  dir,
			Env:  env,
		}
		if err := f.checkAdapter(ctx, check); err != nil {
			return nil, launcherr.DebuggerUnavailable(f.adapter, err)
		}
	}

	// Hold the port until just before the adapter binds it
	ln, err := f.listen("tcp", net.JoinHostPort(f.host, "0"))
	if err != nil {
		return nil, launcherr.PortReservationFailed(f.host, err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	address := net.JoinHostPort(f.host, strconv.Itoa(port))

	var logDir string
	if f.adapterLog {
		logDir, err = os.MkdirTemp(f.tempDir, "pylaunch-debug-*")
		if err != nil {
			_ = ln.Close()
			return nil, launcherr.DebugLaunchFailed(config.ScriptName, err).
				WithContext("stage", "log_dir")
		}
	}

	wait := config.BoolOption(launchconfig.OptionWaitForClient, f.waitForClient)

	args := make([]string, 0, len(config.InterpreterArguments)+len(config.ScriptArguments)+8)
	args = append(args, config.InterpreterArguments...)
	args = append(args, "-m", f.adapter, "--listen", address)
	if wait {
		args = append(args, "--wait-for-client")
	}
	if logDir != "" {
		args = append(args, "--log-to", logDir)
	}
	args = append(args, config.ScriptName)
	args = append(args, config.ScriptArguments...)

	info := &procstart.StartInfo{
		Path: path,
		Args: args,
		Dir:  dir,
		Env:  env,
	}

	f.logger.Debug("debug target prepared",
		"script", config.ScriptName,
		"address", address,
		"wait_for_client", wait,
		"log_dir", logDir)

	return &TargetInfo{
		info:       info,
		script:     config.ScriptName,
		address:    address,
		listener:   ln,
		logDir:     logDir,
		spawner:    f.spawner,
		supervisor: f.supervisor,
		logger:     f.logger,
	}, nil
}

// runAdapterCheck runs the import check and reports its output on failure
func runAdapterCheck(ctx context.Context, info *procstart.StartInfo) error {
	ctx, cancel := context.WithTimeout(ctx, adapterCheckTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, info.Path, info.Args...)
	cmd.Dir = info.Dir
	cmd.Env = info.Env

	out, err := cmd.CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}

var _ Factory = (*DefaultFactory)(nil)
