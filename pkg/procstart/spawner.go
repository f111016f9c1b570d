package procstart

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/jrepp/pylaunch/pkg/launcherr"
)

// Handle refers to a started process
type Handle interface {
	PID() int
	// Release gives up the handle without blocking on the process.
	// The exit status is still collected in the background.
	Release() error
}

// Process is a Handle that can also be signalled and waited on
type Process interface {
	Handle
	Signal(sig os.Signal) error
	Kill() error
	// Wait blocks until the process exits. Safe to call more than once.
	Wait() error
	// Exited is closed once Wait has observed the exit
	Exited() <-chan struct{}
}

// Spawner starts processes
type Spawner interface {
	Start(ctx context.Context, info *StartInfo) (Handle, error)
}

// ExecSpawner starts processes with os/exec, detached from the launcher's
// session so they survive it.
type ExecSpawner struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
}

// SpawnerOption configures an ExecSpawner
type SpawnerOption func(*ExecSpawner)

// WithStdio sets the child's standard streams. Nil streams go to the null device.
func WithStdio(stdin io.Reader, stdout, stderr io.Writer) SpawnerOption {
	return func(s *ExecSpawner) {
		s.stdin = stdin
		s.stdout = stdout
		s.stderr = stderr
	}
}

// WithSpawnerLogger sets the logger
func WithSpawnerLogger(logger *slog.Logger) SpawnerOption {
	return func(s *ExecSpawner) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewExecSpawner creates a spawner that inherits the launcher's stdio by default
func NewExecSpawner(opts ...SpawnerOption) *ExecSpawner {
	s := &ExecSpawner{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start implements Spawner
func (s *ExecSpawner) Start(ctx context.Context, info *StartInfo) (Handle, error) {
	return s.StartProcess(ctx, info)
}

// StartProcess starts the process and returns a full Process.
// The context only gates the start; the child is not killed when it ends.
func (s *ExecSpawner) StartProcess(ctx context.Context, info *StartInfo) (Process, error) {
	if info == nil {
		return nil, launcherr.InvalidArgument("info", "start info is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := info.Command()
	cmd.Stdin = s.stdin
	cmd.Stdout = s.stdout
	cmd.Stderr = s.stderr
	setProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return nil, launcherr.ProcessStartFailed(info.Path, err)
	}

	s.logger.Info("process started",
		"pid", cmd.Process.Pid,
		"command", info.CommandLine(),
		"dir", info.Dir)

	return newProcess(cmd), nil
}

type process struct {
	cmd *exec.Cmd

	waitOnce sync.Once
	waitErr  error
	exited   chan struct{}

	mu       sync.Mutex
	released bool
}

func newProcess(cmd *exec.Cmd) *process {
	return &process{cmd: cmd, exited: make(chan struct{})}
}

func (p *process) PID() int {
	return p.cmd.Process.Pid
}

func (p *process) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released {
		return nil
	}
	p.released = true

	// Reap in the background; an unwaited child lingers as a zombie
	go func() { _ = p.Wait() }()
	return nil
}

func (p *process) Signal(sig os.Signal) error {
	err := p.cmd.Process.Signal(sig)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (p *process) Kill() error {
	err := p.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (p *process) Wait() error {
	p.waitOnce.Do(func() {
		p.waitErr = p.cmd.Wait()
		close(p.exited)
	})
	<-p.exited
	return p.waitErr
}

func (p *process) Exited() <-chan struct{} {
	return p.exited
}

var (
	_ Spawner = (*ExecSpawner)(nil)
	_ Process = (*process)(nil)
)
