// Package procstart turns a launch configuration into an OS process.
//
// Factory builds a StartInfo (resolved interpreter, argv, working directory
// and environment) and Spawner starts it without waiting for it to exit.
package procstart

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jrepp/pylaunch/pkg/launchconfig"
	"github.com/jrepp/pylaunch/pkg/launcherr"
)

// PythonPathVar is the variable search paths are prepended to
const PythonPathVar = "PYTHONPATH"

// StartInfo describes a process to start
type StartInfo struct {
	// Path is the resolved interpreter executable
	Path string
	// Args excludes argv[0]
	Args []string
	Dir  string
	// Env is a complete KEY=VALUE environment, sorted by key
	Env []string
}

// Command builds an unstarted exec.Cmd for the start info
func (si *StartInfo) Command() *exec.Cmd {
	cmd := exec.Command(si.Path, si.Args...)
	cmd.Dir = si.Dir
	cmd.Env = append([]string(nil), si.Env...)
	return cmd
}

// CommandLine renders the command for logs
func (si *StartInfo) CommandLine() string {
	parts := append([]string{si.Path}, si.Args...)
	for i, p := range parts {
		if p == "" || strings.ContainsAny(p, " \t\"'") {
			parts[i] = `"` + strings.ReplaceAll(p, `"`, `\"`) + `"`
		}
	}
	return strings.Join(parts, " ")
}

// Factory creates process start info for a configuration
type Factory interface {
	CreateProcessStartInfo(ctx context.Context, config *launchconfig.Configuration) (*StartInfo, error)
}

// DefaultFactory runs the script directly under the configured interpreter
type DefaultFactory struct {
	inheritEnv bool
	lookPath   func(string) (string, error)
	environ    func() []string
}

// FactoryOption configures a DefaultFactory
type FactoryOption func(*DefaultFactory)

// WithInheritEnvironment controls whether the launcher's own environment is
// passed on. The "env.inherit" launch option overrides it per configuration.
func WithInheritEnvironment(inherit bool) FactoryOption {
	return func(f *DefaultFactory) {
		f.inheritEnv = inherit
	}
}

// WithLookPath replaces exec.LookPath for interpreter resolution
func WithLookPath(fn func(string) (string, error)) FactoryOption {
	return func(f *DefaultFactory) {
		if fn != nil {
			f.lookPath = fn
		}
	}
}

// WithEnviron replaces os.Environ as the inherited environment source
func WithEnviron(fn func() []string) FactoryOption {
	return func(f *DefaultFactory) {
		if fn != nil {
			f.environ = fn
		}
	}
}

// NewDefaultFactory creates a DefaultFactory
func NewDefaultFactory(opts ...FactoryOption) *DefaultFactory {
	f := &DefaultFactory{
		inheritEnv: true,
		lookPath:   exec.LookPath,
		environ:    os.Environ,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateProcessStartInfo implements Factory
func (f *DefaultFactory) CreateProcessStartInfo(ctx context.Context, config *launchconfig.Configuration) (*StartInfo, error) {
	if config == nil {
		return nil, launcherr.InvalidArgument("config", "configuration is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := f.ResolveInterpreter(config.InterpreterPath)
	if err != nil {
		return nil, err
	}
	if config.ScriptName == "" {
		return nil, launcherr.InvalidConfiguration("script", "script name is required")
	}

	args := make([]string, 0, len(config.InterpreterArguments)+1+len(config.ScriptArguments))
	args = append(args, config.InterpreterArguments...)
	args = append(args, config.ScriptName)
	args = append(args, config.ScriptArguments...)

	return &StartInfo{
		Path: path,
		Args: args,
		Dir:  WorkingDir(config),
		Env:  f.Environment(config),
	}, nil
}

// ResolveInterpreter locates the interpreter executable
func (f *DefaultFactory) ResolveInterpreter(interpreter string) (string, error) {
	if interpreter == "" {
		return "", launcherr.InvalidConfiguration("interpreter", "interpreter path is required")
	}
	path, err := f.lookPath(interpreter)
	if err != nil {
		return "", launcherr.InterpreterNotFound(interpreter, err)
	}
	return path, nil
}

// Environment builds the child environment for a configuration
func (f *DefaultFactory) Environment(config *launchconfig.Configuration) []string {
	vars := make(map[string]string)

	if config.BoolOption(launchconfig.OptionInheritEnvironment, f.inheritEnv) {
		for _, kv := range f.environ() {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				continue
			}
			vars[k] = v
		}
	}

	for k, v := range config.Environment {
		vars[k] = v
	}

	if len(config.SearchPaths) > 0 {
		paths := append([]string(nil), config.SearchPaths...)
		if existing := vars[PythonPathVar]; existing != "" {
			paths = append(paths, existing)
		}
		vars[PythonPathVar] = strings.Join(paths, string(os.PathListSeparator))
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+vars[k])
	}
	return env
}

// WorkingDir returns the configured working directory or the script's directory
func WorkingDir(config *launchconfig.Configuration) string {
	if config.WorkingDirectory != "" {
		return config.WorkingDirectory
	}
	if config.ScriptName == "" {
		return ""
	}
	return filepath.Dir(config.ScriptName)
}

var _ Factory = (*DefaultFactory)(nil)
