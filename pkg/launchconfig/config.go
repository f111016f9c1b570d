// Package launchconfig holds the resolved description of what to run: the
// interpreter, its arguments, the script and its arguments, the working
// directory and environment.
//
// A Configuration is owned by its creator. Launchers only read it or take a
// Clone before changing anything, so a single held configuration can serve
// concurrent launches as long as nobody mutates it in the meantime.
package launchconfig

import (
	"strconv"
	"strings"

	"github.com/jrepp/pylaunch/pkg/launcherr"
)

// Well-known launch option keys
const (
	// OptionWaitForClient makes a debug launch block the script until a client attaches
	OptionWaitForClient = "debug.wait_for_client"

	// OptionInheritEnvironment controls whether the launcher's environment is passed through
	OptionInheritEnvironment = "env.inherit"
)

// Configuration describes a single run of a script
type Configuration struct {
	// InterpreterPath is the executable used to run the script.
	// A bare name ("python3") is looked up on PATH at launch time.
	InterpreterPath string `yaml:"interpreter"`

	// InterpreterArguments are placed before the script
	InterpreterArguments []string `yaml:"interpreter_args"`

	// ScriptName is the script to run
	ScriptName string `yaml:"script"`

	// ScriptArguments are placed after the script
	ScriptArguments []string `yaml:"script_args"`

	// WorkingDirectory defaults to the script's directory when empty
	WorkingDirectory string `yaml:"working_dir"`

	// Environment overrides on top of the inherited environment
	Environment map[string]string `yaml:"env"`

	// SearchPaths are prepended to PYTHONPATH
	SearchPaths []string `yaml:"search_paths"`

	// LaunchOptions are free-form launcher options
	LaunchOptions map[string]string `yaml:"options"`

	// Internal: absolute path of the file this configuration was loaded from
	sourcePath string `yaml:"-"`
}

// Clone returns a deep copy. Changing the copy never affects c.
func (c *Configuration) Clone() *Configuration {
	if c == nil {
		return nil
	}

	clone := *c
	clone.InterpreterArguments = cloneSlice(c.InterpreterArguments)
	clone.ScriptArguments = cloneSlice(c.ScriptArguments)
	clone.SearchPaths = cloneSlice(c.SearchPaths)
	clone.Environment = cloneMap(c.Environment)
	clone.LaunchOptions = cloneMap(c.LaunchOptions)
	return &clone
}

// SourcePath returns the file this configuration was loaded from, if any
func (c *Configuration) SourcePath() string {
	return c.sourcePath
}

// Option returns a launch option
func (c *Configuration) Option(key string) (string, bool) {
	if c.LaunchOptions == nil {
		return "", false
	}
	v, ok := c.LaunchOptions[key]
	return v, ok
}

// BoolOption returns a launch option parsed as a bool, or def when unset or unparsable
func (c *Configuration) BoolOption(key string, def bool) bool {
	v, ok := c.Option(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

// SetOption sets a launch option
func (c *Configuration) SetOption(key, value string) {
	if c.LaunchOptions == nil {
		c.LaunchOptions = make(map[string]string)
	}
	c.LaunchOptions[key] = value
}

// Validate checks the fields every launch needs
func (c *Configuration) Validate() error {
	if strings.TrimSpace(c.InterpreterPath) == "" {
		return launcherr.InvalidConfiguration("interpreter", "interpreter is required")
	}
	if strings.TrimSpace(c.ScriptName) == "" {
		return launcherr.InvalidConfiguration("script", "script is required")
	}
	for k := range c.Environment {
		if k == "" || strings.ContainsAny(k, "=\x00") {
			return launcherr.InvalidConfiguration("env", "invalid variable name "+strconv.Quote(k))
		}
	}
	return nil
}

func cloneSlice(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
