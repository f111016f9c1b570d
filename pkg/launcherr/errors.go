// Package launcherr defines the structured error type shared by the launch
// collaborators. Errors carry a code, free-form context and an actionable
// suggestion so the CLI can print something more useful than "exit status 1".
package launcherr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error represents a launch failure with additional context for troubleshooting.
type Error struct {
	// Code identifies the error type
	Code Code

	// Message is the primary error message
	Message string

	// Context provides additional details
	Context map[string]interface{}

	// Cause is the underlying error (if any)
	Cause error

	// Suggestion provides actionable guidance for resolving the error
	Suggestion string
}

// Code identifies categories of errors
type Code string

const (
	// Configuration errors
	CodeInvalidConfiguration Code = "INVALID_CONFIGURATION"
	CodeInvalidArgument      Code = "INVALID_ARGUMENT"
	CodeConfigNotFound       Code = "CONFIG_NOT_FOUND"

	// Resolution errors
	CodeInterpreterNotFound Code = "INTERPRETER_NOT_FOUND"
	CodeScriptNotFound      Code = "SCRIPT_NOT_FOUND"

	// Process lifecycle errors
	CodeProcessStartFailed Code = "PROCESS_START_FAILED"
	CodeTerminationFailed  Code = "TERMINATION_FAILED"

	// Debugger errors
	CodeDebuggerUnavailable Code = "DEBUGGER_UNAVAILABLE"
	CodeDebugLaunchFailed   Code = "DEBUG_LAUNCH_FAILED"

	// Resource errors
	CodePortReservationFailed Code = "PORT_RESERVATION_FAILED"
)

// Error implements the error interface
func (e *Error) Error() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[%s] %s", e.Code, e.Message))

	// Context keys are sorted so messages are stable across runs
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		contextParts := make([]string, 0, len(keys))
		for _, k := range keys {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, fmt.Sprintf("Context: %s", strings.Join(contextParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause: %v", e.Cause))
	}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("Suggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, "; ")
}

// Unwrap returns the underlying error for errors.Is/As compatibility
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and message
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context information to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithCause adds the underlying cause to the error
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithSuggestion adds an actionable suggestion to the error
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// Common error constructors with helpful suggestions

// InvalidConfiguration creates an error for a launch configuration that is missing required fields
func InvalidConfiguration(field, reason string) *Error {
	return New(CodeInvalidConfiguration,
		fmt.Sprintf("Launch configuration field '%s' is invalid: %s", field, reason)).
		WithContext("field", field).
		WithSuggestion("Check launch.yaml; required keys are:\n" +
			"  - interpreter\n" +
			"  - script")
}

// InvalidArgument creates an error for a bad caller-supplied argument
func InvalidArgument(name, reason string) *Error {
	return New(CodeInvalidArgument,
		fmt.Sprintf("Argument '%s' is invalid: %s", name, reason)).
		WithContext("argument", name)
}

// ConfigNotFound creates an error for a missing launch file
func ConfigNotFound(path string, cause error) *Error {
	return New(CodeConfigNotFound,
		fmt.Sprintf("Launch file '%s' not found", path)).
		WithContext("path", path).
		WithCause(cause).
		WithSuggestion("Create a launch.yaml or point --launch at an existing file")
}

// InterpreterNotFound creates an error for an interpreter that cannot be resolved
func InterpreterNotFound(path string, cause error) *Error {
	return New(CodeInterpreterNotFound,
		fmt.Sprintf("Interpreter '%s' not found", path)).
		WithContext("interpreter", path).
		WithCause(cause).
		WithSuggestion(fmt.Sprintf(
			"Verify the interpreter exists and is executable: command -v %s", path))
}

// ScriptNotFound creates an error for a script that does not exist on disk
func ScriptNotFound(path string, cause error) *Error {
	return New(CodeScriptNotFound,
		fmt.Sprintf("Script '%s' not found", path)).
		WithContext("script", path).
		WithCause(cause).
		WithSuggestion("Paths in launch.yaml are resolved relative to the file itself")
}

// ProcessStartFailed creates an error for a process that failed to start
func ProcessStartFailed(path string, cause error) *Error {
	return New(CodeProcessStartFailed,
		fmt.Sprintf("Failed to start '%s'", path)).
		WithContext("path", path).
		WithCause(cause).
		WithSuggestion("Check file permissions and the working directory")
}

// TerminationFailed creates an error for a session that could not be stopped
func TerminationFailed(sessionID string, cause error) *Error {
	return New(CodeTerminationFailed,
		fmt.Sprintf("Session '%s' did not stop", sessionID)).
		WithContext("session_id", sessionID).
		WithCause(cause).
		WithSuggestion(fmt.Sprintf("Inspect leftover processes: ps -o pid,pgid,cmd -g <pgid of %s>", sessionID))
}

// DebuggerUnavailable creates an error for a missing debug adapter
func DebuggerUnavailable(adapter string, cause error) *Error {
	return New(CodeDebuggerUnavailable,
		fmt.Sprintf("Debug adapter '%s' is not available", adapter)).
		WithContext("adapter", adapter).
		WithCause(cause).
		WithSuggestion(fmt.Sprintf("Install it into the interpreter: python -m pip install %s", adapter))
}

// DebugLaunchFailed creates an error for a debug target that could not be launched
func DebugLaunchFailed(script string, cause error) *Error {
	return New(CodeDebugLaunchFailed,
		fmt.Sprintf("Failed to launch '%s' under the debugger", script)).
		WithContext("script", script).
		WithCause(cause)
}

// PortReservationFailed creates an error for a listen port that could not be reserved
func PortReservationFailed(host string, cause error) *Error {
	return New(CodePortReservationFailed,
		fmt.Sprintf("Could not reserve a debug port on %s", host)).
		WithContext("host", host).
		WithCause(cause).
		WithSuggestion("Use a loopback host such as 127.0.0.1")
}
