package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrepp/pylaunch/cmd/pylaunch/internal/config"
	"github.com/jrepp/pylaunch/cmd/pylaunch/internal/ui"
	"github.com/jrepp/pylaunch/pkg/launcherr"
	"github.com/jrepp/pylaunch/pkg/telemetry"
)

// childEnv marks a re-executed test binary standing in for the interpreter
const childEnv = "PYLAUNCH_CMD_CHILD"

func TestMain(m *testing.M) {
	if os.Getenv(childEnv) == "1" {
		// Stand-in interpreter: exit quietly without running tests
		os.Exit(0)
	}
	logOutput = io.Discard
	os.Exit(m.Run())
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// syncBuffer is a bytes.Buffer safe for concurrent writers and readers
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return executeContext(t, context.Background(), args...)
}

func executeContext(t *testing.T, ctx context.Context, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut syncBuffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	// Subcommands keep the context of their first run otherwise
	for _, c := range rootCmd.Commands() {
		c.SetContext(ctx)
	}
	err := rootCmd.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

// writeLaunchFile points the interpreter at the test binary, which exits
// immediately when started with childEnv set.
func writeLaunchFile(t *testing.T, dir string) string {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "noop.py"), []byte("pass\n"), 0o644))

	path := filepath.Join(dir, "launch.yaml")
	body := fmt.Sprintf("interpreter: %q\nscript: noop.py\nenv:\n  %s: \"1\"\n", exe, childEnv)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func readHistory(t *testing.T, home string) []telemetry.Record {
	t.Helper()
	store, err := telemetry.OpenStore(filepath.Join(home, ".pylaunch", "history.db"))
	require.NoError(t, err)
	defer store.Close()

	records, err := store.Recent(context.Background(), 100)
	require.NoError(t, err)
	return records
}

func countEvents(records []telemetry.Record, event, data string) int {
	n := 0
	for _, rec := range records {
		if rec.Event == event && (data == "" || rec.Data == data) {
			n++
		}
	}
	return n
}

func TestProjectCommand_RecordsHistory(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	launchPath := writeLaunchFile(t, t.TempDir())

	out, _, err := execute(t, "project", "--launch", launchPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Launched project")
	assert.Contains(t, out, "OK")

	records := readHistory(t, home)
	require.Len(t, records, 1)
	assert.Equal(t, "Launch", records[0].Event)
	assert.Equal(t, "0", records[0].Data)
}

func TestProjectCommand_Debug(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	launchPath := writeLaunchFile(t, t.TempDir())
	t.Cleanup(func() { projectDebug = false })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	out, _, err := executeContext(t, ctx, "project", "--debug", "--launch", launchPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Debugging project")
	assert.Contains(t, out, "Session")
	assert.Contains(t, out, "Debug session finished")

	records := readHistory(t, home)
	require.Len(t, records, 1)
	assert.Equal(t, "1", records[0].Data)
}

func TestFileCommand(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := t.TempDir()
	launchPath := writeLaunchFile(t, dir)

	out, _, err := execute(t, "file", "--launch", launchPath, filepath.Join(dir, "noop.py"))
	require.NoError(t, err)
	assert.Contains(t, out, "Launched noop.py")

	_, _, err = execute(t, "file", "--launch", launchPath, filepath.Join(dir, "absent.py"))
	assert.True(t, launcherr.IsCode(err, launcherr.CodeScriptNotFound))

	records := readHistory(t, home)
	assert.Equal(t, 1, countEvents(records, "Launch", "0"), "A missing file is rejected before launching")
}

func TestWatchCommand(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("PYLAUNCH_WATCH_DEBOUNCE", "50ms")
	dir := t.TempDir()
	launchPath := writeLaunchFile(t, dir)
	script := filepath.Join(dir, "noop.py")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	// Keep saving the script until the watch ends
	go func() {
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = os.WriteFile(script, []byte("print('saved')\n"), 0o644)
			}
		}
	}()

	out, _, err := executeContext(t, ctx, "watch", "--launch", launchPath, script)
	require.NoError(t, err)
	assert.Contains(t, out, "Watching")

	records := readHistory(t, home)
	assert.GreaterOrEqual(t, countEvents(records, "WatchRelaunch", script), 1)
	assert.GreaterOrEqual(t, countEvents(records, "Launch", "0"), 2, "Initial launch plus at least one relaunch")
}

func TestProjectCommand_MissingLaunchFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, _, err := execute(t, "project", "--launch", filepath.Join(t.TempDir(), "launch.yaml"))
	assert.True(t, launcherr.IsCode(err, launcherr.CodeConfigNotFound))
}

func TestHistoryCommand(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	store, err := telemetry.OpenStore(filepath.Join(home, ".pylaunch", "history.db"))
	require.NoError(t, err)
	store.LogEvent(telemetry.EventLaunch, telemetry.LaunchDebug)
	store.LogEvent(telemetry.EventWatchRelaunch, "/srv/app/main.py")
	require.NoError(t, store.Close())

	out, _, err := execute(t, "history", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "Recent launches")
	assert.Contains(t, out, "debug")
	assert.Contains(t, out, "/srv/app/main.py")
}

func TestHistoryCommand_Empty(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	out, _, err := execute(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No launches recorded yet")
}

func TestNewApp_Wiring(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		LaunchFile: writeLaunchFile(t, dir),
		Telemetry:  config.TelemetryConfig{Enabled: true, DBPath: filepath.Join(dir, "h.db")},
		Debugger:   config.DebuggerConfig{Adapter: "debugpy", Host: "127.0.0.1", GracePeriod: time.Second},
	}

	a, err := newApp(cfg, testLogger())
	require.NoError(t, err)
	assert.NotNil(t, a.launcher)
	assert.NotNil(t, a.store)
	assert.Equal(t, filepath.Join(dir, "noop.py"), a.launcher.Config().ScriptName)
	assert.Empty(t, a.tracker.IDs())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.waitForSessions(ctx), "No sessions means nothing to wait for")
	require.NoError(t, a.Close(ctx))
	assert.FileExists(t, cfg.Telemetry.DBPath)
}

func TestNewApp_HistoryUnavailable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	cfg := &config.Config{
		LaunchFile: writeLaunchFile(t, dir),
		Telemetry:  config.TelemetryConfig{Enabled: true, DBPath: filepath.Join(blocker, "sub", "h.db")},
	}

	a, err := newApp(cfg, testLogger())
	require.NoError(t, err, "Launching works without history")
	assert.Nil(t, a.store)
	require.NoError(t, a.Close(context.Background()))
}

func TestReportError(t *testing.T) {
	var out, errOut bytes.Buffer
	uiInstance = ui.New(&out, &errOut)
	defer func() { uiInstance = nil }()

	reportError(launcherr.InterpreterNotFound("python9", errors.New("not in PATH")))
	assert.Contains(t, errOut.String(), "INTERPRETER_NOT_FOUND")
	assert.Contains(t, errOut.String(), "not in PATH")

	errOut.Reset()
	reportError(errors.New("plain failure"))
	assert.Contains(t, errOut.String(), "plain failure")
	assert.Empty(t, out.String())
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "debug", describe(telemetry.Record{Event: "Launch", Data: "1"}))
	assert.Equal(t, "run", describe(telemetry.Record{Event: "Launch", Data: "0"}))
	assert.Equal(t, "/a.py", describe(telemetry.Record{Event: "WatchRelaunch", Data: "/a.py"}))
}
