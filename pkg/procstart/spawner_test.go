package procstart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrepp/pylaunch/pkg/launcherr"
)

const helperEnv = "PYLAUNCH_HELPER_PROCESS"

// TestHelperProcess is re-executed as the child in spawner tests
func TestHelperProcess(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		return
	}

	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) < 2 {
		os.Exit(2)
	}

	switch args[1] {
	case "exit":
		code, _ := strconv.Atoi(args[2])
		os.Exit(code)
	case "echo":
		fmt.Fprint(os.Stdout, args[2])
		os.Exit(0)
	case "sleep":
		time.Sleep(time.Minute)
		os.Exit(0)
	}
	os.Exit(2)
}

func helperInfo(args ...string) *StartInfo {
	return &StartInfo{
		Path: os.Args[0],
		Args: append([]string{"-test.run=TestHelperProcess", "--"}, args...),
		Env:  append(os.Environ(), helperEnv+"=1"),
	}
}

func TestExecSpawner_StartAndWait(t *testing.T) {
	var stdout bytes.Buffer
	s := NewExecSpawner(WithStdio(nil, &stdout, nil))

	p, err := s.StartProcess(context.Background(), helperInfo("echo", "hello"))
	require.NoError(t, err)
	assert.Greater(t, p.PID(), 0)

	require.NoError(t, p.Wait())
	assert.Equal(t, "hello", stdout.String())

	select {
	case <-p.Exited():
	default:
		t.Fatal("exited channel should be closed after Wait")
	}

	assert.NoError(t, p.Release(), "Release after Wait is a no-op")
	assert.NoError(t, p.Kill(), "Killing an exited process is not an error")
}

func TestExecSpawner_ExitCode(t *testing.T) {
	s := NewExecSpawner(WithStdio(nil, nil, nil))

	p, err := s.StartProcess(context.Background(), helperInfo("exit", "3"))
	require.NoError(t, err)

	err = p.Wait()
	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.ExitCode())

	assert.Equal(t, err, p.Wait(), "Wait can be called again")
}

func TestExecSpawner_StartReleases(t *testing.T) {
	s := NewExecSpawner(WithStdio(nil, nil, nil))

	h, err := s.Start(context.Background(), helperInfo("exit", "0"))
	require.NoError(t, err)
	assert.Greater(t, h.PID(), 0)
	assert.NoError(t, h.Release())
	assert.NoError(t, h.Release(), "Release is idempotent")
}

func TestExecSpawner_ReleaseReapsChildren(t *testing.T) {
	if _, err := os.Stat("/proc/self/stat"); err != nil {
		t.Skip("requires /proc")
	}
	s := NewExecSpawner(WithStdio(nil, nil, nil))

	var pids []int
	for i := 0; i < 5; i++ {
		h, err := s.Start(context.Background(), helperInfo("exit", "0"))
		require.NoError(t, err)
		pids = append(pids, h.PID())
		require.NoError(t, h.Release())
	}

	self := os.Getpid()
	require.Eventually(t, func() bool {
		for _, pid := range pids {
			if _, ppid, ok := procStat(pid); ok && ppid == self {
				return false
			}
		}
		return true
	}, 10*time.Second, 20*time.Millisecond, "Released children should be reaped, not left as zombies")
}

func TestExecSpawner_Kill(t *testing.T) {
	s := NewExecSpawner(WithStdio(nil, nil, nil))

	p, err := s.StartProcess(context.Background(), helperInfo("sleep"))
	require.NoError(t, err)

	require.NoError(t, p.Kill())

	select {
	case <-waitAsync(p):
	case <-time.After(10 * time.Second):
		t.Fatal("killed process did not exit")
	}
}

func TestExecSpawner_StartFailure(t *testing.T) {
	s := NewExecSpawner(WithStdio(nil, nil, nil))

	_, err := s.Start(context.Background(), &StartInfo{Path: "/nonexistent/python"})
	require.Error(t, err)
	assert.True(t, launcherr.IsCode(err, launcherr.CodeProcessStartFailed))

	_, err = s.Start(context.Background(), nil)
	assert.True(t, launcherr.IsCode(err, launcherr.CodeInvalidArgument))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Start(ctx, helperInfo("exit", "0"))
	assert.ErrorIs(t, err, context.Canceled)
}

func waitAsync(p Process) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		_ = p.Wait()
		close(done)
	}()
	return done
}

// procStat returns the state and parent pid of pid from /proc
func procStat(pid int) (string, int, bool) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return "", 0, false
	}
	// The command name may contain spaces; the fields follow its closing paren
	s := string(data)
	i := strings.LastIndexByte(s, ')')
	if i < 0 {
		return "", 0, false
	}
	fields := strings.Fields(s[i+1:])
	if len(fields) < 2 {
		return "", 0, false
	}
	ppid, err := strconv.Atoi(fields[1])
	if err != nil {
		return "", 0, false
	}
	return fields[0], ppid, true
}
