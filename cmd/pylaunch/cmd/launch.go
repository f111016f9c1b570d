package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jrepp/pylaunch/pkg/launcher"
)

// shutdownTimeout bounds how long stopping sessions may take on exit
const shutdownTimeout = 30 * time.Second

type launchFunc func(ctx context.Context, l *launcher.Launcher) (launcher.StatusCode, error)

// runLaunch wires an app, performs one launch and, for debug launches, stays
// in the foreground until the debuggee exits or the user interrupts.
func runLaunch(ctx context.Context, debug bool, what string, launch launchFunc) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.Close(shutdownCtx); err != nil {
			logger.Warn("shutdown incomplete", "error", err)
		}
	}()

	if debug {
		a.serveMetrics()
	}

	status, err := launch(ctx, a.launcher)
	if err != nil {
		return err
	}

	if !debug {
		uiInstance.Success(fmt.Sprintf("Launched %s", what))
		uiInstance.KeyValue("Status", status.String())
		return nil
	}

	uiInstance.Success(fmt.Sprintf("Debugging %s", what))
	for _, id := range a.tracker.IDs() {
		uiInstance.KeyValue("Session", string(id))
	}
	uiInstance.Subtle("Press Ctrl+C to stop the debuggee")

	if err := a.waitForSessions(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			uiInstance.Warning("Interrupted, stopping debug session")
			return nil
		}
		return err
	}

	uiInstance.Info("Debug session finished")
	return nil
}
