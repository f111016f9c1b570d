// Package launcher starts a Python project or a single file, optionally under
// a debugger.
//
// A Launcher holds one run configuration and two collaborators: a process
// start info factory for plain launches and a debug target factory for debug
// launches. Every launch logs exactly one telemetry.EventLaunch event whose
// data is 0 for a plain launch and 1 for a debug launch.
//
// # Quick Start
//
//	config, err := launchconfig.Load("launch.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	l := launcher.New(config,
//	    launcher.WithTelemetry(telemetry.NewSlogLogger(slog.Default())),
//	)
//
//	// Run the configured script
//	status, err := l.LaunchProject(ctx, false)
//
//	// Debug another file with the same interpreter and environment
//	status, err = l.LaunchFile(ctx, "tools/migrate.py", true)
//
// # Plain launches
//
// The process is started detached and its handle is released immediately.
// The launcher does not wait for it or collect its exit status.
//
// # Debug launches
//
// The debug target is created, launched, and closed before the call returns,
// including when Launch fails or panics. A target built by
// debugtarget.DefaultFactory with a supervisor hands the running debuggee to
// a sessions.Manager, which owns it from then on.
//
// # Errors
//
// Collaborator errors are returned unchanged together with StatusFailed, so
// callers can match them with errors.Is and launcherr.IsCode. The only error
// created here is INVALID_ARGUMENT for an empty file path.
package launcher
