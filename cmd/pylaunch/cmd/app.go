package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jrepp/pylaunch/cmd/pylaunch/internal/config"
	"github.com/jrepp/pylaunch/pkg/debugtarget"
	"github.com/jrepp/pylaunch/pkg/launchconfig"
	"github.com/jrepp/pylaunch/pkg/launcher"
	"github.com/jrepp/pylaunch/pkg/sessions"
	"github.com/jrepp/pylaunch/pkg/telemetry"
)

const metricsNamespace = "pylaunch"

// app wires the launcher and its collaborators for one command run
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	registry *prometheus.Registry
	store    *telemetry.Store
	sink     telemetry.Logger

	manager  *sessions.Manager
	tracker  *sessionTracker
	launcher *launcher.Launcher

	metricsServer *http.Server
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	sinks := telemetry.Multi{
		telemetry.NewSlogLogger(logger),
		telemetry.NewPrometheusLogger(metricsNamespace, a.registry),
	}
	if cfg.Telemetry.Enabled {
		store, err := telemetry.OpenStore(cfg.Telemetry.DBPath, telemetry.WithStoreLogger(logger))
		if err != nil {
			// History is optional; launching is not
			logger.Warn("launch history disabled", "path", cfg.Telemetry.DBPath, "error", err)
		} else {
			a.store = store
			sinks = append(sinks, store)
		}
	}
	a.sink = sinks

	launchConfig, err := launchconfig.Load(cfg.LaunchFile)
	if err != nil {
		a.closeStore()
		return nil, err
	}

	a.manager = sessions.NewManager(
		sessions.WithSyncer(debugtarget.NewSessionSyncer(logger)),
		sessions.WithGracePeriod(cfg.Debugger.GracePeriod),
		sessions.WithMetricsCollector(sessions.NewPrometheusMetricsCollector(metricsNamespace, a.registry)),
		sessions.WithLogger(logger),
	)
	a.tracker = &sessionTracker{manager: a.manager}

	targets := debugtarget.NewDefaultFactory(
		debugtarget.WithAdapter(cfg.Debugger.Adapter),
		debugtarget.WithHost(cfg.Debugger.Host),
		debugtarget.WithWaitForClient(cfg.Debugger.WaitForClient),
		debugtarget.WithAdapterLog(cfg.Debugger.AdapterLog),
		debugtarget.WithAdapterCheck(cfg.Debugger.CheckAdapter),
		debugtarget.WithSupervisor(a.tracker),
		debugtarget.WithLogger(logger),
	)

	a.launcher, err = launcher.NewBuilder().
		WithConfig(launchConfig).
		WithDebugTargetFactory(targets).
		WithTelemetry(a.sink).
		WithLogger(logger).
		Build()
	if err != nil {
		a.Close(context.Background())
		return nil, err
	}

	return a, nil
}

// serveMetrics starts the /metrics endpoint when an address is configured
func (a *app) serveMetrics() {
	if a.cfg.Metrics.Addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	a.metricsServer = &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("serving metrics", "addr", a.cfg.Metrics.Addr)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "error", err)
		}
	}()
}

// waitForSessions blocks until every debug session launched by this run finishes
func (a *app) waitForSessions(ctx context.Context) error {
	for _, id := range a.tracker.IDs() {
		if err := a.manager.Wait(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Close stops running sessions and flushes the launch history
func (a *app) Close(ctx context.Context) error {
	var errs []error

	if a.manager != nil {
		if err := a.manager.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop debug sessions: %w", err))
		}
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop metrics server: %w", err))
		}
	}
	if err := a.closeStore(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (a *app) closeStore() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	if err != nil {
		return fmt.Errorf("close launch history: %w", err)
	}
	return nil
}

// sessionTracker remembers the sessions created during this run
type sessionTracker struct {
	manager *sessions.Manager

	mu  sync.Mutex
	ids []sessions.SessionID
}

func (t *sessionTracker) Update(u sessions.Update) {
	if u.UpdateType == sessions.UpdateTypeCreate {
		t.mu.Lock()
		t.ids = append(t.ids, u.ID)
		t.mu.Unlock()
	}
	t.manager.Update(u)
}

// IDs returns the tracked session ids
func (t *sessionTracker) IDs() []sessions.SessionID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]sessions.SessionID(nil), t.ids...)
}
