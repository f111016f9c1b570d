package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jrepp/pylaunch/pkg/watch"
)

var watchInitial bool

var watchCmd = &cobra.Command{
	Use:   "watch <path>",
	Short: "Relaunch a file every time it is saved",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchInitial, "initial", true, "launch once before watching")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
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

	a.serveMetrics()

	w, err := watch.New(args[0], a.launcher,
		watch.WithDebounce(cfg.Watch.Debounce),
		watch.WithInitialLaunch(watchInitial),
		watch.WithTelemetry(a.sink),
		watch.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	uiInstance.Info(fmt.Sprintf("Watching %s (Ctrl+C to stop)", w.File()))
	return w.Run(ctx)
}
