// Package cmd provides the CLI commands for pylaunch
package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jrepp/pylaunch/cmd/pylaunch/internal/config"
	"github.com/jrepp/pylaunch/cmd/pylaunch/internal/ui"
	"github.com/jrepp/pylaunch/pkg/launcherr"
)

var (
	cfg        *config.Config
	uiInstance *ui.UI
	logger     *slog.Logger

	configFile  string
	launchFile  string
	metricsAddr string
	verbose     bool

	// logOutput receives structured logs; tests swap it out
	logOutput io.Writer = os.Stderr
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "pylaunch",
	Short: "Launch Python projects and files, with or without a debugger",
	Long: `pylaunch starts the script described by a launch.yaml file, or any other
file with the same interpreter and environment. Debug launches run the script
under a debug adapter (debugpy by default) and stay in the foreground until
the debuggee exits.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		uiInstance = ui.New(cmd.OutOrStdout(), cmd.ErrOrStderr())

		logLevel := slog.LevelInfo
		if verbose {
			logLevel = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(logOutput, &slog.HandlerOptions{
			Level: logLevel,
		}))
		slog.SetDefault(logger)

		var err error
		cfg, err = config.Load(configFile, func(v *viper.Viper) error {
			if err := v.BindPFlag("launch_file", cmd.Flags().Lookup("launch")); err != nil {
				return err
			}
			return v.BindPFlag("metrics.addr", cmd.Flags().Lookup("metrics-addr"))
		})
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		return nil
	},
}

// Execute runs the root command and returns the process exit code
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		reportError(err)
		return 1
	}
	return 0
}

func init() {
	rootCmd.Version = "0.1.0"

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "settings file (default $HOME/.pylaunch/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&launchFile, "launch", "l", "launch.yaml", "launch definition file")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// reportError prints err, with the suggestion when it carries one
func reportError(err error) {
	out := uiInstance
	if out == nil {
		out = ui.NewUI()
	}

	var le *launcherr.Error
	if errors.As(err, &le) {
		out.Error(fmt.Sprintf("%s (%s)", le.Message, le.Code))
		if le.Cause != nil {
			out.Hint(le.Cause.Error())
		}
		if le.Suggestion != "" {
			out.Hint(le.Suggestion)
		}
		return
	}
	out.Error(err.Error())
}
