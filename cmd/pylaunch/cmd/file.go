package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jrepp/pylaunch/pkg/launcher"
	"github.com/jrepp/pylaunch/pkg/launcherr"
)

var fileDebug bool

var fileCmd = &cobra.Command{
	Use:   "file <path>",
	Short: "Launch a single file with the project's settings",
	Long: `Launch the given file instead of the configured script, keeping the
interpreter, arguments and environment from launch.yaml.`,
	Args: cobra.ExactArgs(1),
	RunE: runFile,
}

func init() {
	fileCmd.Flags().BoolVarP(&fileDebug, "debug", "d", false, "run under the debugger")
	rootCmd.AddCommand(fileCmd)
}

func runFile(cmd *cobra.Command, args []string) error {
	file := args[0]
	if file != "" {
		abs, err := filepath.Abs(file)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", file, err)
		}
		file = abs

		if _, err := os.Stat(file); err != nil {
			return launcherr.ScriptNotFound(file, err).
				WithSuggestion("Check the path; it is resolved against the current directory")
		}
	}

	return runLaunch(cmd.Context(), fileDebug, filepath.Base(file), func(ctx context.Context, l *launcher.Launcher) (launcher.StatusCode, error) {
		return l.LaunchFile(ctx, file, fileDebug)
	})
}
