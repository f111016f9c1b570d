package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jrepp/pylaunch/pkg/launcher"
)

var projectDebug bool

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Launch the script named in the launch file",
	Long: `Launch the script configured in launch.yaml with its interpreter,
arguments and environment. With --debug the script runs under the debug
adapter and pylaunch waits until it exits.`,
	Args: cobra.NoArgs,
	RunE: runProject,
}

func init() {
	projectCmd.Flags().BoolVarP(&projectDebug, "debug", "d", false, "run under the debugger")
	rootCmd.AddCommand(projectCmd)
}

func runProject(cmd *cobra.Command, args []string) error {
	return runLaunch(cmd.Context(), projectDebug, "project", func(ctx context.Context, l *launcher.Launcher) (launcher.StatusCode, error) {
		return l.LaunchProject(ctx, projectDebug)
	})
}
