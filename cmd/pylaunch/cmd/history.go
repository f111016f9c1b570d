package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jrepp/pylaunch/pkg/telemetry"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent launches",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of events to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	if !cfg.Telemetry.Enabled {
		uiInstance.Warning("Launch history is disabled (telemetry.enabled=false)")
		return nil
	}

	store, err := telemetry.OpenStore(cfg.Telemetry.DBPath, telemetry.WithStoreLogger(logger))
	if err != nil {
		return fmt.Errorf("open launch history: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	records, err := store.Recent(ctx, historyLimit)
	if err != nil {
		return fmt.Errorf("read launch history: %w", err)
	}

	if len(records) == 0 {
		uiInstance.Info("No launches recorded yet")
		return nil
	}

	uiInstance.Header("Recent launches")
	table := uiInstance.NewTable("TIME", "EVENT", "DETAIL")
	for _, rec := range records {
		table.AddRow(rec.Timestamp.Local().Format(time.DateTime), rec.Event, describe(rec))
	}
	table.Render()

	return nil
}

// describe turns stored event data into something readable
func describe(rec telemetry.Record) string {
	if rec.Event != telemetry.EventLaunch.String() {
		return rec.Data
	}
	switch rec.Data {
	case fmt.Sprint(telemetry.LaunchDebug):
		return "debug"
	case fmt.Sprint(telemetry.LaunchNoDebug):
		return "run"
	default:
		return rec.Data
	}
}
