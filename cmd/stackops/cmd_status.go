package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stackops/stackops/internal/engine"
	"github.com/stackops/stackops/internal/ui"
)

var statusShowLog bool

func init() {
	statusCmd.Flags().BoolVar(&statusShowLog, "log", false, "print the log tail after the summary")
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current job and last backup time",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := apiClient(ctx)
		if err != nil {
			return err
		}
		st, err := c.Status(ctx)
		if err != nil {
			return err
		}

		fmt.Println(ui.Cyan.Render("State:       ") + ui.JobState(st.Running, st.Action.Describe()))
		if st.RunID != "" {
			fmt.Println(ui.Field("  Run:       ", st.RunID))
		}
		if st.StartedAt != nil {
			fmt.Println(ui.Field("  Started:   ", ui.Ago(*st.StartedAt, time.Now())))
		}
		fmt.Println(ui.Cyan.Render("Last backup: ") + lastBackupText(st))

		if statusShowLog && st.Log != "" {
			fmt.Println()
			fmt.Print(st.Log)
		}
		return nil
	},
}

func lastBackupText(st engine.Status) string {
	if st.LastBackup == nil {
		return ui.Dim.Render("never")
	}
	ts, err := time.Parse(engine.TimestampLayout, *st.LastBackup)
	if err != nil {
		return ui.White.Render(*st.LastBackup)
	}
	return ui.White.Render(*st.LastBackup) + " " + ui.Dim.Render("("+ui.Ago(ts, time.Now())+")")
}
