package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/stackops/stackops/internal/client"
	"github.com/stackops/stackops/internal/ui"
)

var (
	backupDryRun  bool
	backupFollow  bool
	restoreDryRun bool
	restoreYes    bool
	restoreFollow bool
	fstabFollow   bool
)

func init() {
	backupCmd.Flags().BoolVar(&backupDryRun, "dry-run", false, "report what would be copied without copying")
	backupCmd.Flags().BoolVarP(&backupFollow, "follow", "f", false, "stream the job log until it finishes")
	restoreCmd.Flags().BoolVar(&restoreDryRun, "dry-run", false, "report what would be restored without touching containers or files")
	restoreCmd.Flags().BoolVarP(&restoreYes, "yes", "y", false, "skip the confirmation prompt")
	restoreCmd.Flags().BoolVarP(&restoreFollow, "follow", "f", false, "stream the job log until it finishes")
	fstabCmd.Flags().BoolVarP(&fstabFollow, "follow", "f", false, "stream the job log until it finishes")
	rootCmd.AddCommand(backupCmd, restoreCmd, fstabCmd, clearLogCmd)
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Mirror the live stacks to the backup destination",
	RunE: func(cmd *cobra.Command, args []string) error {
		return submitJob(cmd.Context(), backupFollow, func(ctx context.Context, c *client.Client) (bool, error) {
			return c.Backup(ctx, backupDryRun)
		})
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Stop containers, restore files from the backup and start every stack",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !restoreDryRun && !restoreYes {
			if err := confirmRestore(); err != nil {
				return err
			}
		}
		return submitJob(cmd.Context(), restoreFollow, func(ctx context.Context, c *client.Client) (bool, error) {
			return c.Restore(ctx, restoreDryRun)
		})
	},
}

var fstabCmd = &cobra.Command{
	Use:     "fstab",
	Aliases: []string{"setup-fstab"},
	Short:   "Merge the NFS mount template into the host fstab and mount it",
	RunE: func(cmd *cobra.Command, args []string) error {
		return submitJob(cmd.Context(), fstabFollow, func(ctx context.Context, c *client.Client) (bool, error) {
			return c.SetupFstab(ctx)
		})
	},
}

var clearLogCmd = &cobra.Command{
	Use:   "clear-log",
	Short: "Empty the job log and forget the last backup time",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := apiClient(ctx)
		if err != nil {
			return err
		}
		if err := c.ClearLog(ctx); err != nil {
			return err
		}
		fmt.Println(ui.Green.Render("Log cleared."))
		return nil
	},
}

func confirmRestore() error {
	var typed string
	fmt.Println(ui.Red.Render("Restore stops every container except this service and overwrites the live stacks."))
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Type RESTORE to continue").
			Value(&typed).
			Validate(func(s string) error {
				if s != "RESTORE" {
					return fmt.Errorf("type RESTORE to confirm")
				}
				return nil
			}),
	)).WithTheme(huh.ThemeCatppuccin())
	err := form.Run()
	if err != nil {
		return fmt.Errorf("restore cancelled: %w", err)
	}
	return nil
}

func submitJob(ctx context.Context, follow bool, submit func(context.Context, *client.Client) (bool, error)) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := apiClient(ctx)
	if err != nil {
		return err
	}

	// Subscribe before submitting so the started marker is not missed.
	var streamDone chan error
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if follow {
		streamDone = make(chan error, 1)
		go func() {
			streamDone <- c.Follow(ctx, func(line string) { fmt.Println(line) })
		}()
		// Give the stream a moment to attach.
		time.Sleep(200 * time.Millisecond)
	}

	accepted, err := submit(ctx, c)
	if err != nil {
		return err
	}
	if !accepted {
		st, _ := c.Status(ctx)
		fmt.Println(ui.Yellow.Render("Not started: ") + ui.White.Render(st.Action.Describe()))
		return nil
	}
	if !follow {
		fmt.Println(ui.Green.Render("Started.") + ui.Dim.Render(" Run 'stackops status' to check progress."))
		return nil
	}

	if err := waitIdle(ctx, c); err != nil {
		return err
	}
	cancel()
	<-streamDone
	return nil
}

// waitIdle polls status until no job is running.
func waitIdle(ctx context.Context, c *client.Client) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			st, err := c.Status(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			if !st.Running {
				return nil
			}
		}
	}
}
