package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stackops/stackops/internal/ui"
	"github.com/stackops/stackops/internal/version"
)

var rootCmd = &cobra.Command{
	Use:           "stackops",
	Short:         "Backup and restore for Docker Compose stacks",
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Long = ui.Green.Render("stackops") + " " + ui.Cyan.Render(version.Version) + "\n" +
		ui.Dim.Render("Mirrors a host's compose stacks to a NAS, restores them in dependency order, and manages the host's NFS mounts.")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.Red.Render("error:")+" "+err.Error())
		os.Exit(1)
	}
}
