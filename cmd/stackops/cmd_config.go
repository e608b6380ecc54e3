package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/stackops/stackops/internal/config"
	"github.com/stackops/stackops/internal/ui"
)

var (
	configPath      string
	configInitForce bool
)

func init() {
	configCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath, "path to config file")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing config file")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetPasswordCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View and modify stackops configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath, true)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		fmt.Println(ui.Cyan.Render("Paths:"))
		fmt.Println(ui.Field("  Source:      ", cfg.Paths.Source))
		fmt.Println(ui.Field("  Destination: ", cfg.Paths.Destination))
		fmt.Println(ui.Field("  Log:         ", fmt.Sprintf("%s (max %d lines)", cfg.Paths.LogFile, cfg.Log.MaxLines)))
		fmt.Println(ui.Field("  Excludes:    ", strings.Join(cfg.Transfer.Excludes, ", ")))
		fmt.Println()
		fmt.Println(ui.Cyan.Render("Stacks:"))
		fmt.Println(ui.Field("  Pattern:     ", cfg.Stacks.Pattern))
		fmt.Println(ui.Field("  Self:        ", fmt.Sprintf("%s (container %s)", cfg.Stacks.Self, cfg.Docker.SelfContainer)))
		fmt.Println(ui.Field("  Network:     ", cfg.Docker.SharedNetwork))
		fmt.Println()
		fmt.Println(ui.Cyan.Render("Fstab:"))
		fmt.Println(ui.Field("  Template:    ", cfg.Fstab.Template))
		fmt.Println(ui.Field("  Target:      ", cfg.Fstab.Target))
		fmt.Println(ui.Field("  Host exec:   ", cfg.Fstab.HostExec))
		fmt.Println()
		fmt.Println(ui.Cyan.Render("Service:"))
		fmt.Println(ui.Field("  Bind:        ", fmt.Sprintf("%s:%d", cfg.Service.BindAddress, cfg.Service.Port)))
		fmt.Println(ui.Field("  Auth:        ", cfg.Auth.Mode))
		fmt.Println(ui.Field("  Metrics:     ", fmt.Sprintf("%v", cfg.Metrics.Enabled)))
		schedule := cfg.Schedule.Backup
		if schedule == "" {
			schedule = "manual only"
		}
		fmt.Println(ui.Field("  Schedule:    ", schedule))
		fmt.Println()
		fmt.Println(ui.Dim.Render("Config file: " + configPath))

		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !configInitForce {
			if _, err := os.Stat(configPath); err == nil {
				return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
			} else if !errors.Is(err, fs.ErrNotExist) {
				return err
			}
		}
		if err := config.Default().Save(configPath); err != nil {
			return err
		}
		fmt.Println(ui.Green.Render("Wrote ") + ui.White.Render(configPath))
		return nil
	},
}

var configSetPasswordCmd = &cobra.Command{
	Use:   "set-password",
	Short: "Require a password for the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath, true)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		var password, confirm string
		form := huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&password).
				Validate(func(s string) error {
					if len(s) < 8 {
						return fmt.Errorf("password must be at least 8 characters")
					}
					return nil
				}),
			huh.NewInput().
				Title("Confirm Password").
				EchoMode(huh.EchoModePassword).
				Value(&confirm).
				Validate(func(s string) error {
					if s != password {
						return fmt.Errorf("passwords do not match")
					}
					return nil
				}),
		)).WithTheme(huh.ThemeCatppuccin())
		if err := form.Run(); err != nil {
			return err
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hashing password: %w", err)
		}
		cfg.Auth.Mode = config.AuthModePassword
		cfg.Auth.PasswordHash = string(hash)
		if err := cfg.Save(configPath); err != nil {
			return err
		}
		fmt.Println(ui.Green.Render("Password set.") + ui.Dim.Render(" Restart the service to apply."))
		return nil
	},
}
