package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stackops/stackops/internal/config"
	"github.com/stackops/stackops/internal/engine"
	"github.com/stackops/stackops/internal/metrics"
	"github.com/stackops/stackops/internal/runner"
	"github.com/stackops/stackops/internal/schedule"
	"github.com/stackops/stackops/internal/server"
	"github.com/stackops/stackops/internal/ui"
)

var (
	serveConfigPath  string
	serveRequireConf bool
	serveLogLevel    string
	serveLogJSON     bool
)

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", config.DefaultConfigPath, "path to config file")
	serveCmd.Flags().BoolVar(&serveRequireConf, "require-config", false, "fail if the config file does not exist")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	serveCmd.Flags().BoolVar(&serveLogJSON, "log-json", false, "log as JSON instead of console text")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the stackops service",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger(serveLogLevel, serveLogJSON)
		if err != nil {
			return err
		}

		cfg, err := config.Load(serveConfigPath, !serveRequireConf)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		release, err := acquireLock(cfg.Paths.LogFile + ".lock")
		if err != nil {
			return err
		}
		defer release()

		fmt.Println(ui.Green.Render("stackops starting..."))
		fmt.Printf("  source:  %s\n", cfg.Paths.Source)
		fmt.Printf("  backup:  %s\n", cfg.Paths.Destination)
		fmt.Printf("  log:     %s (max %d lines)\n", cfg.Paths.LogFile, cfg.Log.MaxLines)
		fmt.Printf("  auth:    %s\n", cfg.Auth.Mode)

		var rec metrics.Recorder = metrics.NoopRecorder{}
		var srvOpts []server.Option
		if cfg.Metrics.Enabled {
			pr := metrics.NewPrometheusRecorder(nil)
			rec = pr
			srvOpts = append(srvOpts, server.WithMetrics(metrics.HTTPHandler(pr.Registry())))
			fmt.Printf("  metrics: /metrics\n")
		}

		eng, err := engine.New(cfg, runner.New(), engine.WithRecorder(rec), engine.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("initializing engine: %w", err)
		}
		if st, err := eng.Status(); err == nil && st.LastBackup != nil {
			fmt.Printf("  last:    %s\n", *st.LastBackup)
		}

		if cfg.Schedule.Backup != "" {
			sched, err := schedule.New(eng, logger)
			if err != nil {
				return err
			}
			if _, err := sched.ScheduleBackup(cfg.Schedule.Backup); err != nil {
				return err
			}
			sched.Start()
			defer sched.Stop()
			fmt.Printf("  schedule: backup at %q\n", cfg.Schedule.Backup)
		}

		srvOpts = append(srvOpts, server.WithLogStream(eng.Sink()), server.WithLogger(logger))
		srv := server.New(cfg, eng, srvOpts...)

		// Graceful shutdown
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

		errCh := make(chan error, 1)
		go func() {
			fmt.Printf("\nListening on http://%s\n", srv.Addr())
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		select {
		case <-sig:
		case err := <-errCh:
			return fmt.Errorf("server error: %w", err)
		}
		fmt.Println("\nShutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err = srv.Shutdown(ctx)

		// Jobs are not cancellable. A job still running here dies with the
		// process; its log ends without a completed marker.
		if st, serr := eng.Status(); serr == nil && st.Running {
			logger.Warn().Str("action", string(st.Action)).Str("run_id", st.RunID).Msg("exiting with a job in flight")
		}
		return err
	},
}
