// Package schedule triggers unattended backups on a cron expression.
package schedule

import (
	"fmt"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

// BackupSubmitter is the part of the engine the scheduler drives.
type BackupSubmitter interface {
	SubmitBackup(dryRun bool) bool
}

// Scheduler wraps a gocron scheduler holding the backup job.
type Scheduler struct {
	scheduler gocron.Scheduler
	engine    BackupSubmitter
	logger    zerolog.Logger
}

// New creates a stopped scheduler.
func New(engine BackupSubmitter, logger zerolog.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}
	return &Scheduler{
		scheduler: s,
		engine:    engine,
		logger:    logger.With().Str("component", "schedule").Logger(),
	}, nil
}

// ScheduleBackup registers a backup on the standard five-field cron
// expression and returns the job ID.
func (s *Scheduler) ScheduleBackup(expr string) (string, error) {
	job, err := s.scheduler.NewJob(
		gocron.CronJob(expr, false),
		gocron.NewTask(s.runBackup),
		gocron.WithName("backup"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", fmt.Errorf("scheduling backup %q: %w", expr, err)
	}
	s.logger.Info().Str("cron", expr).Msg("backup scheduled")
	return job.ID().String(), nil
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.scheduler.Start()
}

// Stop shuts the scheduler down. A backup it already submitted keeps
// running in the engine.
func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}

// runBackup is the scheduled task. A busy engine drops the run, the same
// as a manual trigger.
func (s *Scheduler) runBackup() {
	if s.engine.SubmitBackup(false) {
		s.logger.Info().Msg("scheduled backup started")
		return
	}
	s.logger.Warn().Msg("scheduled backup skipped, a job is already running")
}
