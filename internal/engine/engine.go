// Package engine runs backup, restore and fstab setup jobs one at a time
// and reports their progress through the job log.
package engine

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stackops/stackops/internal/config"
	"github.com/stackops/stackops/internal/docker"
	"github.com/stackops/stackops/internal/fstab"
	"github.com/stackops/stackops/internal/logsink"
	"github.com/stackops/stackops/internal/metrics"
	"github.com/stackops/stackops/internal/runner"
	"github.com/stackops/stackops/internal/stacks"
	"github.com/stackops/stackops/internal/transfer"
)

// backupCompleted finds the last real backup in the log. Dry-run markers
// read "Backup dry-run completed" and do not match.
var backupCompleted = regexp.MustCompile(`==== Backup completed at (.+?) ====`)

// Engine owns the single-flight job state. At most one job runs at a time;
// submissions while busy are dropped.
type Engine struct {
	cfg *config.Config

	sink   *logsink.Sink
	mirror *transfer.Mirror
	docker *docker.Client
	stacks *stacks.Controller
	fstab  *fstab.Merger

	rec    metrics.Recorder
	logger zerolog.Logger
	now    func() time.Time

	mu         sync.Mutex
	running    bool
	action     Action
	runID      string
	startedAt  time.Time
	lastBackup string

	wg sync.WaitGroup
}

// Option customizes an Engine.
type Option func(*Engine)

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.rec = r
		}
	}
}

// WithLogger sets the process logger. Job progress goes to the job log,
// not here.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l.With().Str("component", "engine").Logger() }
}

// WithClock overrides time.Now for marker timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds an Engine from cfg, running every external command through r.
// The last completed backup is recovered from the existing log.
func New(cfg *config.Config, r runner.Runner, opts ...Option) (*Engine, error) {
	dk := docker.New(r, cfg.Docker.Bin)
	e := &Engine{
		cfg:    cfg,
		sink:   logsink.New(cfg.Paths.LogFile, cfg.Log.MaxLines),
		mirror: transfer.New(r, cfg.Transfer.RsyncBin, cfg.Transfer.Excludes),
		docker: dk,
		stacks: stacks.NewController(dk, stacks.Discovery{
			Root:            cfg.Paths.Source,
			Pattern:         cfg.Stacks.Pattern,
			ComposeFiles:    cfg.Stacks.ComposeFiles,
			Priorities:      cfg.Stacks.Priorities,
			DefaultPriority: cfg.Stacks.DefaultPriority,
		}, cfg.Docker.SharedNetwork),
		fstab: fstab.New(dk, r, fstab.Options{
			MarkerStart: cfg.Fstab.MarkerStart,
			MarkerEnd:   cfg.Fstab.MarkerEnd,
			Mode:        cfg.Fstab.HostExec,
			HelperImage: cfg.Fstab.HelperImage,
			MountRoot:   cfg.Fstab.MountRoot,
		}),
		rec:    metrics.NoopRecorder{},
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(e)
	}

	ts, err := e.sink.LastMatch(backupCompleted)
	if err != nil {
		return nil, fmt.Errorf("recovering last backup: %w", err)
	}
	if ts != "" {
		e.lastBackup = ts
		e.publishLastBackup(ts)
		e.logger.Info().Str("last_backup", ts).Msg("recovered last backup from log")
	}
	return e, nil
}

// Sink returns the job log.
func (e *Engine) Sink() *logsink.Sink { return e.sink }

// Submit starts op in the background unless a job is already running. It
// reports whether the job was accepted. dryRun is ignored for OpFstab.
func (e *Engine) Submit(op Operation, dryRun bool) bool {
	action := op.action(dryRun)

	e.mu.Lock()
	if e.running {
		current := e.action
		e.mu.Unlock()
		e.rec.JobRejected(string(action))
		e.logger.Info().Str("action", string(action)).Str("running", string(current)).Msg("job dropped, engine busy")
		return false
	}
	e.running = true
	e.action = action
	e.runID = uuid.NewString()
	e.startedAt = e.now()
	runID := e.runID
	e.wg.Add(1)
	e.mu.Unlock()

	e.rec.JobStarted(string(action))
	e.logger.Info().Str("action", string(action)).Str("run_id", runID).Msg("job accepted")
	go e.run(op, action, runID)
	return true
}

// SubmitBackup mirrors the source tree onto the destination.
func (e *Engine) SubmitBackup(dryRun bool) bool { return e.Submit(OpBackup, dryRun) }

// SubmitRestore stops other containers, mirrors the destination back onto
// the source and brings the stacks up again.
func (e *Engine) SubmitRestore(dryRun bool) bool { return e.Submit(OpRestore, dryRun) }

// SubmitFstabSetup installs the managed mount block and mounts it.
func (e *Engine) SubmitFstabSetup() bool { return e.Submit(OpFstab, false) }

// Status returns the current state and the log tail. It never waits for
// the running job.
func (e *Engine) Status() (Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{Running: e.running, Action: e.action}
	if e.lastBackup != "" {
		ts := e.lastBackup
		st.LastBackup = &ts
	}
	if e.running {
		st.RunID = e.runID
		started := e.startedAt
		st.StartedAt = &started
	}

	tail, err := e.sink.Tail(e.cfg.Log.TailLines)
	if err != nil {
		return st, err
	}
	st.Log = tail
	return st, nil
}

// ClearLog empties the log and forgets the last backup timestamp. A status
// read sees either both or neither.
func (e *Engine) ClearLog() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.sink.Clear(); err != nil {
		return err
	}
	e.lastBackup = ""
	e.rec.SetLastBackup(time.Time{})
	e.logger.Info().Msg("log cleared")
	return nil
}

// Wait blocks until the in-flight job, if any, has finished.
func (e *Engine) Wait() { e.wg.Wait() }

// run executes one accepted job and always returns the engine to idle.
func (e *Engine) run(op Operation, action Action, runID string) {
	defer e.wg.Done()
	started := time.Now()
	outcome := metrics.OutcomeSuccess
	logger := e.logger.With().Str("action", string(action)).Str("run_id", runID).Logger()

	defer func() {
		if err := e.sink.Rotate(); err != nil {
			logger.Error().Err(err).Msg("rotating log")
		}
		e.mu.Lock()
		e.running = false
		e.action = ActionNone
		e.runID = ""
		e.mu.Unlock()
		e.rec.JobFinished(string(action), outcome, time.Since(started))
		logger.Info().Str("outcome", string(outcome)).Dur("duration", time.Since(started)).Msg("job finished")
	}()

	sess, err := e.sink.Begin()
	if err != nil {
		logger.Error().Err(err).Msg("opening job log")
		outcome = metrics.OutcomeFailed
		return
	}

	j := &jobContext{
		ctx:    context.Background(),
		engine: e,
		log:    sess,
		action: action,
	}
	switch op {
	case OpBackup:
		err = e.backup(j)
	case OpRestore:
		err = e.restore(j)
	case OpFstab:
		err = e.setupFstab(j)
	}
	if cerr := sess.Close(); cerr != nil && err == nil {
		err = cerr
	}

	switch {
	case err != nil:
		outcome = metrics.OutcomeFailed
		logger.Error().Err(err).Msg("job aborted")
	case j.warned:
		outcome = metrics.OutcomeWarning
	}
}

func (e *Engine) timestamp() string {
	return e.now().Format(TimestampLayout)
}

func (e *Engine) setLastBackup(ts string) {
	e.mu.Lock()
	e.lastBackup = ts
	e.mu.Unlock()
	e.publishLastBackup(ts)
}

func (e *Engine) publishLastBackup(ts string) {
	t, err := time.Parse(TimestampLayout, ts)
	if err != nil {
		e.logger.Warn().Str("last_backup", ts).Msg("unparseable backup timestamp")
		return
	}
	e.rec.SetLastBackup(t)
}
