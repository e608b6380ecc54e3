package engine

import (
	"context"

	"github.com/stackops/stackops/internal/logsink"
	"github.com/stackops/stackops/internal/runner"
)

// jobContext carries one job's log session through its steps.
type jobContext struct {
	ctx    context.Context
	engine *Engine
	log    *logsink.Session
	action Action
	warned bool
}

// note records a non-zero exit. The step itself has already logged it.
func (j *jobContext) note(res runner.Result) {
	if !res.OK() {
		j.warned = true
	}
}

// check is called at step boundaries: once the log cannot be written the
// job stops, since nothing it does afterwards would be visible.
func (j *jobContext) check() error {
	return j.log.Err()
}

func (j *jobContext) started() {
	j.log.Printf("==== %s started at %s ====", j.action.label(), j.engine.timestamp())
}

// completed writes the end marker and the blank separator line and returns
// the marker's timestamp.
func (j *jobContext) completed() string {
	ts := j.engine.timestamp()
	j.log.Printf("==== %s completed at %s ====", j.action.label(), ts)
	j.log.Println("")
	return ts
}

func (e *Engine) backup(j *jobContext) error {
	j.started()
	if err := j.check(); err != nil {
		return err
	}

	j.note(e.mirror.Run(j.ctx, e.cfg.Paths.Source, e.cfg.Paths.Destination, j.action.DryRun(), j.log))
	if err := j.check(); err != nil {
		return err
	}

	ts := j.completed()
	if err := j.check(); err != nil {
		return err
	}
	if !j.action.DryRun() {
		e.setLastBackup(ts)
	}
	return nil
}

func (e *Engine) restore(j *jobContext) error {
	dryRun := j.action.DryRun()

	j.started()
	if err := j.check(); err != nil {
		return err
	}

	if !dryRun {
		e.docker.StopAllExcept(j.ctx, e.cfg.Docker.SelfContainer, j.log)
		if err := j.check(); err != nil {
			return err
		}
	}

	if dryRun {
		j.log.Println("Restoring files from NAS backup... (dry-run)")
	} else {
		j.log.Println("Restoring files from NAS backup...")
	}
	j.note(e.mirror.Run(j.ctx, e.cfg.Paths.Destination, e.cfg.Paths.Source, dryRun, j.log))
	if err := j.check(); err != nil {
		return err
	}

	if !dryRun {
		e.stacks.BringUpAll(j.ctx, e.cfg.Stacks.Self, j.log)
		if err := j.check(); err != nil {
			return err
		}
	}

	j.completed()
	return j.check()
}

func (e *Engine) setupFstab(j *jobContext) error {
	j.started()
	if err := j.check(); err != nil {
		return err
	}

	if err := e.fstab.Apply(j.ctx, e.cfg.Fstab.Template, e.cfg.Fstab.Target, j.log); err != nil {
		j.log.Printf("==== %s failed at %s ====", j.action.label(), e.timestamp())
		j.log.Println("")
		return err
	}

	j.completed()
	return j.check()
}
