// Package metrics exposes job counters and timings for Prometheus.
package metrics

import "time"

// Outcome labels a finished job.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeWarning Outcome = "warning" // a sub-command exited non-zero
	OutcomeFailed  Outcome = "failed"  // precondition or log I/O failure
)

// Recorder receives job lifecycle events from the engine.
type Recorder interface {
	JobStarted(action string)
	JobFinished(action string, outcome Outcome, d time.Duration)
	JobRejected(action string)
	SetLastBackup(t time.Time)
}

// NoopRecorder discards everything. Used when metrics are disabled.
type NoopRecorder struct{}

func (NoopRecorder) JobStarted(string)                          {}
func (NoopRecorder) JobFinished(string, Outcome, time.Duration) {}
func (NoopRecorder) JobRejected(string)                         {}
func (NoopRecorder) SetLastBackup(time.Time)                    {}
