// Package runner executes external commands for the backup engine.
// All commands use exec.CommandContext with an explicit argv, never a shell string.
// A non-zero exit is reported as a status, never as an error: the engine
// logs it and moves on to the next step.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Result is the outcome of a single command.
type Result struct {
	ExitCode int
	// Err is set when the command could not be started or waited on
	// (missing executable, context cancelled). ExitCode is -1 in that case.
	Err error
}

// OK reports whether the command ran and exited zero.
func (r Result) OK() bool {
	return r.Err == nil && r.ExitCode == 0
}

// String renders the result for log lines.
func (r Result) String() string {
	if r.Err != nil {
		return fmt.Sprintf("failed: %v", r.Err)
	}
	return fmt.Sprintf("exit status %d", r.ExitCode)
}

// Runner abstracts command execution so controllers can be tested without
// docker or rsync on the host.
type Runner interface {
	// Run streams combined stdout and stderr into out as it is produced.
	Run(ctx context.Context, argv []string, out io.Writer) Result
	// Output captures stdout; stderr is discarded.
	Output(ctx context.Context, argv []string) (string, Result)
}

// Exec is the Runner backed by os/exec.
type Exec struct{}

// New returns the os/exec backed Runner.
func New() *Exec { return &Exec{} }

// commandContext is swapped in tests.
var commandContext = exec.CommandContext

// Run implements Runner.
func (Exec) Run(ctx context.Context, argv []string, out io.Writer) Result {
	if len(argv) == 0 {
		return Result{ExitCode: -1, Err: errors.New("empty command")}
	}
	if out == nil {
		out = io.Discard
	}
	cmd := commandContext(ctx, argv[0], argv[1:]...)
	// A single writer for both streams keeps rsync's stderr summary
	// interleaved with its file list, the way the log has always looked.
	cmd.Stdout = out
	cmd.Stderr = out
	return wait(cmd.Run(), argv[0])
}

// Output implements Runner.
func (Exec) Output(ctx context.Context, argv []string) (string, Result) {
	if len(argv) == 0 {
		return "", Result{ExitCode: -1, Err: errors.New("empty command")}
	}
	var stdout bytes.Buffer
	cmd := commandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	res := wait(cmd.Run(), argv[0])
	return stdout.String(), res
}

func wait(err error, name string) Result {
	if err == nil {
		return Result{}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return Result{ExitCode: exitErr.ExitCode()}
	}
	return Result{ExitCode: -1, Err: fmt.Errorf("%s: %w", name, err)}
}

// Lines splits command output into trimmed, non-empty lines.
func Lines(output string) []string {
	var lines []string
	for _, l := range strings.Split(output, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
