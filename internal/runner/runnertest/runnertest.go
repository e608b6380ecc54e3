// Package runnertest provides a scripted runner.Runner for controller tests.
package runnertest

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/stackops/stackops/internal/runner"
)

// Response is what the fake returns for a matching command.
type Response struct {
	Output string
	Result runner.Result
}

// Fake records every invocation and answers from Handler, or with a zero
// Result when Handler is nil or returns ok=false.
type Fake struct {
	mu    sync.Mutex
	calls [][]string

	// Handler picks the response for argv.
	Handler func(argv []string) (Response, bool)
	// Block, when non-nil, is received from before every Run returns.
	// Tests use it to hold a job in flight.
	Block chan struct{}
}

// Run implements runner.Runner. Output is written to out.
func (f *Fake) Run(ctx context.Context, argv []string, out io.Writer) runner.Result {
	resp := f.record(argv)
	if f.Block != nil {
		select {
		case <-f.Block:
		case <-ctx.Done():
		}
	}
	if out != nil && resp.Output != "" {
		io.WriteString(out, resp.Output)
	}
	return resp.Result
}

// Output implements runner.Runner.
func (f *Fake) Output(ctx context.Context, argv []string) (string, runner.Result) {
	resp := f.record(argv)
	return resp.Output, resp.Result
}

func (f *Fake) record(argv []string) Response {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), argv...))
	h := f.Handler
	f.mu.Unlock()
	if h != nil {
		if resp, ok := h(argv); ok {
			return resp
		}
	}
	return Response{}
}

// Calls returns a copy of every recorded argv in invocation order.
func (f *Fake) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsWithPrefix returns recorded calls whose argv starts with prefix.
func (f *Fake) CallsWithPrefix(prefix ...string) [][]string {
	var out [][]string
	for _, c := range f.Calls() {
		if HasPrefix(c, prefix...) {
			out = append(out, c)
		}
	}
	return out
}

// HasPrefix reports whether argv starts with prefix.
func HasPrefix(argv []string, prefix ...string) bool {
	if len(argv) < len(prefix) {
		return false
	}
	for i, p := range prefix {
		if argv[i] != p {
			return false
		}
	}
	return true
}

// Join renders argv for assertion messages.
func Join(argv []string) string {
	return strings.Join(argv, " ")
}
