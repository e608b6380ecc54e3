// Package transfer mirrors one directory tree onto another with rsync.
//
// The same flag set and exclude list are used for backup (source to
// destination) and restore (destination to source). Both directions delete
// files on the receiving side that are absent from the sending side, so the
// argv is built in exactly one place.
package transfer

import (
	"context"
	"strings"

	"github.com/stackops/stackops/internal/logsink"
	"github.com/stackops/stackops/internal/runner"
)

// baseFlags: archive + verbose + human sizes, no permission/owner/group
// metadata, symlinks copied as the files they point to, and deletion of
// extraneous destination files.
var baseFlags = []string{"-avh", "--no-perms", "--no-owner", "--no-group", "-L", "--delete"}

// ExcludeSet is the ordered list of rsync exclude patterns.
type ExcludeSet []string

// Args renders the set as repeated --exclude flags.
func (e ExcludeSet) Args() []string {
	args := make([]string, 0, 2*len(e))
	for _, p := range e {
		args = append(args, "--exclude", p)
	}
	return args
}

// Mirror runs rsync through a runner.Runner.
type Mirror struct {
	run      runner.Runner
	bin      string
	excludes ExcludeSet
}

// New creates a Mirror using rsyncBin and the given excludes.
func New(r runner.Runner, rsyncBin string, excludes []string) *Mirror {
	return &Mirror{
		run:      r,
		bin:      rsyncBin,
		excludes: append(ExcludeSet(nil), excludes...),
	}
}

// Command builds the rsync argv for mirroring src onto dst.
func (m *Mirror) Command(src, dst string, dryRun bool) []string {
	argv := make([]string, 0, 1+len(baseFlags)+2*len(m.excludes)+3)
	argv = append(argv, m.bin)
	argv = append(argv, baseFlags...)
	argv = append(argv, m.excludes.Args()...)
	if dryRun {
		argv = append(argv, "--dry-run")
	}
	return append(argv, dirArg(src), dirArg(dst))
}

// Run mirrors src onto dst, streaming rsync's output into log. A non-zero
// exit is recorded in the log and returned, never raised.
func (m *Mirror) Run(ctx context.Context, src, dst string, dryRun bool, log logsink.Progress) runner.Result {
	res := m.run.Run(ctx, m.Command(src, dst, dryRun), log)
	if !res.OK() {
		log.Printf("WARNING: rsync %s", res)
	}
	return res
}

// dirArg adds the trailing slash that makes rsync copy the directory's
// contents rather than the directory itself.
func dirArg(p string) string {
	if strings.HasSuffix(p, "/") {
		return p
	}
	return p + "/"
}
