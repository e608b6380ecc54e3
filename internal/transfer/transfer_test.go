package transfer

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/stackops/stackops/internal/logsink"
	"github.com/stackops/stackops/internal/runner"
	"github.com/stackops/stackops/internal/runner/runnertest"
)

var excludes = []string{".git/", "temp/", "._*"}

func TestCommandBackup(t *testing.T) {
	m := New(nil, "rsync", excludes)
	got := m.Command("/source/", "/destination/", false)
	want := []string{
		"rsync", "-avh", "--no-perms", "--no-owner", "--no-group", "-L", "--delete",
		"--exclude", ".git/", "--exclude", "temp/", "--exclude", "._*",
		"/source/", "/destination/",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Command =\n %v\nwant\n %v", got, want)
	}
}

func TestCommandDryRun(t *testing.T) {
	m := New(nil, "rsync", excludes)
	got := m.Command("/source/", "/destination/", true)
	if got[len(got)-3] != "--dry-run" {
		t.Errorf("expected --dry-run before paths, got %v", got)
	}
}

func TestCommandAddsTrailingSlash(t *testing.T) {
	m := New(nil, "rsync", nil)
	got := m.Command("/srv/docker", "/mnt/nas/docker", false)
	if got[len(got)-2] != "/srv/docker/" || got[len(got)-1] != "/mnt/nas/docker/" {
		t.Errorf("paths = %v, want trailing slashes", got[len(got)-2:])
	}
}

// Restore must use exactly the same flags and excludes as backup, only the
// two path arguments swap.
func TestDirectionsAreSymmetric(t *testing.T) {
	m := New(nil, "rsync", excludes)
	for _, dry := range []bool{false, true} {
		backup := m.Command("/source/", "/destination/", dry)
		restore := m.Command("/destination/", "/source/", dry)
		n := len(backup)
		if !reflect.DeepEqual(backup[:n-2], restore[:n-2]) {
			t.Errorf("dry=%v flags differ:\n %v\n %v", dry, backup, restore)
		}
		if backup[n-2] != restore[n-1] || backup[n-1] != restore[n-2] {
			t.Errorf("dry=%v paths not swapped: %v / %v", dry, backup[n-2:], restore[n-2:])
		}
	}
}

func TestExcludesAreCopied(t *testing.T) {
	src := []string{".git/"}
	m := New(nil, "rsync", src)
	src[0] = "--delete-everything"
	if got := m.Command("/a", "/b", false); strings.Contains(strings.Join(got, " "), "--delete-everything") {
		t.Errorf("Mirror shares caller's exclude slice: %v", got)
	}
}

func TestRunStreamsOutputAndLogsFailure(t *testing.T) {
	fake := &runnertest.Fake{Handler: func(argv []string) (runnertest.Response, bool) {
		return runnertest.Response{
			Output: "sending incremental file list\n",
			Result: runner.Result{ExitCode: 23},
		}, true
	}}
	var log logsink.Memory
	res := New(fake, "rsync", excludes).Run(context.Background(), "/source/", "/destination/", false, &log)

	if res.ExitCode != 23 {
		t.Errorf("ExitCode = %d, want 23", res.ExitCode)
	}
	calls := fake.Calls()
	if len(calls) != 1 || calls[0][0] != "rsync" {
		t.Fatalf("calls = %v", calls)
	}
	want := "sending incremental file list\nWARNING: rsync exit status 23\n"
	if log.String() != want {
		t.Errorf("log = %q, want %q", log.String(), want)
	}
}

func TestRunSuccessIsQuiet(t *testing.T) {
	fake := &runnertest.Fake{}
	var log logsink.Memory
	res := New(fake, "rsync", nil).Run(context.Background(), "/a/", "/b/", true, &log)
	if !res.OK() {
		t.Errorf("Run = %v", res)
	}
	if log.String() != "" {
		t.Errorf("log = %q, want empty", log.String())
	}
}
