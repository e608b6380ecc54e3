package engine

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackops/stackops/internal/config"
	"github.com/stackops/stackops/internal/runner"
	"github.com/stackops/stackops/internal/runner/runnertest"
)

var fixedTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))

const fixedStamp = "2024-03-01T12:00:00+01:00"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.Source = filepath.Join(dir, "source")
	cfg.Paths.Destination = filepath.Join(dir, "destination")
	cfg.Paths.LogFile = filepath.Join(dir, "log", "backup.log")
	cfg.Fstab.Template = filepath.Join(dir, "source", "fstab.example")
	cfg.Fstab.Target = filepath.Join(dir, "fstab")
	require.NoError(t, os.MkdirAll(cfg.Paths.Source, 0o755))
	require.NoError(t, os.MkdirAll(cfg.Paths.Destination, 0o755))
	return cfg
}

func newEngine(t *testing.T, cfg *config.Config, r runner.Runner) *Engine {
	t.Helper()
	e, err := New(cfg, r, WithClock(func() time.Time { return fixedTime }))
	require.NoError(t, err)
	return e
}

func readLog(t *testing.T, cfg *config.Config) string {
	t.Helper()
	b, err := os.ReadFile(cfg.Paths.LogFile)
	require.NoError(t, err)
	return string(b)
}

func TestBackupWritesMarkersAndRecordsTimestamp(t *testing.T) {
	cfg := testConfig(t)
	fake := &runnertest.Fake{}
	e := newEngine(t, cfg, fake)

	require.True(t, e.SubmitBackup(false))
	e.Wait()

	assert.Equal(t,
		"==== Backup started at "+fixedStamp+" ====\n==== Backup completed at "+fixedStamp+" ====\n\n",
		readLog(t, cfg))

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "rsync", calls[0][0])
	assert.Equal(t, []string{cfg.Paths.Source + "/", cfg.Paths.Destination + "/"}, calls[0][len(calls[0])-2:])

	st, err := e.Status()
	require.NoError(t, err)
	assert.False(t, st.Running)
	assert.Equal(t, ActionNone, st.Action)
	require.NotNil(t, st.LastBackup)
	assert.Equal(t, fixedStamp, *st.LastBackup)
}

func TestBackupDryRunDoesNotRecordTimestamp(t *testing.T) {
	cfg := testConfig(t)
	fake := &runnertest.Fake{}
	e := newEngine(t, cfg, fake)

	require.True(t, e.SubmitBackup(true))
	e.Wait()

	assert.Contains(t, readLog(t, cfg), "==== Backup dry-run completed at ")
	assert.Contains(t, fake.Calls()[0], "--dry-run")

	st, err := e.Status()
	require.NoError(t, err)
	assert.Nil(t, st.LastBackup)
}

func TestBackupRsyncFailureStillCompletes(t *testing.T) {
	cfg := testConfig(t)
	fake := &runnertest.Fake{Handler: func(argv []string) (runnertest.Response, bool) {
		return runnertest.Response{Output: "rsync: connection refused\n", Result: runner.Result{ExitCode: 23}}, true
	}}
	e := newEngine(t, cfg, fake)

	require.True(t, e.SubmitBackup(false))
	e.Wait()

	log := readLog(t, cfg)
	assert.Contains(t, log, "rsync: connection refused\nWARNING: rsync exit status 23\n")
	assert.Contains(t, log, "==== Backup completed at ")
}

func TestSingleFlightDropsBusySubmissions(t *testing.T) {
	cfg := testConfig(t)
	block := make(chan struct{})
	fake := &runnertest.Fake{Block: block}
	e := newEngine(t, cfg, fake)

	require.True(t, e.SubmitBackup(false))
	assert.False(t, e.SubmitRestore(false))
	assert.False(t, e.SubmitFstabSetup())
	assert.False(t, e.SubmitBackup(true))

	st, err := e.Status()
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.Equal(t, ActionBackup, st.Action)
	assert.NotEmpty(t, st.RunID)
	require.NotNil(t, st.StartedAt)

	close(block)
	e.Wait()

	st, err = e.Status()
	require.NoError(t, err)
	assert.False(t, st.Running)
	assert.Empty(t, st.RunID)
	assert.Nil(t, st.StartedAt)
	assert.Len(t, fake.Calls(), 1)
	assert.NotContains(t, readLog(t, cfg), "Restore")

	assert.True(t, e.SubmitRestore(true), "engine should accept again once idle")
	e.Wait()
}

func TestConcurrentSubmitAcceptsExactlyOne(t *testing.T) {
	cfg := testConfig(t)
	block := make(chan struct{})
	e := newEngine(t, cfg, &runnertest.Fake{Block: block})

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if e.Submit(Operation(i%2), i%4 < 2) {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	close(block)
	e.Wait()

	assert.Equal(t, 1, accepted)
}

func TestRestoreSequence(t *testing.T) {
	cfg := testConfig(t)
	for _, s := range []string{"stack-web", "stack-ops", "stack-infra", "stack-auth"} {
		dir := filepath.Join(cfg.Paths.Source, s)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "docker-compose.yml"), nil, 0o644))
	}
	fake := &runnertest.Fake{Handler: func(argv []string) (runnertest.Response, bool) {
		if runnertest.HasPrefix(argv, "docker", "ps") {
			return runnertest.Response{Output: "backup\nweb\ndb\n"}, true
		}
		return runnertest.Response{}, false
	}}
	e := newEngine(t, cfg, fake)

	require.True(t, e.SubmitRestore(false))
	e.Wait()

	var got []string
	for _, c := range fake.Calls() {
		switch {
		case c[0] == "rsync":
			got = append(got, "rsync "+c[len(c)-2]+" "+c[len(c)-1])
		case runnertest.HasPrefix(c, "docker", "compose"):
			got = append(got, "up "+filepath.Base(filepath.Dir(c[3])))
		default:
			got = append(got, runnertest.Join(c))
		}
	}
	assert.Equal(t, []string{
		"docker ps --format {{.Names}}",
		"docker stop web db",
		"rsync " + cfg.Paths.Destination + "/ " + cfg.Paths.Source + "/",
		"docker network create traefik-proxy",
		"up stack-infra",
		"up stack-auth",
		"up stack-web",
	}, got)

	log := readLog(t, cfg)
	assert.Contains(t, log, "==== Restore started at "+fixedStamp+" ====\nStopping containers: web, db\nRestoring files from NAS backup...\n")
	assert.Contains(t, log, "Starting stack-infra...\nStarting stack-auth...\nStarting stack-web...\n==== Restore completed at ")
	assert.NotContains(t, log, "stack-ops")

	st, err := e.Status()
	require.NoError(t, err)
	assert.Nil(t, st.LastBackup, "restore must not touch the last backup")
}

func TestRestoreDryRunTouchesNothing(t *testing.T) {
	cfg := testConfig(t)
	fake := &runnertest.Fake{}
	e := newEngine(t, cfg, fake)

	require.True(t, e.SubmitRestore(true))
	e.Wait()

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "rsync", calls[0][0])
	assert.Contains(t, calls[0], "--dry-run")
	assert.Contains(t, readLog(t, cfg), "Restoring files from NAS backup... (dry-run)\n")
	assert.Contains(t, readLog(t, cfg), "==== Restore dry-run completed at ")
}

func TestFstabSetupMissingTemplate(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.Fstab.Target, []byte("UUID=x / ext4 defaults 0 1\n"), 0o644))
	fake := &runnertest.Fake{}
	e := newEngine(t, cfg, fake)

	require.True(t, e.SubmitFstabSetup())
	e.Wait()

	assert.Equal(t,
		"==== Setup fstab started at "+fixedStamp+" ====\n"+
			"ERROR: fstab.example not found\n"+
			"==== Setup fstab failed at "+fixedStamp+" ====\n\n",
		readLog(t, cfg))
	assert.Empty(t, fake.Calls())

	target, err := os.ReadFile(cfg.Fstab.Target)
	require.NoError(t, err)
	assert.Equal(t, "UUID=x / ext4 defaults 0 1\n", string(target))

	st, err := e.Status()
	require.NoError(t, err)
	assert.False(t, st.Running)
}

func TestFstabSetupApplies(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.Fstab.Template, []byte("nas:/media /mnt/media nfs defaults 0 0\n"), 0o644))
	require.NoError(t, os.WriteFile(cfg.Fstab.Target, []byte("UUID=x / ext4 defaults 0 1\n"), 0o644))
	fake := &runnertest.Fake{}
	e := newEngine(t, cfg, fake)

	require.True(t, e.SubmitFstabSetup())
	e.Wait()

	target, err := os.ReadFile(cfg.Fstab.Target)
	require.NoError(t, err)
	assert.Contains(t, string(target), cfg.Fstab.MarkerStart+"\nnas:/media /mnt/media nfs defaults 0 0\n"+cfg.Fstab.MarkerEnd+"\n")
	assert.Len(t, fake.CallsWithPrefix("docker", "run"), 2)
	assert.Contains(t, readLog(t, cfg), "==== Setup fstab completed at ")
}

func TestRecoveryPicksLastRealBackup(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.Paths.LogFile), 0o755))
	log := strings.Join([]string{
		"==== Backup started at 2024-01-01T00:00:00+00:00 ====",
		"==== Backup completed at 2024-01-01T00:05:00+00:00 ====",
		"",
		"==== Backup completed at 2024-01-02T00:05:00+00:00 ====",
		"",
		"==== Backup dry-run completed at 2024-01-03T00:05:00+00:00 ====",
		"==== Restore completed at 2024-01-04T00:05:00+00:00 ====",
		"",
	}, "\n")
	require.NoError(t, os.WriteFile(cfg.Paths.LogFile, []byte(log), 0o644))

	e := newEngine(t, cfg, &runnertest.Fake{})
	st, err := e.Status()
	require.NoError(t, err)
	require.NotNil(t, st.LastBackup)
	assert.Equal(t, "2024-01-02T00:05:00+00:00", *st.LastBackup)
}

func TestClearLog(t *testing.T) {
	cfg := testConfig(t)
	e := newEngine(t, cfg, &runnertest.Fake{})
	require.True(t, e.SubmitBackup(false))
	e.Wait()

	require.NoError(t, e.ClearLog())

	st, err := e.Status()
	require.NoError(t, err)
	assert.Empty(t, st.Log)
	assert.Nil(t, st.LastBackup)
}

func TestRotationAfterJob(t *testing.T) {
	cfg := testConfig(t)
	cfg.Log.MaxLines = 4
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.Paths.LogFile), 0o755))
	require.NoError(t, os.WriteFile(cfg.Paths.LogFile, []byte(strings.Repeat("old line\n", 10)), 0o644))
	fake := &runnertest.Fake{Handler: func(argv []string) (runnertest.Response, bool) {
		return runnertest.Response{Output: "sending incremental file list\n"}, true
	}}
	e := newEngine(t, cfg, fake)

	require.True(t, e.SubmitBackup(false))
	e.Wait()

	assert.Equal(t,
		"==== Backup started at "+fixedStamp+" ====\n"+
			"sending incremental file list\n"+
			"==== Backup completed at "+fixedStamp+" ====\n\n",
		readLog(t, cfg))
}

func TestStatusTailLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.Log.TailLines = 2
	e := newEngine(t, cfg, &runnertest.Fake{})
	require.True(t, e.SubmitBackup(false))
	e.Wait()

	st, err := e.Status()
	require.NoError(t, err)
	assert.Equal(t, "==== Backup completed at "+fixedStamp+" ====\n\n", st.Log)
}

func TestLogOpenFailureReturnsToIdle(t *testing.T) {
	cfg := testConfig(t)
	e := newEngine(t, cfg, &runnertest.Fake{})
	// A directory where the log file should be makes every open fail.
	require.NoError(t, os.MkdirAll(cfg.Paths.LogFile, 0o755))

	require.True(t, e.SubmitBackup(false))
	e.Wait()

	st, _ := e.Status()
	assert.False(t, st.Running)
	assert.Nil(t, st.LastBackup)
	assert.True(t, e.SubmitBackup(false))
	e.Wait()
}

func TestActionDescribe(t *testing.T) {
	assert.Equal(t, "Idle", ActionNone.Describe())
	assert.Equal(t, "Restore dry-run...", ActionRestoreDry.Describe())
	assert.Equal(t, ActionFstab, OpFstab.action(true))
	assert.Equal(t, ActionBackupDry, OpBackup.action(true))
}
