package schedule

import (
	"bytes"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	mu     sync.Mutex
	calls  []bool
	accept bool
}

func (f *fakeEngine) SubmitBackup(dryRun bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, dryRun)
	return f.accept
}

func TestScheduleBackup(t *testing.T) {
	t.Run("returns job id for valid cron", func(t *testing.T) {
		s, err := New(&fakeEngine{}, zerolog.Nop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Stop() })

		id, err := s.ScheduleBackup("0 3 * * *")
		require.NoError(t, err)
		require.NotEmpty(t, id)
	})

	t.Run("rejects invalid cron", func(t *testing.T) {
		s, err := New(&fakeEngine{}, zerolog.Nop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Stop() })

		_, err = s.ScheduleBackup("every night please")
		require.Error(t, err)
	})
}

func TestRunBackupSubmitsRealBackup(t *testing.T) {
	eng := &fakeEngine{accept: true}
	var buf bytes.Buffer
	s, err := New(eng, zerolog.New(&buf))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })

	s.runBackup()

	assert.Equal(t, []bool{false}, eng.calls)
	assert.Contains(t, buf.String(), "scheduled backup started")
}

func TestRunBackupBusyIsLogged(t *testing.T) {
	eng := &fakeEngine{accept: false}
	var buf bytes.Buffer
	s, err := New(eng, zerolog.New(&buf))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })

	s.runBackup()

	assert.Len(t, eng.calls, 1)
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), "already running")
}
