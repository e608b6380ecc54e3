package logsink

import (
	"bytes"
	"fmt"
	"io"
	"sync"
)

// Progress is what job steps write to: raw command output plus their own
// progress lines. *Session implements it.
type Progress interface {
	io.Writer
	Printf(format string, args ...any)
}

var _ Progress = (*Session)(nil)

// Memory is an in-memory Progress, used where a step's output should be
// captured instead of persisted.
type Memory struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

var _ Progress = (*Memory)(nil)

// Write implements io.Writer.
func (m *Memory) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf.Write(p)
}

// Printf appends a formatted line.
func (m *Memory) Printf(format string, args ...any) {
	m.Write([]byte(fmt.Sprintf(format, args...) + "\n"))
}

// String returns everything written so far.
func (m *Memory) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf.String()
}
