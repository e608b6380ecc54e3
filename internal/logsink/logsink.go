// Package logsink is the engine's durable job log: a plain text file that
// is only ever appended to during a job, trimmed to a maximum line count
// afterwards, and read back from the tail by status queries.
package logsink

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// Sink owns one log file. Writes, Clear and Rotate are serialized by mu.
type Sink struct {
	path     string
	maxLines int

	mu sync.Mutex

	subMu sync.Mutex
	subs  map[chan string]struct{}
}

// New returns a Sink for path that keeps at most maxLines lines after Rotate.
// maxLines <= 0 disables rotation.
func New(path string, maxLines int) *Sink {
	return &Sink{
		path:     path,
		maxLines: maxLines,
		subs:     make(map[chan string]struct{}),
	}
}

// Path returns the log file path.
func (s *Sink) Path() string { return s.path }

// Begin opens the log for appending and returns a session for one job.
func (s *Sink) Begin() (*Session, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log: %w", err)
	}
	return &Session{sink: s, f: f}, nil
}

// Append writes each line followed by a newline in a one-shot session.
func (s *Sink) Append(lines ...string) error {
	sess, err := s.Begin()
	if err != nil {
		return err
	}
	for _, l := range lines {
		sess.Println(l)
	}
	return sess.Close()
}

// Tail returns the last n lines of the log, or "" if it does not exist yet.
func (s *Sink) Tail(n int) (string, error) {
	s.mu.Lock()
	data, err := os.ReadFile(s.path)
	s.mu.Unlock()
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading log: %w", err)
	}
	lines := splitLines(string(data))
	if n >= 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, ""), nil
}

// Clear truncates the log to empty. A missing log is not an error.
func (s *Sink) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Truncate(s.path, 0)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clearing log: %w", err)
	}
	return nil
}

// Rotate keeps only the most recent maxLines lines. It reads the whole file
// and rewrites it, so it must not run while another session is writing; the
// engine calls it after the job's session is closed.
func (s *Sink) Rotate() error {
	if s.maxLines <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading log for rotation: %w", err)
	}
	lines := splitLines(string(data))
	if len(lines) <= s.maxLines {
		return nil
	}
	kept := strings.Join(lines[len(lines)-s.maxLines:], "")
	if err := os.WriteFile(s.path, []byte(kept), 0o644); err != nil {
		return fmt.Errorf("rewriting log: %w", err)
	}
	return nil
}

// LastMatch scans the whole log and returns the first capture group of the
// last match of re, or "" when nothing matches or the log does not exist.
func (s *Sink) LastMatch(re *regexp.Regexp) (string, error) {
	s.mu.Lock()
	data, err := os.ReadFile(s.path)
	s.mu.Unlock()
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading log: %w", err)
	}
	matches := re.FindAllStringSubmatch(string(data), -1)
	if len(matches) == 0 {
		return "", nil
	}
	last := matches[len(matches)-1]
	if len(last) < 2 {
		return last[0], nil
	}
	return last[1], nil
}

// Subscribe registers a listener for completed lines written from now on.
// The returned func unsubscribes and closes the channel. A subscriber that
// falls behind loses lines; writers never block on it.
func (s *Sink) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 256)
	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, ch)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

func (s *Sink) publish(line string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- line:
		default:
		}
	}
}

// splitLines splits text into lines that keep their trailing newline. A
// final line without a newline is kept as is.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// Session is one job's append handle. It is an io.Writer for raw command
// output and has Println/Printf for the engine's own progress lines. Each
// write goes straight to the file, so tail readers see progress as it
// happens. The first write error sticks and later writes are dropped.
type Session struct {
	sink    *Sink
	f       *os.File
	err     error
	partial []byte
}

var _ io.Writer = (*Session)(nil)

// Write appends p verbatim.
func (s *Session) Write(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.sink.mu.Lock()
	n, err := s.f.Write(p)
	s.sink.mu.Unlock()
	if err != nil {
		s.err = fmt.Errorf("writing log: %w", err)
		return n, s.err
	}
	s.fanOut(p)
	return n, nil
}

// Println appends msg and a newline.
func (s *Session) Println(msg string) {
	s.Write([]byte(msg + "\n"))
}

// Printf appends a formatted line; a newline is added.
func (s *Session) Printf(format string, args ...any) {
	s.Println(fmt.Sprintf(format, args...))
}

// Err returns the first write error, if any.
func (s *Session) Err() error { return s.err }

// Close flushes any partial line to subscribers and closes the file.
func (s *Session) Close() error {
	if len(s.partial) > 0 {
		s.sink.publish(string(s.partial))
		s.partial = nil
	}
	if err := s.f.Close(); err != nil && s.err == nil {
		s.err = fmt.Errorf("closing log: %w", err)
	}
	return s.err
}

// fanOut forwards complete lines to subscribers, carrying any trailing
// partial line over to the next write.
func (s *Session) fanOut(p []byte) {
	buf := append(s.partial, p...)
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		s.sink.publish(string(buf[:i]))
		buf = buf[i+1:]
	}
	s.partial = append([]byte(nil), buf...)
}
