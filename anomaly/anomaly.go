package anomaly

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Stream is the per-run, append-only record of everything that went
// wrong without being worth aborting for. Its line count at the end of
// a run is the run's error count.
type Stream struct {
	mu      sync.Mutex
	fp      *os.File
	records []string
}

func Open(pathname string) (*Stream, error) {
	fp, err := os.OpenFile(pathname, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, err
	}
	return &Stream{fp: fp}, nil
}

// NewMemory returns a stream with no backing file, for tests and for
// runs that abort before the state directory is usable.
func NewMemory() *Stream {
	return &Stream{}
}

func (s *Stream) Record(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	line = strings.ReplaceAll(line, "\n", " ")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, line)
	if s.fp != nil {
		fmt.Fprintln(s.fp, line)
	}
}

// RecordLines appends one record per non-blank line of text, verbatim.
// Used to capture multi-line diagnostic output from collaborators.
func (s *Stream) RecordLines(text string) {
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		s.Record("%s", line)
	}
}

func (s *Stream) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *Stream) Records() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.records))
	copy(out, s.records)
	return out
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fp == nil {
		return nil
	}
	err := s.fp.Close()
	s.fp = nil
	return err
}
