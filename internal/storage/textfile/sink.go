// Package textfile implements the delimited text sink.
package textfile

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Separators used by the output format.
const (
	FieldSeparator = "\x01"
	LineSeparator  = "\n"
)

var valueCleaner = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", FieldSeparator, "")

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("text sink closed")

// Sink appends one line per record to a file. Values are joined with FieldSeparator;
// separators inside a value are removed so every record stays on one line.
type Sink struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	w      *bufio.Writer
	closed bool
}

// Open creates the parent directory if needed and opens path for appending.
func Open(path string) (*Sink, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("text sink path is required")
	}
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat output directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("output directory path is not a directory")
	}
	// #nosec G304 -- path is derived from the configured data directory.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open text sink: %w", err)
	}
	return &Sink{path: path, file: f, w: bufio.NewWriter(f)}, nil
}

// Path returns the output file path.
func (s *Sink) Path() string {
	return s.path
}

// Write appends values as one line. The field names are not written.
func (s *Sink) Write(_ context.Context, _ []string, values []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	cleaned := make([]string, len(values))
	for i, v := range values {
		cleaned[i] = valueCleaner.Replace(v)
	}
	if _, err := s.w.WriteString(strings.Join(cleaned, FieldSeparator) + LineSeparator); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

// Flush pushes buffered lines to the file.
func (s *Sink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", s.path, err)
	}
	return nil
}

// Close flushes and closes the file. Later calls return nil.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	flushErr := s.w.Flush()
	closeErr := s.file.Close()
	if err := errors.Join(flushErr, closeErr); err != nil {
		return fmt.Errorf("close %s: %w", s.path, err)
	}
	return nil
}
