package output

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileSink writes structured results to a file. Output is buffered and only
// guaranteed to be on disk after Close.
type FileSink struct {
	path string
	file *os.File
	buf  *bufio.Writer
	mu   sync.Mutex
	sw   *structuredWriter
}

func NewFileSink(path string, format string) (*FileSink, error) {
	if path == "" {
		return nil, fmt.Errorf("output path required")
	}

	if format == "" {
		ext := strings.ToLower(filepath.Ext(path))
		switch ext {
		case ".json":
			format = "json"
		case ".ndjson", ".jsonl":
			format = "ndjson"
		default:
			return nil, fmt.Errorf("cannot infer output format from file extension %q", ext)
		}
	}

	// Validate before creating the file so a bad format leaves nothing behind.
	if _, err := newStructuredWriter(nil, format); err != nil {
		return nil, fmt.Errorf("file sink: %w", err)
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	buf := bufio.NewWriter(f)
	sw, _ := newStructuredWriter(buf, format)

	return &FileSink{
		path: path,
		file: f,
		buf:  buf,
		sw:   sw,
	}, nil
}

func (s *FileSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sw.write(v)
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.sw.finish()
	if flushErr := s.buf.Flush(); flushErr != nil && err == nil {
		err = flushErr
	}
	if closeErr := s.file.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
