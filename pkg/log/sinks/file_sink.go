package sinks

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/arnavsurve/sheetflow/pkg/log"
)

// FileSink writes every event as one JSON line, including debug events the console hides.
type FileSink struct {
	mu   sync.Mutex
	path string
	file *os.File
	buf  *bufio.Writer
}

func NewFileSink(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating log directory for %q: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	return &FileSink{path: path, file: f, buf: bufio.NewWriter(f)}, nil
}

func (fs *FileSink) Path() string {
	return fs.path
}

func (fs *FileSink) Write(event *log.LogEvent) error {
	logEntry := map[string]any{
		"level":   levelToString(event.Level),
		"time":    event.Timestamp,
		"message": event.Message,
	}
	for k, v := range event.Fields {
		logEntry[k] = v
	}

	data, err := json.Marshal(logEntry)
	if err != nil {
		return fmt.Errorf("failed to marshal log event for file sink: %w", err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.file == nil {
		return fmt.Errorf("file sink %q is closed", fs.path)
	}
	if _, err := fs.buf.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write to file sink: %w", err)
	}
	return nil
}

func (fs *FileSink) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.file == nil {
		return nil
	}
	flushErr := fs.buf.Flush()
	closeErr := fs.file.Close()
	fs.file = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
