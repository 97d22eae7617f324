package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// RotatingWriter is an io.Writer over a log file with size-based
// rotation: server.log -> server.log.1 -> ... -> server.log.N, with
// files past maxFiles removed. Every write is synced so a tailing
// operator sees entries as they happen.
type RotatingWriter struct {
	path     string
	maxBytes int64
	maxFiles int

	mu      sync.Mutex
	file    *os.File
	written int64
}

// NewRotatingWriter opens (or creates) the log file at path, creating
// parent directories as needed. Rotation triggers once a write would
// push the file past maxSizeMB.
func NewRotatingWriter(path string, maxSizeMB, maxFiles int) (*RotatingWriter, error) {
	w := &RotatingWriter{
		path:     path,
		maxBytes: int64(maxSizeMB) * 1024 * 1024,
		maxFiles: maxFiles,
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.written+int64(len(p)) > w.maxBytes {
		if err := w.rotate(); err != nil {
			// A failed rotation must not lose log lines; keep
			// appending to the oversized file.
			fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
		}
	}

	n, err := w.file.Write(p)
	w.written += int64(n)
	if err == nil {
		_ = w.file.Sync()
	}
	return n, err
}

// Sync flushes the current file to disk.
func (w *RotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Sync()
}

// Close closes the current file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Close()
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stating log file: %w", err)
	}
	w.file = f
	w.written = info.Size()
	return nil
}

// rotate shifts every numbered file up by one, dropping those that
// land past maxFiles, then reopens a fresh current file. Shifting runs
// highest-first so no rename overwrites a file still to be moved.
func (w *RotatingWriter) rotate() error {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return fmt.Errorf("closing log file: %w", err)
		}
		w.file = nil
	}

	for num := w.highestRotated(); num >= 1; num-- {
		from := fmt.Sprintf("%s.%d", w.path, num)
		if num >= w.maxFiles {
			_ = os.Remove(from)
			continue
		}
		_ = os.Rename(from, fmt.Sprintf("%s.%d", w.path, num+1))
	}

	if _, err := os.Stat(w.path); err == nil {
		if err := os.Rename(w.path, w.path+".1"); err != nil {
			return fmt.Errorf("rotating log file: %w", err)
		}
	}

	w.written = 0
	return w.open()
}

// highestRotated returns the largest N among existing path.N files.
func (w *RotatingWriter) highestRotated() int {
	matches, err := filepath.Glob(w.path + ".*")
	if err != nil {
		return 0
	}
	highest := 0
	for _, m := range matches {
		suffix := strings.TrimPrefix(m, w.path+".")
		num, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		if num > highest {
			highest = num
		}
	}
	return highest
}
