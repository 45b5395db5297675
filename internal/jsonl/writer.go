// Package jsonl reads and appends newline-delimited JSON logs.
//
// A Writer holds an exclusive advisory lock on "<path>.lock" for its whole
// lifetime, so two scraper or transformer processes cannot interleave
// appends to the same log.
package jsonl

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked is returned by OpenWriter when another writer holds the log.
var ErrLocked = errors.New("jsonl: log is locked by another writer")

// Writer appends lines to a log file opened in append mode.
type Writer struct {
	path string
	f    *os.File
	lock *flock.Flock
}

// OpenWriter locks and opens path for appending, creating it if needed.
// If a previous run died mid-line, the dangling fragment is terminated so the
// next record starts on its own line.
func OpenWriter(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("jsonl: mkdir: %w", err)
	}

	lock := flock.New(path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("jsonl: lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("jsonl: open %s: %w", path, err)
	}

	w := &Writer{path: path, f: f, lock: lock}
	if err := w.terminateDanglingLine(); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) terminateDanglingLine() error {
	info, err := w.f.Stat()
	if err != nil {
		return fmt.Errorf("jsonl: stat %s: %w", w.path, err)
	}
	if info.Size() == 0 {
		return nil
	}

	r, err := os.Open(w.path)
	if err != nil {
		return fmt.Errorf("jsonl: reopen %s: %w", w.path, err)
	}
	defer r.Close()

	last := make([]byte, 1)
	if _, err := r.ReadAt(last, info.Size()-1); err != nil {
		return fmt.Errorf("jsonl: read tail %s: %w", w.path, err)
	}
	if last[0] == '\n' {
		return nil
	}
	if _, err := w.f.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("jsonl: terminate %s: %w", w.path, err)
	}
	return nil
}

// Path returns the log file path.
func (w *Writer) Path() string {
	return w.path
}

// Append writes one line. The write is unbuffered; call Sync to make it
// durable.
func (w *Writer) Append(line []byte) error {
	return w.AppendBatch([][]byte{line})
}

// AppendBatch writes all lines with a single write call.
func (w *Writer) AppendBatch(lines [][]byte) error {
	if len(lines) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for _, line := range lines {
		if bytes.IndexByte(line, '\n') >= 0 {
			return fmt.Errorf("jsonl: line contains a newline")
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if _, err := w.f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("jsonl: append %s: %w", w.path, err)
	}
	return nil
}

// Sync flushes written lines to stable storage.
func (w *Writer) Sync() error {
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("jsonl: sync %s: %w", w.path, err)
	}
	return nil
}

// Close closes the file and releases the lock.
func (w *Writer) Close() error {
	err := w.f.Close()
	if uerr := w.lock.Unlock(); uerr != nil && err == nil {
		err = uerr
	}
	if err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("jsonl: close %s: %w", w.path, err)
	}
	return nil
}
