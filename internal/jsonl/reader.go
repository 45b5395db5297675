package jsonl

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

// Reader yields the lines of a log one at a time. Lines have no length limit.
type Reader struct {
	br   *bufio.Reader
	line int
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next line with surrounding whitespace trimmed. Blank lines
// are returned as empty slices. It returns io.EOF after the last line.
func (r *Reader) Next() ([]byte, error) {
	raw, err := r.br.ReadBytes('\n')
	if len(raw) == 0 && err != nil {
		return nil, err
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	r.line++
	return bytes.TrimSpace(raw), nil
}

// Line is the 1-based number of the line last returned by Next.
func (r *Reader) Line() int {
	return r.line
}

// CountLines counts non-blank lines of the log at path. A missing file has
// zero lines.
func CountLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("jsonl: open %s: %w", path, err)
	}
	defer f.Close()

	r := NewReader(f)
	n := 0
	for {
		line, err := r.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("jsonl: read %s: %w", path, err)
		}
		if len(line) > 0 {
			n++
		}
	}
}
