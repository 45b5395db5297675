package jsonl_test

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DeafMist/issue-harvester/internal/jsonl"
	"github.com/stretchr/testify/require"
)

func TestWriterAppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "raw.jsonl")

	w, err := jsonl.OpenWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Append([]byte(`{"key":"A-1"}`)))
	require.NoError(t, w.AppendBatch([][]byte{[]byte(`{"key":"A-2"}`), []byte(`{"key":"A-3"}`)}))
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())

	w, err = jsonl.OpenWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Append([]byte(`{"key":"A-4"}`)))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "{\"key\":\"A-1\"}\n{\"key\":\"A-2\"}\n{\"key\":\"A-3\"}\n{\"key\":\"A-4\"}\n", string(data))
}

func TestWriterRejectsEmbeddedNewline(t *testing.T) {
	w, err := jsonl.OpenWriter(filepath.Join(t.TempDir(), "raw.jsonl"))
	require.NoError(t, err)
	defer w.Close()

	require.Error(t, w.Append([]byte("{\n}")))
}

func TestWriterTerminatesDanglingLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"key\":\"A-1\"}\n{\"key\":\"A-"), 0o644))

	w, err := jsonl.OpenWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Append([]byte(`{"key":"A-2"}`)))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Equal(t, []string{`{"key":"A-1"}`, `{"key":"A-`, `{"key":"A-2"}`}, lines)
}

func TestWriterIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.jsonl")

	first, err := jsonl.OpenWriter(path)
	require.NoError(t, err)

	_, err = jsonl.OpenWriter(path)
	require.ErrorIs(t, err, jsonl.ErrLocked)

	require.NoError(t, first.Close())

	second, err := jsonl.OpenWriter(path)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestReaderYieldsTrimmedLines(t *testing.T) {
	r := jsonl.NewReader(strings.NewReader("one\n\n  two  \nthree"))

	var got []string
	for {
		line, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, string(line))
	}
	require.Equal(t, []string{"one", "", "two", "three"}, got)
	require.Equal(t, 4, r.Line())
}

func TestReaderHandlesLongLines(t *testing.T) {
	long := strings.Repeat("x", 1<<20)
	r := jsonl.NewReader(strings.NewReader(long + "\n"))

	line, err := r.Next()
	require.NoError(t, err)
	require.Len(t, line, len(long))

	_, err = r.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestCountLines(t *testing.T) {
	dir := t.TempDir()
	n, err := jsonl.CountLines(filepath.Join(dir, "missing.jsonl"))
	require.NoError(t, err)
	require.Zero(t, n)

	path := filepath.Join(dir, "log.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("a\n\nb\nc\n"), 0o644))
	n, err = jsonl.CountLines(path)
	require.NoError(t, err)
	require.Equal(t, 3, n)
}
