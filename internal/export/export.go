// Package export flattens the cleaned log into a tabular artifact.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/DeafMist/issue-harvester/internal/jsonl"
	"github.com/DeafMist/issue-harvester/internal/models"
)

// Stats counts exported and skipped lines.
type Stats struct {
	Rows    int
	Skipped int
}

// Copy streams every decodable record of in into sink. Blank and malformed
// lines are skipped. It does not close sink.
func Copy(ctx context.Context, in io.Reader, sink Sink) (Stats, error) {
	var stats Stats
	r := jsonl.NewReader(in)
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		line, err := r.Next()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, fmt.Errorf("read cleaned log: %w", err)
		}
		if len(line) == 0 {
			continue
		}

		var rec models.CleanedIssue
		if err := json.Unmarshal(line, &rec); err != nil {
			stats.Skipped++
			continue
		}
		if err := sink.Write(NewRow(rec)); err != nil {
			return stats, err
		}
		stats.Rows++
	}
}

// WriteFile exports the cleaned log at src into dst in format f. dst is
// replaced atomically; a missing src produces a header-only artifact.
func WriteFile(ctx context.Context, src, dst string, f Format, logger *slog.Logger) (Stats, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	in, err := os.Open(src)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Warn("cleaned log missing, exporting empty file", slog.String("path", src))
		in = nil
	case err != nil:
		return Stats{}, fmt.Errorf("open cleaned log: %w", err)
	default:
		defer in.Close()
	}

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Stats{}, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(dst)+".*.tmp")
	if err != nil {
		return Stats{}, fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(err error) (Stats, error) {
		tmp.Close()
		os.Remove(tmpName)
		return Stats{}, err
	}

	sink, err := NewSink(f, tmp)
	if err != nil {
		return fail(err)
	}

	var stats Stats
	if in != nil {
		stats, err = Copy(ctx, in, sink)
		if err != nil {
			return fail(err)
		}
	}
	if err := sink.Close(); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("sync export: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return Stats{}, fmt.Errorf("close export: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return Stats{}, fmt.Errorf("rename export: %w", err)
	}

	logger.Info("export written",
		slog.String("path", dst),
		slog.String("format", string(f)),
		slog.Int("rows", stats.Rows),
		slog.Int("skipped", stats.Skipped))
	return stats, nil
}
