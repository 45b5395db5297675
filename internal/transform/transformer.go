// Package transform turns the raw log into the cleaned log, emitting each
// (key, description) pair at most once across runs.
package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/DeafMist/issue-harvester/internal/dedupe"
	"github.com/DeafMist/issue-harvester/internal/jsonl"
	"github.com/DeafMist/issue-harvester/internal/state"
)

// Config tunes batching and progress reporting.
type Config struct {
	BatchSize     int
	ProgressEvery int
}

// Stats counts what happened to every line of the input.
type Stats struct {
	Lines      int
	Blank      int
	Malformed  int
	Invalid    int
	Duplicates int
	Emitted    int
	Flushes    int
}

// Transformer streams raw records into cleaned ones.
type Transformer struct {
	cfg   Config
	store *state.SeenStore
	log   *slog.Logger
}

// New creates a Transformer persisting its seen-set through store.
func New(cfg Config, store *state.SeenStore, logger *slog.Logger) *Transformer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Transformer{cfg: cfg, store: store, log: logger}
}

type run struct {
	*Transformer
	out   *jsonl.Writer
	seen  *dedupe.Set
	batch [][]byte
	stats Stats
}

// Run reads in to the end and appends new cleaned records to out.
//
// Each flush writes the batch with one call, syncs the cleaned log and then
// saves the seen-set. A crash between the two re-emits at most that batch.
func (t *Transformer) Run(ctx context.Context, in io.Reader, out *jsonl.Writer) (Stats, error) {
	r := &run{
		Transformer: t,
		out:         out,
		seen:        t.store.Load(),
		batch:       make([][]byte, 0, t.cfg.BatchSize),
	}
	t.log.Info("transform started", slog.Int("seen", r.seen.Len()))

	reader := jsonl.NewReader(in)
	for {
		if err := ctx.Err(); err != nil {
			if ferr := r.flush(); ferr != nil {
				return r.stats, ferr
			}
			return r.stats, err
		}

		line, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return r.stats, fmt.Errorf("read raw log: %w", err)
		}

		r.stats.Lines++
		if err := r.handle(line, reader.Line()); err != nil {
			return r.stats, err
		}
		if t.cfg.ProgressEvery > 0 && r.stats.Lines%t.cfg.ProgressEvery == 0 {
			t.log.Info("transform progress",
				slog.Int("lines", r.stats.Lines),
				slog.Int("emitted", r.stats.Emitted+len(r.batch)),
				slog.Int("duplicates", r.stats.Duplicates))
		}
	}

	if err := r.flush(); err != nil {
		return r.stats, err
	}
	if err := t.store.Save(r.seen); err != nil {
		return r.stats, err
	}

	t.log.Info("transform finished",
		slog.Int("lines", r.stats.Lines),
		slog.Int("emitted", r.stats.Emitted),
		slog.Int("duplicates", r.stats.Duplicates),
		slog.Int("malformed", r.stats.Malformed),
		slog.Int("invalid", r.stats.Invalid),
		slog.Int("seen", r.seen.Len()))
	return r.stats, nil
}

func (r *run) handle(line []byte, lineNo int) error {
	if len(line) == 0 {
		r.stats.Blank++
		return nil
	}
	if !json.Valid(line) {
		r.stats.Malformed++
		return nil
	}

	raw, err := Decode(line)
	if err != nil {
		r.stats.Invalid++
		r.log.Warn("skipping record", slog.Int("line", lineNo), slog.Any("err", err))
		return nil
	}

	hash := Hash(raw)
	if r.seen.IsSeen(hash) {
		r.stats.Duplicates++
		return nil
	}

	cleaned, err := Clean(raw)
	if err != nil {
		r.stats.Invalid++
		r.log.Warn("skipping record", slog.Int("line", lineNo), slog.Any("err", err))
		return nil
	}

	data, err := marshal(cleaned)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", cleaned.IssueID, err)
	}
	r.seen.MarkSeen(hash)
	r.batch = append(r.batch, data)

	if len(r.batch) >= r.cfg.BatchSize {
		return r.flush()
	}
	return nil
}

func (r *run) flush() error {
	if len(r.batch) == 0 {
		return nil
	}
	if err := r.out.AppendBatch(r.batch); err != nil {
		return err
	}
	if err := r.out.Sync(); err != nil {
		return err
	}
	if err := r.store.Save(r.seen); err != nil {
		return err
	}

	r.stats.Emitted += len(r.batch)
	r.stats.Flushes++
	r.log.Debug("batch flushed", slog.Int("records", len(r.batch)), slog.Int("emitted", r.stats.Emitted))
	r.batch = r.batch[:0]
	return nil
}

// marshal encodes v on one line without escaping <, > and &.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
