// Package scraper harvests every partition of a paginated source into the
// raw log, checkpointing after each page so a killed run resumes where it
// stopped.
package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/DeafMist/issue-harvester/internal/fetch"
	"github.com/DeafMist/issue-harvester/internal/jsonl"
	"github.com/DeafMist/issue-harvester/internal/state"
)

// Source returns one page of records of a partition. An empty page means the
// partition is exhausted. fetch.ErrNoResponse means the page could not be
// obtained.
type Source interface {
	FetchPage(ctx context.Context, partition string, offset int64, limit int) ([]json.RawMessage, error)
}

// Config controls pagination.
type Config struct {
	Partitions []string
	PageSize   int
	// Politeness is the minimum delay between two page requests. Zero
	// disables throttling.
	Politeness time.Duration
}

// Stats summarizes one run.
type Stats struct {
	Pages   int
	Records int
	Stalled []string
}

// Scraper drives Source into the raw log.
type Scraper struct {
	cfg     Config
	src     Source
	store   *state.CheckpointStore
	out     *jsonl.Writer
	limiter *rate.Limiter
	log     *slog.Logger
}

// New creates a Scraper. The caller owns out and closes it after Run.
func New(cfg Config, src Source, store *state.CheckpointStore, out *jsonl.Writer, logger *slog.Logger) *Scraper {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	limit := rate.Inf
	if cfg.Politeness > 0 {
		limit = rate.Every(cfg.Politeness)
	}

	return &Scraper{
		cfg:     cfg,
		src:     src,
		store:   store,
		out:     out,
		limiter: rate.NewLimiter(limit, 1),
		log:     logger,
	}
}

// Run harvests partitions in configured order until each returns an empty
// page. It returns on the first write or checkpoint failure, or when ctx is
// canceled; the persisted checkpoint always matches what the raw log holds.
func (s *Scraper) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	cp := s.store.Load()

	for _, partition := range s.cfg.Partitions {
		s.log.Info("scraping partition", slog.String("partition", partition), slog.Int64("offset", cp.Offset(partition)))

		stalled, err := s.scrapePartition(ctx, partition, cp, &stats)
		if err != nil {
			return stats, err
		}
		if stalled {
			stats.Stalled = append(stats.Stalled, partition)
		}
	}

	return stats, nil
}

func (s *Scraper) scrapePartition(ctx context.Context, partition string, cp state.Checkpoint, stats *Stats) (bool, error) {
	var buf bytes.Buffer
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return false, err
		}

		offset := cp.Offset(partition)
		page, err := s.src.FetchPage(ctx, partition, offset, s.cfg.PageSize)
		if err != nil {
			if errors.Is(err, fetch.ErrNoResponse) {
				s.log.Warn("no response, partition stalled",
					slog.String("partition", partition),
					slog.Int64("offset", offset),
					slog.Any("err", err))
				return true, nil
			}
			return false, fmt.Errorf("fetch %s at %d: %w", partition, offset, err)
		}
		if len(page) == 0 {
			s.log.Info("partition done", slog.String("partition", partition), slog.Int64("offset", offset))
			return false, nil
		}

		for _, record := range page {
			buf.Reset()
			if err := json.Compact(&buf, record); err != nil {
				return false, fmt.Errorf("compact record of %s: %w", partition, err)
			}
			if err := s.out.Append(buf.Bytes()); err != nil {
				return false, err
			}
		}
		if err := s.out.Sync(); err != nil {
			return false, err
		}

		next := cp.Advance(partition, len(page))
		if err := s.store.Save(cp); err != nil {
			return false, err
		}

		stats.Pages++
		stats.Records += len(page)
		s.log.Info("page stored",
			slog.String("partition", partition),
			slog.Int("records", len(page)),
			slog.Int64("offset", next))
	}
}
