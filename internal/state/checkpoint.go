package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
)

// Checkpoint maps a partition to the next offset to fetch. The offset equals
// the number of records fetched so far for that partition.
type Checkpoint map[string]int64

// Offset returns the resume offset of partition, zero when unknown.
func (c Checkpoint) Offset(partition string) int64 {
	return c[partition]
}

// Advance moves partition forward by n records and returns the new offset.
// Negative n is ignored so offsets never go backwards.
func (c Checkpoint) Advance(partition string, n int) int64 {
	if n > 0 {
		c[partition] += int64(n)
	}
	return c[partition]
}

// CheckpointStore persists a Checkpoint as a JSON object.
type CheckpointStore struct {
	path       string
	partitions []string
	log        *slog.Logger
}

// NewCheckpointStore creates a store for path. Partitions listed here are
// always present in loaded checkpoints, starting at zero.
func NewCheckpointStore(path string, partitions []string, logger *slog.Logger) *CheckpointStore {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &CheckpointStore{path: path, partitions: partitions, log: logger}
}

// Path returns the file backing the store.
func (s *CheckpointStore) Path() string {
	return s.path
}

// Load reads the persisted checkpoint. A missing, unreadable or corrupt file
// yields an all-zero checkpoint.
func (s *CheckpointStore) Load() Checkpoint {
	cp := make(Checkpoint, len(s.partitions))
	for _, p := range s.partitions {
		cp[p] = 0
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("checkpoint unreadable, starting from zero", slog.String("path", s.path), slog.Any("err", err))
		}
		return cp
	}

	var persisted map[string]int64
	if err := json.Unmarshal(data, &persisted); err != nil {
		s.log.Warn("checkpoint corrupt, starting from zero", slog.String("path", s.path), slog.Any("err", err))
		return cp
	}

	for p, offset := range persisted {
		if offset < 0 {
			s.log.Warn("ignoring negative checkpoint offset", slog.String("partition", p), slog.Int64("offset", offset))
			continue
		}
		cp[p] = offset
	}
	return cp
}

// Save overwrites the persisted checkpoint atomically.
func (s *CheckpointStore) Save(cp Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", s.path, err)
	}
	return nil
}
