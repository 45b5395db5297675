package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/DeafMist/issue-harvester/internal/dedupe"
)

// SeenStore persists the transformer's seen-set as a JSON array of hex
// digests.
type SeenStore struct {
	path string
	log  *slog.Logger
}

// NewSeenStore creates a store for path.
func NewSeenStore(path string, logger *slog.Logger) *SeenStore {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &SeenStore{path: path, log: logger}
}

// Path returns the file backing the store.
func (s *SeenStore) Path() string {
	return s.path
}

// Load returns the persisted set, or an empty one if the file is missing or
// corrupt.
func (s *SeenStore) Load() *dedupe.Set {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("seen-set unreadable, starting empty", slog.String("path", s.path), slog.Any("err", err))
		}
		return dedupe.NewSet()
	}

	var hashes []string
	if err := json.Unmarshal(data, &hashes); err != nil {
		s.log.Warn("seen-set corrupt, starting empty", slog.String("path", s.path), slog.Any("err", err))
		return dedupe.NewSet()
	}
	return dedupe.NewSet(hashes...)
}

// Save overwrites the persisted set atomically.
func (s *SeenStore) Save(set *dedupe.Set) error {
	data, err := json.Marshal(set.Sorted())
	if err != nil {
		return fmt.Errorf("marshal seen-set: %w", err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("save seen-set %s: %w", s.path, err)
	}
	return nil
}
