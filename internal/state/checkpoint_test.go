package state_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/DeafMist/issue-harvester/internal/state"
	"github.com/stretchr/testify/require"
)

func TestCheckpointLoadMissingIsZero(t *testing.T) {
	store := state.NewCheckpointStore(filepath.Join(t.TempDir(), "cp.json"), []string{"HADOOP", "SPARK"}, nil)

	cp := store.Load()
	require.Equal(t, state.Checkpoint{"HADOOP": 0, "SPARK": 0}, cp)
}

func TestCheckpointSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cp.json")
	store := state.NewCheckpointStore(path, []string{"HADOOP", "SPARK"}, nil)

	cp := store.Load()
	cp.Advance("HADOOP", 50)
	cp.Advance("HADOOP", 17)
	require.NoError(t, store.Save(cp))

	loaded := store.Load()
	require.Equal(t, int64(67), loaded.Offset("HADOOP"))
	require.Equal(t, int64(0), loaded.Offset("SPARK"))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
}

func TestCheckpointCorruptFallsBackToZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"HADOOP": 10`), 0o644))

	cp := state.NewCheckpointStore(path, []string{"HADOOP"}, nil).Load()
	require.Equal(t, int64(0), cp.Offset("HADOOP"))
}

func TestCheckpointKeepsUnknownPartitionsAndDropsNegative(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"KAFKA": 100, "SPARK": -5}`), 0o644))

	cp := state.NewCheckpointStore(path, []string{"SPARK"}, nil).Load()
	require.Equal(t, int64(100), cp.Offset("KAFKA"))
	require.Equal(t, int64(0), cp.Offset("SPARK"))
}

func TestCheckpointAdvanceNeverDecreases(t *testing.T) {
	cp := state.Checkpoint{}
	require.Equal(t, int64(5), cp.Advance("A", 5))
	require.Equal(t, int64(5), cp.Advance("A", -3))
	require.Equal(t, int64(5), cp.Advance("A", 0))
}

func TestCheckpointSaveFailsWhenDirIsFile(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	store := state.NewCheckpointStore(filepath.Join(blocker, "cp.json"), nil, nil)
	require.Error(t, store.Save(state.Checkpoint{"A": 1}))
}
