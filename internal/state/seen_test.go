package state_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/DeafMist/issue-harvester/internal/dedupe"
	"github.com/DeafMist/issue-harvester/internal/state"
	"github.com/stretchr/testify/require"
)

func TestSeenStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen.json")
	store := state.NewSeenStore(path, nil)

	require.Equal(t, 0, store.Load().Len())
	require.NoError(t, store.Save(dedupe.NewSet("bb", "aa")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.JSONEq(t, `["aa","bb"]`, string(data))

	loaded := store.Load()
	require.True(t, loaded.IsSeen("aa"))
	require.True(t, loaded.IsSeen("bb"))
}

func TestSeenStoreCorruptIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"not":"an array"}`), 0o644))

	require.Equal(t, 0, state.NewSeenStore(path, nil).Load().Len())
}
