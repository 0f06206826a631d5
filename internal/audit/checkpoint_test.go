package audit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	testPool    = "0x0000000000000000000000000000000000000002"
	testAccount = "0x2000000000000000000000000000000000000000"
)

func TestCheckpointRoundTrip(t *testing.T) {
	store := NewCheckpointStore(filepath.Join(t.TempDir(), "nested", "cp.json"), true)
	store.now = func() time.Time { return time.Unix(1700000000, 0) }

	_, ok, err := store.Load(testPool, testAccount)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Save(testPool, testAccount, 1234))

	cp, ok, err := store.Load(testPool, testAccount)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1234), cp.LastProcessedBlock)
	require.Equal(t, "2023-11-14T22:13:20Z", cp.UpdatedAt)
}

func TestCheckpointIgnoresOtherAccount(t *testing.T) {
	store := NewCheckpointStore(filepath.Join(t.TempDir(), "cp.json"), true)
	require.NoError(t, store.Save(testPool, testAccount, 10))

	_, ok, err := store.Load(testPool, "0x3000000000000000000000000000000000000000")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCheckpointDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp.json")
	store := NewCheckpointStore(path, false)
	require.NoError(t, store.Save(testPool, testAccount, 10))

	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestCheckpointCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))

	_, _, err := NewCheckpointStore(path, true).Load(testPool, testAccount)
	require.Error(t, err)
}
