package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempJournal(t *testing.T) (*Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.jsonl")
	j, err := Open(path)
	require.NoError(t, err)
	return j, path
}

func appendEntry(t *testing.T, j *Journal, runID, job, status string) {
	t.Helper()
	require.NoError(t, j.Append(&Entry{
		RunID:  runID,
		Branch: "main",
		Stage:  "test",
		Job:    job,
		Status: status,
	}))
}

func TestAppendChainsEntries(t *testing.T) {
	j, _ := tempJournal(t)
	appendEntry(t, j, "run-1", "unit", "succeeded")
	appendEntry(t, j, "run-1", "frontend", "failed")

	entries := j.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, 0, entries[0].Index)
	assert.Empty(t, entries[0].PrevHash)
	assert.Equal(t, entries[0].Hash, entries[1].PrevHash)
	assert.NoError(t, j.Verify())
}

func TestReopenPreservesChain(t *testing.T) {
	j, path := tempJournal(t)
	appendEntry(t, j, "run-1", "unit", "succeeded")
	appendEntry(t, j, "run-2", "unit", "succeeded")

	reopened, err := Open(path)
	require.NoError(t, err)
	require.Len(t, reopened.Entries(), 2)
	assert.NoError(t, reopened.Verify())

	appendEntry(t, reopened, "run-3", "unit", "succeeded")
	assert.NoError(t, reopened.Verify())
}

func TestVerifyDetectsTampering(t *testing.T) {
	j, path := tempJournal(t)
	appendEntry(t, j, "run-1", "unit", "failed")
	appendEntry(t, j, "run-1", "frontend", "succeeded")

	// Rewrite the first entry with a flipped status, keeping its hash.
	entries := j.Entries()
	entries[0].Status = "succeeded"
	f, err := os.Create(path)
	require.NoError(t, err)
	enc := json.NewEncoder(f)
	for _, e := range entries {
		require.NoError(t, enc.Encode(e))
	}
	require.NoError(t, f.Close())

	tampered, err := Open(path)
	require.NoError(t, err)
	err = tampered.Verify()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash mismatch")
}

func TestVerifyDetectsBrokenChain(t *testing.T) {
	j, path := tempJournal(t)
	appendEntry(t, j, "run-1", "a", "succeeded")
	appendEntry(t, j, "run-1", "b", "succeeded")
	appendEntry(t, j, "run-1", "c", "succeeded")

	// Drop the middle entry.
	entries := j.Entries()
	f, err := os.Create(path)
	require.NoError(t, err)
	enc := json.NewEncoder(f)
	require.NoError(t, enc.Encode(entries[0]))
	require.NoError(t, enc.Encode(entries[2]))
	require.NoError(t, f.Close())

	truncated, err := Open(path)
	require.NoError(t, err)
	require.Error(t, truncated.Verify())
}

func TestOpenMissingFile(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "absent.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, j.Entries())
	assert.NoError(t, j.Verify())
}
