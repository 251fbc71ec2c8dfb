package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveGroupsByRun(t *testing.T) {
	store := NewLogStore(t.TempDir())

	path, err := store.Save("run-1", "test", "unit", []byte("all good\n"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.BaseDir, "run-1", "test_unit.log"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "all good\n", string(data))
}

func TestSaveSanitizesNames(t *testing.T) {
	store := NewLogStore(t.TempDir())

	path, err := store.Save("run/2", "test", "unit tests (fast)", nil)
	require.NoError(t, err)
	assert.NotContains(t, filepath.Base(path), " ")
	assert.NotContains(t, filepath.Base(path), "(")
	assert.FileExists(t, path)
}
