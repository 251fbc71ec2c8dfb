package drawer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrawClustersAndEdges(t *testing.T) {
	d := New()
	require.NoError(t, d.AddJob("build", "compile", "succeeded"))
	require.NoError(t, d.AddJob("test", "unit", "failed"))
	require.NoError(t, d.AddJob("test", "frontend", "pending"))
	require.NoError(t, d.AddNeed("unit", "frontend"))

	var buf bytes.Buffer
	require.NoError(t, d.Draw(&buf))
	out := buf.String()

	assert.Contains(t, out, "digraph pipeline {")
	assert.Contains(t, out, `label="build"`)
	assert.Contains(t, out, `label="test"`)
	assert.Contains(t, out, `"unit" -> "frontend";`)

	// Colors come out as well-formed hex values.
	assert.Contains(t, out, `"compile" [fillcolor="#2ecc71"]`)
	assert.Contains(t, out, `"unit" [fillcolor="#e74c3c"]`)

	// Stage clusters appear in insertion order.
	assert.Less(t, strings.Index(out, `label="build"`), strings.Index(out, `label="test"`))
}

func TestDrawIsDeterministic(t *testing.T) {
	build := func() string {
		d := New()
		_ = d.AddJob("s1", "b", "pending")
		_ = d.AddJob("s1", "a", "pending")
		_ = d.AddJob("s2", "c", "pending")
		_ = d.AddNeed("a", "b")
		var buf bytes.Buffer
		require.NoError(t, d.Draw(&buf))
		return buf.String()
	}
	assert.Equal(t, build(), build())
}

func TestAddDuplicateJobFails(t *testing.T) {
	d := New()
	require.NoError(t, d.AddJob("s", "a", "pending"))
	require.Error(t, d.AddJob("s", "a", "pending"))
}
