package report

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCountsFailures(t *testing.T) {
	data, err := Marshal(Suite{
		Name: "test",
		Cases: []Case{
			{Name: "//speech/tests:unit", Class: "test", Duration: 1200 * time.Millisecond},
			{Name: "//speech/tests:frontend", Class: "test", Duration: 300 * time.Millisecond, Failure: "exit status 1"},
		},
	})
	require.NoError(t, err)

	out := string(data)
	assert.Contains(t, out, `<testsuites tests="2" failures="1">`)
	assert.Contains(t, out, `name="test"`)
	assert.Contains(t, out, `time="1.200"`)
	assert.Contains(t, out, `<failure message="failed">`)
	assert.True(t, xml.Header == out[:len(xml.Header)])
}

func TestMarshalIsWellFormed(t *testing.T) {
	data, err := Marshal(Suite{
		Name: "weird",
		Cases: []Case{
			{Name: `quotes "and" <angles>`, Class: "weird", Failure: "boom <tag> & such"},
		},
	})
	require.NoError(t, err)

	var doc struct {
		XMLName xml.Name `xml:"testsuites"`
		Suites  []struct {
			Cases []struct {
				Name    string `xml:"name,attr"`
				Failure string `xml:"failure"`
			} `xml:"testcase"`
		} `xml:"testsuite"`
	}
	require.NoError(t, xml.Unmarshal(data, &doc))
	require.Len(t, doc.Suites, 1)
	require.Len(t, doc.Suites[0].Cases, 1)
	assert.Equal(t, `quotes "and" <angles>`, doc.Suites[0].Cases[0].Name)
	assert.Contains(t, doc.Suites[0].Cases[0].Failure, "boom <tag> & such")
}

func TestWriteCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "reports", "out.xml")
	err := Write(path, Suite{Name: "empty"})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `tests="0"`)
}
