// Package storage persists captured job output under a per-run directory.
package storage

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// LogStore writes one log file per executed job, grouped by run ID.
type LogStore struct {
	BaseDir string
}

func NewLogStore(baseDir string) *LogStore {
	return &LogStore{BaseDir: baseDir}
}

// Save writes a job's combined output and returns the file path.
func (s *LogStore) Save(runID, stage, job string, output []byte) (string, error) {
	dir := filepath.Join(s.BaseDir, sanitize(runID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create log dir %s", dir)
	}

	path := filepath.Join(dir, sanitize(stage)+"_"+sanitize(job)+".log")
	if err := os.WriteFile(path, output, 0o644); err != nil {
		return "", errors.Wrapf(err, "write log %s", path)
	}
	return path, nil
}

// sanitize strips characters that are unsafe in filenames.
func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "job"
	}
	return b.String()
}
