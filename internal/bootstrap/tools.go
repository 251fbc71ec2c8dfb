// Package bootstrap prepares the external tools a job declares: static
// binaries fetched into a local cache (a container runtime, a cluster CLI)
// and registry credential files for deploy jobs.
package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"conveyor/pkg/checksum"
)

var ErrUnknownTool = errors.New("unknown tool")

// Spec describes where a tool binary comes from and, optionally, the
// SHA-256 it must match.
type Spec struct {
	URL    string `yaml:"url"`
	SHA256 string `yaml:"sha256"`
}

// Toolchain fetches tool binaries into a cache directory. A tool already
// present in the cache is not fetched again.
type Toolchain struct {
	CacheDir string
	Client   *http.Client
	Log      *slog.Logger

	specs map[string]Spec
}

func NewToolchain(cacheDir string, specs map[string]Spec) *Toolchain {
	return &Toolchain{
		CacheDir: cacheDir,
		Client:   &http.Client{Timeout: 2 * time.Minute},
		Log:      slog.Default(),
		specs:    specs,
	}
}

// Path returns where the named tool lives in the cache.
func (t *Toolchain) Path(name string) string {
	return filepath.Join(t.CacheDir, name)
}

// Ensure makes the named tools available, fetching any that are missing.
func (t *Toolchain) Ensure(ctx context.Context, names ...string) error {
	for _, name := range names {
		spec, ok := t.specs[name]
		if !ok {
			return errors.Wrap(ErrUnknownTool, name)
		}
		if _, err := os.Stat(t.Path(name)); err == nil {
			t.Log.Debug("tool cached", "tool", name)
			continue
		}
		if err := t.fetch(ctx, name, spec); err != nil {
			return errors.Wrapf(err, "fetch tool %q", name)
		}
	}
	return nil
}

func (t *Toolchain) fetch(ctx context.Context, name string, spec Spec) error {
	if err := os.MkdirAll(t.CacheDir, 0o755); err != nil {
		return errors.Wrapf(err, "create cache dir %s", t.CacheDir)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.URL, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	resp, err := t.Client.Do(req)
	if err != nil {
		return errors.Wrap(err, "download")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("download %s: status %d", spec.URL, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(t.CacheDir, name+".partial-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write binary")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}

	if spec.SHA256 != "" {
		sum, err := checksum.File(tmp.Name())
		if err != nil {
			return errors.Wrap(err, "checksum binary")
		}
		if sum != spec.SHA256 {
			return errors.Errorf("checksum mismatch: want %s, got %s", spec.SHA256, sum)
		}
	}

	if err := os.Chmod(tmp.Name(), 0o755); err != nil {
		return errors.Wrap(err, "mark executable")
	}
	if err := os.Rename(tmp.Name(), t.Path(name)); err != nil {
		return errors.Wrap(err, "install binary")
	}
	t.Log.Info("tool fetched", "tool", name, "url", spec.URL)
	return nil
}
