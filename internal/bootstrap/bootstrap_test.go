package bootstrap

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conveyor/pkg/checksum"
)

func TestEnsureFetchesAndCaches(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		_, _ = w.Write([]byte("#!/bin/sh\necho cluster-cli\n"))
	}))
	defer srv.Close()

	cache := t.TempDir()
	tc := NewToolchain(cache, map[string]Spec{
		"cluster-cli": {URL: srv.URL + "/cluster-cli"},
	})

	require.NoError(t, tc.Ensure(context.Background(), "cluster-cli"))
	assert.Equal(t, 1, hits)

	info, err := os.Stat(tc.Path("cluster-cli"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	// Present in the cache: no second fetch.
	require.NoError(t, tc.Ensure(context.Background(), "cluster-cli"))
	assert.Equal(t, 1, hits)
}

func TestEnsureVerifiesChecksum(t *testing.T) {
	body := []byte("binary-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	good := NewToolchain(t.TempDir(), map[string]Spec{
		"tool": {URL: srv.URL, SHA256: checksum.Bytes(body)},
	})
	require.NoError(t, good.Ensure(context.Background(), "tool"))

	bad := NewToolchain(t.TempDir(), map[string]Spec{
		"tool": {URL: srv.URL, SHA256: "deadbeef"},
	})
	err := bad.Ensure(context.Background(), "tool")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
	assert.NoFileExists(t, bad.Path("tool"))
}

func TestEnsureUnknownTool(t *testing.T) {
	tc := NewToolchain(t.TempDir(), nil)
	err := tc.Ensure(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownTool))
}

func TestEnsureBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	tc := NewToolchain(t.TempDir(), map[string]Spec{"tool": {URL: srv.URL}})
	err := tc.Ensure(context.Background(), "tool")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestWriteRegistryAuth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docker", "config.json")
	err := WriteRegistryAuth(path, RegistryAuth{
		Host:     "registry.example.com",
		Username: "ci",
		Password: "hunter2",
	})
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	var cfg struct {
		Auths map[string]struct {
			Auth string `json:"auth"`
		} `json:"auths"`
	}
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &cfg))

	entry, ok := cfg.Auths["registry.example.com"]
	require.True(t, ok)
	decoded, err := base64.StdEncoding.DecodeString(entry.Auth)
	require.NoError(t, err)
	assert.Equal(t, "ci:hunter2", string(decoded))
}

func TestWriteRegistryAuthRejectsEmptyHost(t *testing.T) {
	err := WriteRegistryAuth(filepath.Join(t.TempDir(), "config.json"), RegistryAuth{})
	require.Error(t, err)
}
