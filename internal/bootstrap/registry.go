package bootstrap

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// RegistryAuth is one container registry credential.
type RegistryAuth struct {
	Host     string
	Username string
	Password string
}

type registryConfig struct {
	Auths map[string]registryEntry `json:"auths"`
}

type registryEntry struct {
	Auth string `json:"auth"`
}

// WriteRegistryAuth writes a docker-style credential file so deploy jobs
// can push to and pull from the registry. The file is created with mode
// 0600 since it holds secrets.
func WriteRegistryAuth(path string, auths ...RegistryAuth) error {
	cfg := registryConfig{Auths: make(map[string]registryEntry, len(auths))}
	for _, a := range auths {
		if a.Host == "" {
			return errors.New("registry auth with empty host")
		}
		token := base64.StdEncoding.EncodeToString([]byte(a.Username + ":" + a.Password))
		cfg.Auths[a.Host] = registryEntry{Auth: token}
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal registry config")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return errors.Wrapf(err, "create config dir %s", dir)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.Wrapf(err, "write registry config %s", path)
	}
	return nil
}
