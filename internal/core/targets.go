package core

import (
	"os"
	"path"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Target kinds accepted in a manifest.
const (
	KindBuild = "build"
	KindTest  = "test"
)

var ErrUnknownKind = errors.New("unknown target kind")

// Target is a named buildable or testable unit declared in the manifest.
// Tags are free-form labels used for selection filters (for example a tag
// marking targets that require downloaded model assets).
type Target struct {
	Name    string   `yaml:"name"`
	Kind    string   `yaml:"kind"`
	Tags    []string `yaml:"tags"`
	Command string   `yaml:"command"`
}

// HasTag reports whether the target carries tag.
func (t Target) HasTag(tag string) bool {
	for _, have := range t.Tags {
		if have == tag {
			return true
		}
	}
	return false
}

// Manifest is the declared target set a pipeline selects from.
type Manifest struct {
	Targets []Target `yaml:"targets"`
}

// LoadManifest reads and validates a target manifest file.
func LoadManifest(filePath string) (*Manifest, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "read target manifest %s", filePath)
	}
	return ParseManifest(data)
}

// ParseManifest parses manifest YAML and validates it.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "parse target manifest")
	}

	seen := make(map[string]struct{}, len(m.Targets))
	for _, t := range m.Targets {
		if t.Name == "" {
			return nil, errors.New("target with empty name")
		}
		if _, dup := seen[t.Name]; dup {
			return nil, errors.Errorf("duplicate target %q", t.Name)
		}
		seen[t.Name] = struct{}{}
		if t.Kind != KindBuild && t.Kind != KindTest {
			return nil, errors.Wrapf(ErrUnknownKind, "target %q kind %q", t.Name, t.Kind)
		}
		if t.Command == "" {
			return nil, errors.Errorf("target %q has no command", t.Name)
		}
	}
	return &m, nil
}

// Selection picks targets from a manifest: all targets of the given kind
// matching the pattern, minus excluded tags and excluded exact names.
type Selection struct {
	Kind           string   `yaml:"kind"`
	Pattern        string   `yaml:"pattern"`
	ExcludeTags    []string `yaml:"exclude_tags"`
	ExcludeTargets []string `yaml:"exclude_targets"`
}

// Select resolves the selection against the manifest. The result preserves
// manifest order, so repeated runs produce identical plans.
func (m *Manifest) Select(sel *Selection) ([]Target, error) {
	if sel == nil {
		return nil, errors.New("nil selection")
	}
	if sel.Kind != KindBuild && sel.Kind != KindTest {
		return nil, errors.Wrapf(ErrUnknownKind, "selection kind %q", sel.Kind)
	}

	excluded := make(map[string]struct{}, len(sel.ExcludeTargets))
	for _, name := range sel.ExcludeTargets {
		excluded[name] = struct{}{}
	}

	var picked []Target
next:
	for _, t := range m.Targets {
		if t.Kind != sel.Kind {
			continue
		}
		if sel.Pattern != "" {
			ok, err := path.Match(sel.Pattern, t.Name)
			if err != nil {
				return nil, errors.Wrapf(err, "bad pattern %q", sel.Pattern)
			}
			if !ok {
				continue
			}
		}
		if _, skip := excluded[t.Name]; skip {
			continue
		}
		for _, tag := range sel.ExcludeTags {
			if t.HasTag(tag) {
				continue next
			}
		}
		picked = append(picked, t)
	}
	return picked, nil
}
