// Package providerbundle loads an optional providers.yaml file letting an
// operator maintain a reusable provider list outside cryo.toml, the way
// the teacher loads its team roster from a YAML config file.
package providerbundle

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/cryochamber/cryod/internal/config"
)

// Bundle is the parsed providers.yaml.
type Bundle struct {
	Providers []config.Provider `yaml:"providers"`
}

// Path returns the providers.yaml path for a supervised directory.
func Path(dir string) string {
	return filepath.Join(dir, "providers.yaml")
}

// Load parses providers.yaml. A missing file is not an error: it reports
// (nil, nil) so callers fall back to cryo.toml's inline list alone.
func Load(dir string) (*Bundle, error) {
	path := Path(dir)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("providerbundle: read %s: %w", path, err)
	}
	var b Bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("providerbundle: parse %s: %w", path, err)
	}
	return &b, nil
}

// ByName finds a provider in the bundle by name.
func (b *Bundle) ByName(name string) (config.Provider, bool) {
	if b == nil {
		return config.Provider{}, false
	}
	for _, p := range b.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return config.Provider{}, false
}

// Merge appends every bundle provider not already present in cfg.Providers
// by name, so the inline cryo.toml list stays authoritative and the YAML
// file only fills in gaps. rotate_on governs whether those providers get
// rotated into, not which ones are loaded.
func Merge(cfg *config.Config, b *Bundle) {
	if b == nil {
		return
	}
	have := make(map[string]bool, len(cfg.Providers))
	for _, p := range cfg.Providers {
		have[p.Name] = true
	}
	for _, p := range b.Providers {
		if have[p.Name] {
			continue
		}
		cfg.Providers = append(cfg.Providers, p)
		have[p.Name] = true
	}
}
