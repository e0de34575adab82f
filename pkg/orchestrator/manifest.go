package orchestrator

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Manifest is a service package's manifest.yaml: enough to validate the
// package and to let UpgradeFromCoordinator compare versions without
// re-downloading the archive.
type Manifest struct {
	Name         string   `yaml:"name"`
	Version      string   `yaml:"version"`
	Dependencies []string `yaml:"dependencies"`
}

func parseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest.yaml: %w", err)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("manifest.yaml: name is required")
	}
	if m.Version == "" {
		return nil, fmt.Errorf("manifest.yaml: version is required")
	}
	return &m, nil
}
