// control/yaml.go
// Author: momentics <momentics@gmail.com>
//
// YAML configuration loading for the config store.

package control

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadYAMLFile parses a flat YAML mapping into a config snapshot.
func LoadYAMLFile(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("control: read config: %w", err)
	}
	cfg := make(map[string]any)
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("control: parse config: %w", err)
	}
	return cfg, nil
}

// ApplyYAMLFile loads a YAML file and merges it into the store, firing
// reload listeners.
func ApplyYAMLFile(cs *ConfigStore, path string) error {
	cfg, err := LoadYAMLFile(path)
	if err != nil {
		return err
	}
	cs.SetConfig(cfg)
	return nil
}
