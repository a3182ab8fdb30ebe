package plugin

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ManagerConfig is the plugins.yaml document: shared policy defaults plus one block per plugin.
type ManagerConfig struct {
	Defaults IsolationPolicy         `yaml:"defaults"`
	Plugins  map[string]PluginConfig `yaml:"plugins"`
}

// PluginConfig is the configuration block for a single plugin instance.
type PluginConfig struct {
	Enabled bool             `yaml:"enabled"`
	Factory string           `yaml:"factory"`
	Config  map[string]any   `yaml:"config"`
	Policy  *IsolationPolicy `yaml:"policy"`
}

// IsolationPolicy governs what a plugin may do. AllowedHosts restricts outbound HTTP
// for plugins holding the network capability; an entry may be an exact host,
// a "*.suffix" wildcard or "*".
type IsolationPolicy struct {
	AllowedCapabilities []Capability `yaml:"allowedCapabilities"`
	DeniedCapabilities  []Capability `yaml:"deniedCapabilities"`
	AllowedHosts        []string     `yaml:"allowedHosts"`
}

// Merge returns a new policy using values from other when not present.
func (p IsolationPolicy) Merge(other IsolationPolicy) IsolationPolicy {
	if len(p.AllowedCapabilities) == 0 {
		p.AllowedCapabilities = other.AllowedCapabilities
	}
	if len(p.DeniedCapabilities) == 0 {
		p.DeniedCapabilities = other.DeniedCapabilities
	}
	if len(p.AllowedHosts) == 0 {
		p.AllowedHosts = other.AllowedHosts
	}
	return p
}

func (p IsolationPolicy) empty() bool {
	return len(p.AllowedCapabilities) == 0 && len(p.DeniedCapabilities) == 0 && len(p.AllowedHosts) == 0
}

// LoadManagerConfig reads a YAML file into a ManagerConfig.
func LoadManagerConfig(path string) (ManagerConfig, error) {
	var cfg ManagerConfig
	if path == "" {
		return cfg, errors.New("config path cannot be empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read plugin config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal plugin config: %w", err)
	}
	if cfg.Plugins == nil {
		cfg.Plugins = map[string]PluginConfig{}
	}
	return cfg, nil
}

// Validate ensures the manager configuration is internally consistent.
func (c ManagerConfig) Validate() error {
	if err := c.Defaults.validate("defaults"); err != nil {
		return err
	}
	for _, id := range slices.Sorted(maps.Keys(c.Plugins)) {
		plugin := c.Plugins[id]
		if id == "" {
			return errors.New("plugin id cannot be empty")
		}
		if plugin.Policy == nil {
			continue
		}
		if err := plugin.Policy.validate("plugin " + id); err != nil {
			return err
		}
	}
	return nil
}

func (p IsolationPolicy) validate(scope string) error {
	for _, cap := range append(append([]Capability(nil), p.AllowedCapabilities...), p.DeniedCapabilities...) {
		if !cap.Valid() {
			return fmt.Errorf("%s references unknown capability %q", scope, cap)
		}
	}
	for _, host := range p.AllowedHosts {
		host = strings.TrimSpace(host)
		if host == "" || strings.Contains(host, "/") {
			return fmt.Errorf("%s has invalid allowed host %q", scope, host)
		}
	}
	return nil
}

// FactoryName returns the factory used for the plugin, defaulting to its id.
func (p PluginConfig) FactoryName(id string) string {
	if p.Factory != "" {
		return p.Factory
	}
	return id
}
