package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServerConfig describes one MCP server to spawn over stdio. Every tool
// it exposes becomes a registered capability.
type ServerConfig struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
}

// Override adjusts attributes of a discovered capability that the tool
// schema cannot express: trust and which parameter carries content.
type Override struct {
	Capability   string `yaml:"capability"`
	Trusted      bool   `yaml:"trusted"`
	ContentParam string `yaml:"content_param,omitempty"`
}

// Config is the capability-registry configuration file.
type Config struct {
	Servers   []ServerConfig `yaml:"servers"`
	Overrides []Override     `yaml:"overrides"`
}

// LoadConfig reads registry configuration from a YAML file. A missing
// file yields an empty config: the builtin suite still registers.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("failed to read registry config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse registry config: %w", err)
	}
	for _, s := range cfg.Servers {
		if s.Name == "" || s.Command == "" {
			return nil, fmt.Errorf("registry config: server entries need name and command")
		}
	}
	return cfg, nil
}

// overrideFor returns the override for a capability, if any.
func (c *Config) overrideFor(capability string) *Override {
	for i := range c.Overrides {
		if c.Overrides[i].Capability == capability {
			return &c.Overrides[i]
		}
	}
	return nil
}
