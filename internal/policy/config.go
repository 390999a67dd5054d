// Package policy decides whether a capability call may proceed. Rules are
// declared per capability in YAML, evaluated in order, and every
// applicable rule runs: violations accumulate instead of stopping at the
// first hit, so a denied planner sees the complete list of problems.
package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// RuleConfig is one declarative rule. Kind selects the check; the other
// fields parameterize it and unused ones stay zero.
type RuleConfig struct {
	// Kind is one of origin_block, value_allowlist, value_blocklist,
	// content_pattern, time_window, max_items, low_integrity_block,
	// control_taint.
	Kind string `yaml:"kind"`
	// Arg names the argument the rule inspects. Empty means every
	// argument (origin_block, low_integrity_block, control_taint) or the
	// request content field (content_pattern).
	Arg       string   `yaml:"arg,omitempty"`
	Origins   []string `yaml:"origins,omitempty"`
	Values    []string `yaml:"values,omitempty"`
	Patterns  []string `yaml:"patterns,omitempty"`
	StartHour int      `yaml:"start_hour,omitempty"`
	EndHour   int      `yaml:"end_hour,omitempty"`
	Max       int      `yaml:"max,omitempty"`
	Reason    string   `yaml:"reason,omitempty"`
}

// CapabilityPolicy binds an ordered rule list to a capability name.
// The name "*" applies to every capability.
type CapabilityPolicy struct {
	Capability string       `yaml:"capability"`
	Rules      []RuleConfig `yaml:"rules"`
}

// Config is the full policy configuration.
type Config struct {
	// Default decides capabilities with no matching policy entry:
	// "allow" (default) or "deny".
	Default      string             `yaml:"default"`
	Capabilities []CapabilityPolicy `yaml:"capabilities"`
}

var ruleKinds = map[string]bool{
	"origin_block":        true,
	"value_allowlist":     true,
	"value_blocklist":     true,
	"content_pattern":     true,
	"time_window":         true,
	"max_items":           true,
	"low_integrity_block": true,
	"control_taint":       true,
}

// DefaultConfig returns a permissive configuration: everything allowed,
// no rules. Deployments are expected to ship their own policy file.
func DefaultConfig() *Config {
	return &Config{Default: "allow"}
}

// Validate rejects unknown rule kinds and malformed entries at load time
// rather than at decision time.
func (c *Config) Validate() error {
	if c.Default != "" && c.Default != "allow" && c.Default != "deny" {
		return fmt.Errorf("policy config: default must be allow or deny, got %q", c.Default)
	}
	for _, cp := range c.Capabilities {
		if cp.Capability == "" {
			return fmt.Errorf("policy config: capability entry with empty name")
		}
		for i, r := range cp.Rules {
			if !ruleKinds[r.Kind] {
				return fmt.Errorf("policy config: capability %q rule %d: unknown kind %q", cp.Capability, i, r.Kind)
			}
			if r.Kind == "time_window" && (r.StartHour < 0 || r.StartHour > 23 || r.EndHour < 0 || r.EndHour > 24) {
				return fmt.Errorf("policy config: capability %q rule %d: invalid time window %d-%d", cp.Capability, i, r.StartHour, r.EndHour)
			}
		}
	}
	return nil
}

// rulesFor collects the ordered rules applying to a capability: wildcard
// entries first, then the capability's own entries.
func (c *Config) rulesFor(capability string) ([]RuleConfig, bool) {
	var out []RuleConfig
	found := false
	for _, cp := range c.Capabilities {
		if cp.Capability == "*" {
			out = append(out, cp.Rules...)
		}
	}
	for _, cp := range c.Capabilities {
		if cp.Capability == capability {
			out = append(out, cp.Rules...)
			found = true
		}
	}
	return out, found
}

// LoadConfig loads policy configuration from a YAML file.
// Empty path falls back to ~/.planguard/policy.yaml.
// Missing file returns defaults. Invalid YAML or rules return an error.
func LoadConfig(path string) (*Config, error) {
	cfg, _, err := LoadConfigWithHash(path)
	return cfg, err
}

// LoadConfigWithHash loads policy configuration and returns its SHA-256
// hash, computed over the raw YAML bytes on disk. When no file exists the
// hash is the SHA-256 of empty input, so audit entries still carry a
// stable policy identity.
func LoadConfigWithHash(path string) (*Config, string, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return DefaultConfig(), emptyHash(), nil
		}
		path = filepath.Join(home, ".planguard", "policy.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), emptyHash(), nil
		}
		return nil, "", fmt.Errorf("failed to read policy config: %w", err)
	}

	h := sha256.Sum256(data)
	hash := "sha256:" + hex.EncodeToString(h[:])

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse policy config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, hash, nil
}

func emptyHash() string {
	h := sha256.Sum256(nil)
	return "sha256:" + hex.EncodeToString(h[:])
}
