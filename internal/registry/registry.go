// Package registry holds the set of capabilities a script may call.
// Capabilities come from static registration (builtin demo suite, test
// doubles) or from MCP servers discovered at startup. The registry is
// shared read-only across concurrent runs and swapped, never mutated,
// after serving begins.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ParamSpec declares one capability parameter. Content marks the
// parameter whose raw text the gateway surfaces for content-pattern
// policies (message bodies, file contents).
type ParamSpec struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Required bool   `yaml:"required"`
	Content  bool   `yaml:"content"`
}

// InvokeFunc performs the external effect. Arguments arrive as raw host
// values keyed by parameter name; labels never cross this boundary.
type InvokeFunc func(ctx context.Context, args map[string]any) (any, error)

// Capability is one registered external operation.
type Capability struct {
	Name        string
	Description string
	Params      []ParamSpec
	// Trusted capabilities produce high-integrity results (a clock, a
	// same-trust-domain directory). Everything else is low integrity.
	Trusted bool
	Invoke  InvokeFunc
}

// Param returns the named parameter spec, or nil.
func (c *Capability) Param(name string) *ParamSpec {
	for i := range c.Params {
		if c.Params[i].Name == name {
			return &c.Params[i]
		}
	}
	return nil
}

// Registry is a concurrent-read capability table.
type Registry struct {
	mu   sync.RWMutex
	caps map[string]*Capability
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{caps: map[string]*Capability{}}
}

// Register adds a capability. Duplicate names are an error: two providers
// claiming one name would make call routing ambiguous.
func (r *Registry) Register(c *Capability) error {
	if c.Name == "" {
		return fmt.Errorf("registry: capability with empty name")
	}
	if c.Invoke == nil {
		return fmt.Errorf("registry: capability %q has no invoke function", c.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.caps[c.Name]; exists {
		return fmt.Errorf("registry: capability %q already registered", c.Name)
	}
	r.caps[c.Name] = c
	return nil
}

// Lookup returns the named capability, or nil.
func (r *Registry) Lookup(name string) *Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.caps[name]
}

// Names returns all registered capability names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.caps))
	for name := range r.caps {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
