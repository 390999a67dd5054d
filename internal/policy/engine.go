package policy

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/planguard/planguard/internal/model"
)

// Engine answers the one question the gateway asks: may this call
// proceed. Implementations must be safe for concurrent use; a Decision
// with violations is a policy answer, an error is an engine fault.
type Engine interface {
	Decide(ctx context.Context, req *model.CallRequest) (model.Decision, error)
}

// ViolationError is the terminal error for a denied call. It is
// distinguished from a crash so the external planner can treat it as
// "try a different approach" rather than a system fault.
type ViolationError struct {
	Capability string
	Violations []string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("policy denied %s: %s", e.Capability, strings.Join(e.Violations, "; "))
}

// Local is the in-process engine. The configuration snapshot is swapped
// atomically on reload; a decision in flight keeps the snapshot it
// started with.
type Local struct {
	mu   sync.RWMutex
	cfg  *Config
	hash string
}

// NewLocal returns an engine over the given configuration.
func NewLocal(cfg *Config, hash string) *Local {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Local{cfg: cfg, hash: hash}
}

// Decide evaluates every applicable rule and accumulates all violations.
// The call is allowed iff none are produced.
func (l *Local) Decide(_ context.Context, req *model.CallRequest) (model.Decision, error) {
	l.mu.RLock()
	cfg := l.cfg
	l.mu.RUnlock()

	rules, found := cfg.rulesFor(req.Capability)
	if !found && cfg.Default == "deny" {
		return model.Denied(fmt.Sprintf("%s: no policy entry and default is deny", req.Capability)), nil
	}

	var violations []string
	for _, r := range rules {
		violations = append(violations, evaluateRule(r, req)...)
	}
	if len(violations) > 0 {
		return model.Denied(violations...), nil
	}
	return model.Allowed(), nil
}

// Reload swaps the configuration snapshot.
func (l *Local) Reload(cfg *Config, hash string) {
	l.mu.Lock()
	l.cfg = cfg
	l.hash = hash
	l.mu.Unlock()
}

// Hash returns the hash of the active configuration, for audit stamping.
func (l *Local) Hash() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.hash
}
