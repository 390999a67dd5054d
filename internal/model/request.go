package model

// CallArg is one fully-resolved argument of a capability call request.
// Raw is the host representation; Label is the argument's fully-derived
// provenance; ControlOrigins is the union of origins that influenced the
// control flow under which the argument was assigned, extracted from the
// flow graph so policies can reason about control taint without holding a
// graph reference.
type CallArg struct {
	Name           string   `json:"name"`
	Raw            any      `json:"raw"`
	Label          Label    `json:"label"`
	ControlOrigins []Origin `json:"control_origins,omitempty"`
}

// CallRequest is the ephemeral request the gateway submits to the policy
// engine before performing an external call. It is also the wire shape of
// the out-of-process engine exchange.
type CallRequest struct {
	Capability string    `json:"capability"`
	Args       []CallArg `json:"args"`
	Content    string    `json:"content,omitempty"`
	RunID      string    `json:"run_id,omitempty"`
}

// Arg returns the named argument, or nil.
func (r *CallRequest) Arg(name string) *CallArg {
	for i := range r.Args {
		if r.Args[i].Name == name {
			return &r.Args[i]
		}
	}
	return nil
}

// Decision is the policy engine's answer: allowed iff no rule produced a
// violation. All applicable violations are surfaced, never only the first.
type Decision struct {
	Allow      bool     `json:"allow"`
	Violations []string `json:"violations"`
}

// Allowed is the empty decision.
func Allowed() Decision {
	return Decision{Allow: true, Violations: []string{}}
}

// Denied builds a deny decision from the given violations.
func Denied(violations ...string) Decision {
	return Decision{Allow: false, Violations: violations}
}

// NamedValue pairs an argument name (empty for positional) with a value.
// It is the call shape the evaluator hands to the capability gateway.
type NamedValue struct {
	Name  string
	Value *Value
}
