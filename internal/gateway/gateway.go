// Package gateway is the single path between the interpreter and the
// outside world. Every capability call is labeled, submitted to the
// policy engine, audited, and only then performed. Nothing else in the
// process may produce an external effect.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/planguard/planguard/internal/alert"
	"github.com/planguard/planguard/internal/audit"
	"github.com/planguard/planguard/internal/eval"
	"github.com/planguard/planguard/internal/flowgraph"
	"github.com/planguard/planguard/internal/model"
	"github.com/planguard/planguard/internal/policy"
	"github.com/planguard/planguard/internal/registry"
)

// CapabilityError wraps a failure inside an allowed capability call.
// Timeout is set when the call exceeded the configured deadline.
type CapabilityError struct {
	Capability string
	Timeout    bool
	Err        error
}

func (e *CapabilityError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("capability %s timed out", e.Capability)
	}
	return fmt.Sprintf("capability %s failed: %v", e.Capability, e.Err)
}

func (e *CapabilityError) Unwrap() error { return e.Err }

// Options configure the optional collaborators of a Gateway. Audit and
// Alerts may be nil; Timeout zero means no per-call deadline.
type Options struct {
	RunID   string
	Timeout time.Duration
	Audit   *audit.Log
	Alerts  *alert.Dispatcher
}

// New builds a gateway over a capability registry and a policy engine.
// The graph must be the same graph the evaluator records into.
func New(reg *registry.Registry, engine policy.Engine, graph *flowgraph.Graph, opts Options) *Gateway {
	return &Gateway{
		reg:    reg,
		engine: engine,
		graph:  graph,
		opts:   opts,
	}
}

// Gateway implements eval.Caller.
type Gateway struct {
	reg    *registry.Registry
	engine policy.Engine
	graph  *flowgraph.Graph
	opts   Options
}

var _ eval.Caller = (*Gateway)(nil)

// Invoke resolves, labels, polices, audits, and performs one capability
// call. On denial the external effect never happens and the returned
// error carries every violation.
func (g *Gateway) Invoke(ctx context.Context, capability string, args []model.NamedValue, controlDeps []int) (*model.Value, error) {
	c := g.reg.Lookup(capability)
	if c == nil {
		return nil, &eval.Error{Kind: eval.ErrUndefined, Msg: fmt.Sprintf("unknown function %q", capability)}
	}

	bound, err := bindParams(c, args)
	if err != nil {
		return nil, err
	}

	// The attempt is recorded before the decision so denied calls still
	// appear in the exported graph.
	argDeps := mergeArgDeps(bound)
	argLabels := make([]model.Label, 0, len(bound))
	for _, b := range bound {
		argLabels = append(argLabels, b.value.Label)
	}
	resultLabel := model.FromCapability(capability, c.Trusted, argLabels...)
	callID := g.graph.RecordCall(capability, resultLabel, argDeps)
	for _, d := range controlDeps {
		g.graph.AddControlEdge(d, callID)
	}

	req := g.buildRequest(c, bound, controlDeps)

	decision, derr := g.engine.Decide(ctx, req)
	if derr != nil {
		// Fail closed: an unreachable engine denies.
		decision = model.Denied(fmt.Sprintf("policy engine unavailable: %v", derr))
	}

	g.recordDecision(req, decision)

	if !decision.Allow {
		return nil, &policy.ViolationError{Capability: capability, Violations: decision.Violations}
	}

	raw := make(map[string]any, len(bound))
	for _, b := range bound {
		raw[b.param] = b.value.Raw()
	}

	callCtx := ctx
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}

	out, err := c.Invoke(callCtx, raw)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &CapabilityError{Capability: capability, Timeout: true, Err: err}
		}
		return nil, &CapabilityError{Capability: capability, Err: err}
	}

	return fromRaw(out, resultLabel).Restamp(resultLabel, []int{callID}), nil
}

// boundArg pairs a declared parameter name with the value supplied for it.
type boundArg struct {
	param string
	value *model.Value
}

// bindParams maps the script-side arguments onto the capability's
// declared parameters: positionals in declaration order, keywords by
// name, required parameters enforced.
func bindParams(c *registry.Capability, args []model.NamedValue) ([]boundArg, error) {
	seen := map[string]bool{}
	var bound []boundArg
	positional := 0

	for _, a := range args {
		name := a.Name
		if name == "" {
			if positional >= len(c.Params) {
				return nil, &eval.Error{
					Kind: eval.ErrType,
					Msg:  fmt.Sprintf("%s() takes at most %d arguments", c.Name, len(c.Params)),
				}
			}
			name = c.Params[positional].Name
			positional++
		} else if c.Param(name) == nil {
			return nil, &eval.Error{
				Kind: eval.ErrType,
				Msg:  fmt.Sprintf("%s() has no parameter %q", c.Name, name),
			}
		}
		if seen[name] {
			return nil, &eval.Error{
				Kind: eval.ErrType,
				Msg:  fmt.Sprintf("%s() got multiple values for %q", c.Name, name),
			}
		}
		seen[name] = true
		bound = append(bound, boundArg{param: name, value: a.Value})
	}

	for _, p := range c.Params {
		if p.Required && !seen[p.Name] {
			return nil, &eval.Error{
				Kind: eval.ErrType,
				Msg:  fmt.Sprintf("%s() missing required argument %q", c.Name, p.Name),
			}
		}
	}
	return bound, nil
}

// buildRequest assembles the policy engine request: raw values, full
// labels, and per-argument control origins drawn from the flow graph
// plus the currently guarding conditions.
func (g *Gateway) buildRequest(c *registry.Capability, bound []boundArg, controlDeps []int) *model.CallRequest {
	guardOrigins := g.guardOrigins(controlDeps)

	req := &model.CallRequest{
		Capability: c.Name,
		RunID:      g.opts.RunID,
	}
	for _, b := range bound {
		origins := unionOrigins(g.graph.ControlOrigins(b.value.Deps), guardOrigins)
		req.Args = append(req.Args, model.CallArg{
			Name:           b.param,
			Raw:            b.value.Raw(),
			Label:          b.value.Label,
			ControlOrigins: origins,
		})
	}

	for _, b := range bound {
		spec := c.Param(b.param)
		if spec != nil && spec.Content && b.value.Kind == model.KindString {
			req.Content = b.value.Str
			break
		}
	}
	return req
}

// guardOrigins collects the origins of the condition nodes currently
// guarding execution. Node labels are cumulative over data ancestry, so
// reading the guard labels directly suffices.
func (g *Gateway) guardOrigins(controlDeps []int) []model.Origin {
	var out []model.Origin
	for _, id := range controlDeps {
		n := g.graph.Node(id)
		if n == nil {
			continue
		}
		out = unionOrigins(out, n.Label.Origins)
	}
	return out
}

func unionOrigins(a, b []model.Origin) []model.Origin {
	seen := map[model.Origin]bool{}
	var out []model.Origin
	for _, set := range [][]model.Origin{a, b} {
		for _, o := range set {
			if !seen[o] {
				seen[o] = true
				out = append(out, o)
			}
		}
	}
	return out
}

func mergeArgDeps(bound []boundArg) []int {
	seen := map[int]bool{}
	var out []int
	for _, b := range bound {
		for _, d := range b.value.Deps {
			if !seen[d] {
				seen[d] = true
				out = append(out, d)
			}
		}
	}
	return out
}

func (g *Gateway) recordDecision(req *model.CallRequest, decision model.Decision) {
	verdict := audit.DecisionAllow
	if !decision.Allow {
		verdict = audit.DecisionDeny
	}

	var policyHash string
	if h, ok := g.engine.(interface{ Hash() string }); ok {
		policyHash = h.Hash()
	}

	if g.opts.Audit != nil {
		entry := audit.Entry{
			RunID:      req.RunID,
			Capability: req.Capability,
			Decision:   verdict,
			PolicyHash: policyHash,
		}
		if !decision.Allow {
			entry.Violations = decision.Violations
		}
		// Audit write failures must not turn a deny into an allow or
		// vice versa; the decision stands either way.
		_ = g.opts.Audit.Record(entry)
	}

	if g.opts.Alerts != nil {
		g.opts.Alerts.Dispatch(alert.Event{
			RunID:      req.RunID,
			Capability: req.Capability,
			Decision:   verdict,
			Violations: decision.Violations,
			PolicyHash: policyHash,
		})
	}
}
