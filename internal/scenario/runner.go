package scenario

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/planguard/planguard/internal/model"
	"github.com/planguard/planguard/internal/policy"
)

// Run evaluates all cases in a scenario against the given policy. Cases
// are independent.
func Run(s *Scenario, cfg *policy.Config) *RunResult {
	engine := policy.NewLocal(cfg, "")

	result := &RunResult{
		Name:  s.Name,
		Total: len(s.Cases),
	}

	for i, c := range s.Cases {
		req := buildRequest(&c)

		decision, _ := engine.Decide(context.Background(), req)
		actual := "deny"
		if decision.Allow {
			actual = "allow"
		}
		expected := strings.ToLower(c.Expect)

		cr := CaseResult{
			Index:      i + 1,
			Capability: c.Capability,
			Expected:   expected,
			Actual:     actual,
			Violations: decision.Violations,
		}

		if actual == expected {
			cr.Passed = true
			result.Passed++
		} else {
			result.Failed++
		}

		result.Cases = append(result.Cases, cr)
	}

	return result
}

// LoadAndRun loads a scenario YAML file and a policy file, then runs.
func LoadAndRun(path, policyPath string) (*RunResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	for i, c := range s.Cases {
		if c.Capability == "" {
			return nil, fmt.Errorf("scenario %s: case %d has no capability", path, i+1)
		}
		switch strings.ToLower(c.Expect) {
		case "allow", "deny":
		default:
			return nil, fmt.Errorf("scenario %s: case %d expects %q, want allow or deny", path, i+1, c.Expect)
		}
	}

	cfg, err := policy.LoadConfig(policyPath)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}

	result := Run(&s, cfg)
	result.File = path

	return result, nil
}

// buildRequest converts a declarative case into the request shape the
// engine sees at runtime.
func buildRequest(c *Case) *model.CallRequest {
	req := &model.CallRequest{
		Capability: c.Capability,
		Content:    c.Content,
	}
	for _, a := range c.Args {
		req.Args = append(req.Args, model.CallArg{
			Name:           a.Name,
			Raw:            a.Value,
			Label:          argLabel(a),
			ControlOrigins: toOrigins(a.ControlOrigins),
		})
	}
	return req
}

func argLabel(a Arg) model.Label {
	if len(a.Origins) == 0 && a.Integrity == "" {
		return model.UserLabel()
	}

	label := model.Label{
		Origins:         toOrigins(a.Origins),
		Integrity:       model.IntegrityHigh,
		Confidentiality: []string{model.ConfPublic},
	}
	if len(label.Origins) == 0 {
		label.Origins = []model.Origin{model.OriginUser}
	}
	for _, o := range label.Origins {
		if o.IsCapability() {
			label.Integrity = model.IntegrityLow
		}
	}
	if a.Integrity != "" {
		label.Integrity = model.Integrity(a.Integrity)
	}
	return label
}

func toOrigins(names []string) []model.Origin {
	if len(names) == 0 {
		return nil
	}
	out := make([]model.Origin, len(names))
	for i, n := range names {
		out[i] = model.Origin(n)
	}
	return out
}
