// Package scenario runs policy assertions from YAML files: each case
// builds a labeled capability call request, evaluates it against a
// policy, and checks the expected decision. Used in CI to gate policy
// changes.
package scenario

// Arg is one labeled argument of the call under test.
type Arg struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
	// Origins the value is declared to carry, e.g.
	// ["capability:get_received_emails"]. Empty means user origin.
	Origins []string `yaml:"origins,omitempty"`
	// Integrity is "low" or "high". Empty defaults to high for pure
	// user origins and low when a capability origin is present.
	Integrity string `yaml:"integrity,omitempty"`
	// ControlOrigins the value was assigned under, for control_taint
	// rules.
	ControlOrigins []string `yaml:"control_origins,omitempty"`
}

// Case is one test case within a scenario.
type Case struct {
	Capability string `yaml:"capability"`
	Args       []Arg  `yaml:"args,omitempty"`
	Content    string `yaml:"content,omitempty"`
	Expect     string `yaml:"expect"`
}

// Scenario is a named collection of policy test cases.
type Scenario struct {
	Name  string `yaml:"name"`
	Cases []Case `yaml:"cases"`
}

// CaseResult is the outcome of evaluating one test case.
type CaseResult struct {
	Index      int      `json:"index"`
	Passed     bool     `json:"passed"`
	Capability string   `json:"capability"`
	Expected   string   `json:"expected"`
	Actual     string   `json:"actual"`
	Violations []string `json:"violations,omitempty"`
}

// RunResult is the outcome of running all cases in one scenario file.
type RunResult struct {
	File   string       `json:"file"`
	Name   string       `json:"name"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Cases  []CaseResult `json:"cases"`
}
