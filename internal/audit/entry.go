package audit

// Entry is one line in the hash-chained JSONL audit log: a single
// gateway decision. All fields are flat (no map[string]any) to guarantee
// deterministic json.Marshal field order for reproducible hashing.
type Entry struct {
	Timestamp  string   `json:"ts"`
	RunID      string   `json:"run_id"`
	Capability string   `json:"capability"`
	Decision   string   `json:"decision"`
	Violations []string `json:"violations,omitempty"`
	PolicyHash string   `json:"policy_hash"`
	PrevHash   string   `json:"prev_hash"`
}

// Decision values recorded in entries.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)
