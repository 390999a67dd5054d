package alert

// WebhookConfig defines a webhook alert destination.
type WebhookConfig struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"` // ["deny", "allow"]
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// Event is the payload sent to webhook endpoints when the gateway
// records a decision.
type Event struct {
	Timestamp  string   `json:"timestamp"`
	RunID      string   `json:"run_id"`
	Capability string   `json:"capability"`
	Decision   string   `json:"decision"`
	Violations []string `json:"violations,omitempty"`
	PolicyHash string   `json:"policy_hash"`
}
