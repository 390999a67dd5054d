package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/planguard/planguard/internal/model"
)

// Client asks an out-of-process policy engine for decisions over HTTP
// JSON. It fails closed: any transport or protocol failure is a deny
// with an explanatory violation, never a silent allow.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a remote engine client. timeout bounds each decision
// round trip; zero means 5 seconds.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Decide posts the request to /v1/decide and returns the engine's
// decision. Errors are reported through the deny decision so callers
// treat an unreachable engine exactly like a denial.
func (c *Client) Decide(ctx context.Context, req *model.CallRequest) (model.Decision, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return model.Denied(fmt.Sprintf("policy engine request encoding failed: %v", err)), nil
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/decide", bytes.NewReader(body))
	if err != nil {
		return model.Denied(fmt.Sprintf("policy engine request failed: %v", err)), nil
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return model.Denied(fmt.Sprintf("policy engine unreachable: %v", err)), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Denied(fmt.Sprintf("policy engine returned status %d", resp.StatusCode)), nil
	}
	var decision model.Decision
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		return model.Denied(fmt.Sprintf("policy engine response malformed: %v", err)), nil
	}
	if !decision.Allow && len(decision.Violations) == 0 {
		decision.Violations = []string{"policy engine denied without detail"}
	}
	return decision, nil
}
