package alert

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event Event) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event Event) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event Event) ([]byte, error) {
	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("planguard: %s", event.Decision),
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Capability:* %s", event.Capability)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Run:* %s", event.RunID)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Violations:* %s", violationSummary(event))},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Policy:* %s", event.PolicyHash)},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event Event) ([]byte, error) {
	severity := "info"
	if event.Decision == "deny" {
		severity = "error"
	}

	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  fmt.Sprintf("planguard %s: %s", event.Decision, event.Capability),
			"severity": severity,
			"source":   "planguard",
			"custom_details": map[string]any{
				"capability":  event.Capability,
				"run_id":      event.RunID,
				"violations":  event.Violations,
				"policy_hash": event.PolicyHash,
			},
		},
	}
	return json.Marshal(payload)
}

func violationSummary(event Event) string {
	if len(event.Violations) == 0 {
		return "none"
	}
	return strings.Join(event.Violations, "; ")
}
