package cli

import (
	"strings"
	"testing"

	"github.com/planguard/planguard/internal/audit"
)

func TestFormatAuditEntryAllow(t *testing.T) {
	out := formatAuditEntry(audit.Entry{
		Timestamp:  "2026-08-29T10:00:00.000Z",
		RunID:      "run-1",
		Capability: "send_email",
		Decision:   audit.DecisionAllow,
	})

	if !strings.Contains(out, "ALLOW") {
		t.Errorf("missing verdict: %q", out)
	}
	if !strings.Contains(out, "send_email") || !strings.Contains(out, "run=run-1") {
		t.Errorf("missing capability or run id: %q", out)
	}
	if strings.Count(out, "\n") != 1 {
		t.Errorf("allow entry should render one line: %q", out)
	}
}

func TestFormatAuditEntryDenyListsViolations(t *testing.T) {
	out := formatAuditEntry(audit.Entry{
		Timestamp:  "2026-08-29T10:00:01.000Z",
		RunID:      "run-2",
		Capability: "share_file",
		Decision:   audit.DecisionDeny,
		Violations: []string{
			"share_file: recipient derives from capability:get_received_emails",
			"share_file: content matches blocked pattern",
		},
	})

	if !strings.Contains(out, "DENY") {
		t.Errorf("missing verdict: %q", out)
	}
	for _, want := range []string{"    - share_file: recipient", "    - share_file: content"} {
		if !strings.Contains(out, want) {
			t.Errorf("violation not rendered: want %q in %q", want, out)
		}
	}
}
