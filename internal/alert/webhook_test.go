package alert

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestDispatchMatchesEvents(t *testing.T) {
	var called atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher([]WebhookConfig{
		{URL: srv.URL, Format: "generic", Events: []string{"deny"}},
	})

	d.Dispatch(Event{Decision: "deny", Capability: "send_email", Violations: []string{"recipient not allowed"}})
	time.Sleep(200 * time.Millisecond)

	if called.Load() != 1 {
		t.Errorf("expected 1 call, got %d", called.Load())
	}
}

func TestDispatchSkipsNonMatching(t *testing.T) {
	var called atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher([]WebhookConfig{
		{URL: srv.URL, Format: "generic", Events: []string{"deny"}},
	})

	d.Dispatch(Event{Decision: "allow", Capability: "get_received_emails"})
	time.Sleep(200 * time.Millisecond)

	if called.Load() != 0 {
		t.Errorf("expected 0 calls, got %d", called.Load())
	}
}

func TestNewDispatcherEmpty(t *testing.T) {
	if d := NewDispatcher(nil); d != nil {
		t.Error("expected nil dispatcher for empty config")
	}
}

func TestSendGenericPayload(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	event := Event{
		RunID:      "run-1",
		Capability: "send_email",
		Decision:   "deny",
		Violations: []string{"origin capability:get_received_emails blocked"},
		PolicyHash: "sha256:abc",
	}
	if err := Send(WebhookConfig{URL: srv.URL, Format: "generic"}, event); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if got.Capability != "send_email" || got.Decision != "deny" || len(got.Violations) != 1 {
		t.Errorf("payload = %+v", got)
	}
}

func TestSendCustomHeaders(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := WebhookConfig{URL: srv.URL, Format: "generic", Headers: map[string]string{"Authorization": "Bearer tok"}}
	if err := Send(cfg, Event{Decision: "deny"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if auth != "Bearer tok" {
		t.Errorf("Authorization = %q", auth)
	}
}

func TestSendClientErrorNoRetry(t *testing.T) {
	var called atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	if err := Send(WebhookConfig{URL: srv.URL, Format: "generic"}, Event{Decision: "deny"}); err == nil {
		t.Fatal("expected error for HTTP 400")
	}
	if called.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", called.Load())
	}
}

func TestFormatSlack(t *testing.T) {
	body, err := FormatPayload("slack", Event{Decision: "deny", Capability: "share_file", Violations: []string{"pattern matched"}})
	if err != nil {
		t.Fatal(err)
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatal(err)
	}
	if _, ok := payload["blocks"]; !ok {
		t.Error("slack payload missing blocks")
	}
}

func TestFormatPagerDutySeverity(t *testing.T) {
	body, err := FormatPayload("pagerduty", Event{Decision: "deny", Capability: "send_email"})
	if err != nil {
		t.Fatal(err)
	}
	var payload struct {
		Payload struct {
			Severity string `json:"severity"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Payload.Severity != "error" {
		t.Errorf("severity = %q, want error", payload.Payload.Severity)
	}
}
