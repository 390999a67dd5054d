package policy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/planguard/planguard/internal/model"
)

func TestClientAllow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/decide" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req model.CallRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("request decode failed: %v", err)
		}
		if req.Capability != "send_email" {
			t.Errorf("capability = %q", req.Capability)
		}
		json.NewEncoder(w).Encode(model.Allowed())
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	d, err := c.Decide(context.Background(), &model.CallRequest{Capability: "send_email"})
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if !d.Allow {
		t.Errorf("decision = deny (%v), want allow", d.Violations)
	}
}

func TestClientDenyPassesViolations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(model.Denied("recipient is untrusted"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	d, _ := c.Decide(context.Background(), &model.CallRequest{Capability: "send_email"})
	if d.Allow || len(d.Violations) != 1 {
		t.Fatalf("decision = %+v", d)
	}
}

func TestClientFailsClosedOnUnreachableEngine(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", 200*time.Millisecond)
	d, err := c.Decide(context.Background(), &model.CallRequest{Capability: "send_email"})
	if err != nil {
		t.Fatalf("transport failure must surface as deny, got error: %v", err)
	}
	if d.Allow {
		t.Fatal("unreachable engine produced allow")
	}
	if len(d.Violations) == 0 || !strings.Contains(d.Violations[0], "unreachable") {
		t.Errorf("violations = %v", d.Violations)
	}
}

func TestClientFailsClosedOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	d, _ := c.Decide(context.Background(), &model.CallRequest{Capability: "send_email"})
	if d.Allow {
		t.Fatal("engine 500 produced allow")
	}
}

func TestClientFailsClosedOnMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	d, _ := c.Decide(context.Background(), &model.CallRequest{Capability: "send_email"})
	if d.Allow {
		t.Fatal("malformed response produced allow")
	}
}
