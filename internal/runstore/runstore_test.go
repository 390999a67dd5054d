package runstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/planguard/planguard/internal/flowgraph"
	"github.com/planguard/planguard/internal/model"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleGraph() flowgraph.Snapshot {
	g := flowgraph.New()
	a := g.RecordValue("emails", model.FromCapability("get_received_emails", false), nil)
	g.RecordCall("send_email", model.UserLabel(), []int{a})
	return g.Export()
}

func TestSaveAndGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	run := &Run{
		ID:         NewRunID(),
		ScriptHash: "sha256:abc",
		Status:     StatusCompleted,
		Result:     "3 emails forwarded",
		Graph:      sampleGraph(),
	}
	if err := s.Save(ctx, run); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("run not found")
	}
	if got.Status != StatusCompleted || got.ScriptHash != "sha256:abc" || got.Result != run.Result {
		t.Errorf("got = %+v", got)
	}
	if len(got.Graph.Nodes) != 2 || len(got.Graph.Edges) != 1 {
		t.Errorf("graph = %+v", got.Graph)
	}
	if got.Graph.Nodes[1].Kind != flowgraph.NodeCall {
		t.Errorf("node kind = %q", got.Graph.Nodes[1].Kind)
	}
}

func TestGetMissing(t *testing.T) {
	s := openStore(t)
	got, err := s.Get(context.Background(), NewRunID())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Errorf("got = %+v, want nil", got)
	}
}

func TestSaveUpsertsByID(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	run := &Run{ID: NewRunID(), ScriptHash: "sha256:x", Status: StatusFailed, ErrorKind: "type", ErrorMsg: "bad operand"}
	if err := s.Save(ctx, run); err != nil {
		t.Fatal(err)
	}
	run.Status = StatusCompleted
	run.ErrorKind = ""
	run.ErrorMsg = ""
	if err := s.Save(ctx, run); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusCompleted || got.ErrorKind != "" {
		t.Errorf("got = %+v, want updated row", got)
	}

	runs, err := s.List(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Errorf("list returned %d runs, want 1", len(runs))
	}
}

func TestListNewestFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	for _, status := range []string{StatusCompleted, StatusDenied, StatusFailed} {
		run := &Run{ID: NewRunID(), ScriptHash: "sha256:x", Status: status}
		if err := s.Save(ctx, run); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := s.List(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("list returned %d runs, want 2", len(runs))
	}
}

func TestDeniedRunKeepsViolationsMessage(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	run := &Run{
		ID:         NewRunID(),
		ScriptHash: "sha256:y",
		Status:     StatusDenied,
		ErrorKind:  "policy",
		ErrorMsg:   "policy denied send_email: recipient blocked",
	}
	if err := s.Save(ctx, run); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ErrorKind != "policy" || got.ErrorMsg == "" {
		t.Errorf("got = %+v", got)
	}
}
