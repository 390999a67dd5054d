// Package interp wires the interpreter pipeline: parse the planner
// script, execute it with provenance tracking, route every external
// effect through the policed gateway, and record the outcome.
package interp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/planguard/planguard/internal/alert"
	"github.com/planguard/planguard/internal/assistant"
	"github.com/planguard/planguard/internal/audit"
	"github.com/planguard/planguard/internal/eval"
	"github.com/planguard/planguard/internal/flowgraph"
	"github.com/planguard/planguard/internal/gateway"
	"github.com/planguard/planguard/internal/model"
	"github.com/planguard/planguard/internal/policy"
	"github.com/planguard/planguard/internal/registry"
	"github.com/planguard/planguard/internal/runstore"
	"github.com/planguard/planguard/internal/script"
)

// Options configure one interpreter run. Registry and Engine are
// required; everything else is optional.
type Options struct {
	Registry *registry.Registry
	Engine   policy.Engine

	// Assistant backend for query_ai_assistant. A script that calls the
	// assistant without one fails with an evaluation error.
	Assistant assistant.Backend

	// UserInputs are seeded into the script environment with user-origin
	// labels before execution.
	UserInputs map[string]string

	Audit       *audit.Log
	Alerts      *alert.Dispatcher
	Runs        *runstore.Store
	CallTimeout time.Duration
}

// Error kinds reported in Result. Evaluation errors carry their finer
// eval kind instead.
const (
	ErrKindParse      = "parse"
	ErrKindPolicy     = "policy"
	ErrKindSchema     = "schema"
	ErrKindCapability = "capability"
)

// Result is the outcome of one run. Graph is always populated, even
// after a failure partway through.
type Result struct {
	RunID      string
	ScriptHash string
	Status     string
	Output     string
	ErrorKind  string
	ErrorMsg   string
	Graph      flowgraph.Snapshot
	Err        error
}

// Run parses and executes src. The returned error is also recorded in
// the Result; callers that only need the outcome may ignore it.
func Run(ctx context.Context, src string, opts Options) (*Result, error) {
	res := &Result{
		RunID:      runstore.NewRunID(),
		ScriptHash: hashScript(src),
	}

	prog, err := script.Parse(src)
	if err != nil {
		res.Status = runstore.StatusFailed
		res.ErrorKind = ErrKindParse
		res.ErrorMsg = err.Error()
		res.Err = err
		persist(ctx, opts.Runs, res)
		return res, err
	}

	graph := flowgraph.New()
	gw := gateway.New(opts.Registry, opts.Engine, graph, gateway.Options{
		RunID:   res.RunID,
		Timeout: opts.CallTimeout,
		Audit:   opts.Audit,
		Alerts:  opts.Alerts,
	})

	var asst eval.Assistant
	if opts.Assistant != nil {
		asst = assistant.New(opts.Assistant)
	}

	ev := eval.New(graph, gw, asst)
	for name, text := range opts.UserInputs {
		ev.Define(name, model.StringValue(text, model.UserLabel()))
	}

	out, err := ev.Run(ctx, prog)
	res.Graph = graph.Export()

	if err != nil {
		res.Status, res.ErrorKind = classify(err)
		res.ErrorMsg = err.Error()
		res.Err = err
		persist(ctx, opts.Runs, res)
		return res, err
	}

	res.Status = runstore.StatusCompleted
	if out != nil {
		res.Output = out.Display()
	}
	persist(ctx, opts.Runs, res)
	return res, nil
}

// classify maps the error taxonomy onto a run status and error kind.
func classify(err error) (status, kind string) {
	var verr *policy.ViolationError
	if errors.As(err, &verr) {
		return runstore.StatusDenied, ErrKindPolicy
	}
	var serr *assistant.SchemaError
	if errors.As(err, &serr) {
		return runstore.StatusFailed, ErrKindSchema
	}
	var cerr *gateway.CapabilityError
	if errors.As(err, &cerr) {
		return runstore.StatusFailed, ErrKindCapability
	}
	var everr *eval.Error
	if errors.As(err, &everr) {
		return runstore.StatusFailed, string(everr.Kind)
	}
	return runstore.StatusFailed, "internal"
}

func persist(ctx context.Context, store *runstore.Store, res *Result) {
	if store == nil {
		return
	}
	run := &runstore.Run{
		ID:         res.RunID,
		ScriptHash: res.ScriptHash,
		Status:     res.Status,
		ErrorKind:  res.ErrorKind,
		ErrorMsg:   res.ErrorMsg,
		Result:     res.Output,
		Graph:      res.Graph,
	}
	if err := store.Save(ctx, run); err != nil {
		// The run already happened; a failed save must not override its
		// outcome.
		fmt.Fprintf(os.Stderr, "warning: failed to persist run %s: %v\n", res.RunID, err)
	}
}

func hashScript(src string) string {
	h := sha256.Sum256([]byte(src))
	return "sha256:" + hex.EncodeToString(h[:])
}
