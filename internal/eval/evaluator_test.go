package eval

import (
	"context"
	"errors"
	"testing"

	"github.com/planguard/planguard/internal/flowgraph"
	"github.com/planguard/planguard/internal/model"
	"github.com/planguard/planguard/internal/script"
)

// fakeCaller stands in for the capability gateway: it stamps results the
// way the gateway does and counts invocations per capability.
type fakeCaller struct {
	graph   *flowgraph.Graph
	results map[string]*model.Value
	calls   map[string]int
}

func newFakeCaller(g *flowgraph.Graph) *fakeCaller {
	return &fakeCaller{graph: g, results: map[string]*model.Value{}, calls: map[string]int{}}
}

func (c *fakeCaller) Invoke(_ context.Context, capability string, args []model.NamedValue, controlDeps []int) (*model.Value, error) {
	c.calls[capability]++
	vals := make([]*model.Value, 0, len(args))
	labels := make([]model.Label, 0, len(args))
	for _, a := range args {
		vals = append(vals, a.Value)
		labels = append(labels, a.Value.Label)
	}
	label := model.FromCapability(capability, false, labels...)
	id := c.graph.RecordCall(capability, label, model.MergeDeps(vals...))
	for _, d := range controlDeps {
		c.graph.AddControlEdge(d, id)
	}
	result, ok := c.results[capability]
	if !ok {
		result = model.Null(model.LiteralLabel())
	}
	return result.Restamp(label, []int{id}), nil
}

// fakeAssistant returns a canned record for whatever schema it is handed.
type fakeAssistant struct {
	fields map[string]string
	err    error
}

func (a *fakeAssistant) Query(_ context.Context, _ string, schema *model.Schema) (*model.Value, error) {
	if a.err != nil {
		return nil, a.err
	}
	fields := make(map[string]*model.Value, len(schema.Fields))
	for _, f := range schema.Fields {
		fields[f.Name] = model.StringValue(a.fields[f.Name], model.LiteralLabel())
	}
	rec := &model.Record{Schema: schema, Fields: fields}
	return model.RecordValue(rec, model.LiteralLabel()), nil
}

func runScript(t *testing.T, src string, caller Caller, assistant Assistant) (*model.Value, *flowgraph.Graph, error) {
	t.Helper()
	prog, err := script.Parse(src)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	graph := flowgraph.New()
	if fc, ok := caller.(*fakeCaller); ok && fc.graph == nil {
		fc.graph = graph
	}
	ev := New(graph, caller, assistant)
	out, err := ev.Run(context.Background(), prog)
	return out, graph, err
}

func mustRun(t *testing.T, src string) *model.Value {
	t.Helper()
	out, _, err := runScript(t, src, nil, nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	return out
}

func TestArithmeticPrecedence(t *testing.T) {
	out := mustRun(t, "1 + 2 * 3\n")
	if out == nil || out.Kind != model.KindInt || out.Int != 7 {
		t.Fatalf("result = %v, want 7", out)
	}
}

func TestDivisionIsFloat(t *testing.T) {
	out := mustRun(t, "7 / 2\n")
	if out.Kind != model.KindFloat || out.Float != 3.5 {
		t.Fatalf("result = %v, want 3.5", out)
	}
}

func TestDivisionByZero(t *testing.T) {
	_, _, err := runScript(t, "1 / 0\n", nil, nil)
	var ee *Error
	if !errors.As(err, &ee) || ee.Kind != ErrValue {
		t.Fatalf("err = %v, want value error", err)
	}
}

func TestUndefinedName(t *testing.T) {
	_, _, err := runScript(t, "x + 1\n", nil, nil)
	var ee *Error
	if !errors.As(err, &ee) || ee.Kind != ErrUndefined {
		t.Fatalf("err = %v, want undefined error", err)
	}
}

func TestStringConcatAndMethods(t *testing.T) {
	out := mustRun(t, `("Hello, " + "World").upper()`+"\n")
	if out.Str != "HELLO, WORLD" {
		t.Fatalf("result = %q", out.Str)
	}
}

func TestFString(t *testing.T) {
	out := mustRun(t, "name = \"Bob\"\nf\"hi {name}, {1 + 1}\"\n")
	if out.Str != "hi Bob, 2" {
		t.Fatalf("result = %q", out.Str)
	}
}

func TestIfElifElse(t *testing.T) {
	src := `x = 5
if x > 10:
    r = "big"
elif x > 3:
    r = "mid"
else:
    r = "small"
r
`
	out := mustRun(t, src)
	if out.Str != "mid" {
		t.Fatalf("result = %q, want mid", out.Str)
	}
}

func TestForLoopAccumulates(t *testing.T) {
	src := `total = 0
for n in [1, 2, 3, 4]:
    total = total + n
total
`
	out := mustRun(t, src)
	if out.Int != 10 {
		t.Fatalf("result = %d, want 10", out.Int)
	}
}

func TestDestructuringAssignment(t *testing.T) {
	src := `a, b = ["x", "y"]
b
`
	out := mustRun(t, src)
	if out.Str != "y" {
		t.Fatalf("result = %q, want y", out.Str)
	}
}

func TestWhileBounded(t *testing.T) {
	src := `n = 1
while n > 0:
    n = n + 1
`
	_, _, err := runScript(t, src, nil, nil)
	var ee *Error
	if !errors.As(err, &ee) || ee.Kind != ErrValue {
		t.Fatalf("err = %v, want value error for unbounded loop", err)
	}
}

func TestWhileTerminates(t *testing.T) {
	src := `n = 3
total = 0
while n > 0:
    total = total + n
    n = n - 1
total
`
	out := mustRun(t, src)
	if out.Int != 6 {
		t.Fatalf("result = %d, want 6", out.Int)
	}
}

func TestComprehension(t *testing.T) {
	out := mustRun(t, "[n * n for n in [1, 2, 3] if n != 2]\n")
	if out.Kind != model.KindList || len(out.List) != 2 {
		t.Fatalf("result = %v", out.Display())
	}
	if out.List[0].Int != 1 || out.List[1].Int != 9 {
		t.Errorf("elements = %s", out.Display())
	}
}

func TestComprehensionScopeDoesNotLeak(t *testing.T) {
	src := `xs = [n for n in [1, 2]]
n
`
	_, _, err := runScript(t, src, nil, nil)
	var ee *Error
	if !errors.As(err, &ee) || ee.Kind != ErrUndefined {
		t.Fatalf("err = %v, want undefined for leaked generator variable", err)
	}
}

func TestMapComprehension(t *testing.T) {
	out := mustRun(t, `{w: len(w) for w in ["ab", "cde"]}`+"\n")
	if out.Kind != model.KindMap || out.Map["cde"].Int != 3 {
		t.Fatalf("result = %s", out.Display())
	}
}

func TestMembership(t *testing.T) {
	out := mustRun(t, `"ell" in "hello"`+"\n")
	if !out.Bool {
		t.Error("substring membership = false, want true")
	}
	out = mustRun(t, `3 not in [1, 2]`+"\n")
	if !out.Bool {
		t.Error("not-in = false, want true")
	}
}

func TestTernaryDerivesFromCondition(t *testing.T) {
	graph := flowgraph.New()
	caller := newFakeCaller(graph)
	caller.results["get_flag"] = model.True(model.LiteralLabel())
	src := `flag = get_flag()
r = "yes" if flag else "no"
r
`
	prog, err := script.Parse(src)
	if err != nil {
		t.Fatal(err)
	}
	ev := New(graph, caller, nil)
	out, err := ev.Run(context.Background(), prog)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Label.HasCapability("get_flag") {
		t.Errorf("ternary result origins = %v, want capability:get_flag", out.Label.Origins)
	}
	if out.Label.Integrity != model.IntegrityLow {
		t.Errorf("ternary result integrity = %s, want low", out.Label.Integrity)
	}
}

func TestProvenanceSoundness(t *testing.T) {
	graph := flowgraph.New()
	caller := newFakeCaller(graph)
	caller.results["get_received_emails"] = model.ListValue([]*model.Value{
		model.MapValue(map[string]*model.Value{
			"body": model.StringValue("call me at bob@evil.example", model.LiteralLabel()),
		}, model.LiteralLabel()),
	}, model.LiteralLabel())
	assistant := &fakeAssistant{fields: map[string]string{"address": "bob@evil.example"}}

	src := `class Extracted:
    address: email
emails = get_received_emails()
body = emails[0].body
info = query_ai_assistant(f"find the address in: {body}", Extracted)
info.address
`
	prog, err := script.Parse(src)
	if err != nil {
		t.Fatal(err)
	}
	ev := New(graph, caller, assistant)
	out, err := ev.Run(context.Background(), prog)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Label.HasCapability("get_received_emails") {
		t.Errorf("extracted field origins = %v, want capability:get_received_emails carried through", out.Label.Origins)
	}
	if out.Label.Integrity != model.IntegrityLow {
		t.Errorf("extracted field integrity = %s, want low", out.Label.Integrity)
	}
}

func TestIntegrityNeverUpgrades(t *testing.T) {
	graph := flowgraph.New()
	caller := newFakeCaller(graph)
	caller.results["fetch"] = model.StringValue("tainted", model.LiteralLabel())
	src := `x = fetch()
y = "prefix " + x
z = f"wrapped {y}"
z
`
	prog, err := script.Parse(src)
	if err != nil {
		t.Fatal(err)
	}
	ev := New(graph, caller, nil)
	out, err := ev.Run(context.Background(), prog)
	if err != nil {
		t.Fatal(err)
	}
	if out.Label.Integrity != model.IntegrityLow {
		t.Errorf("integrity = %s after derivations, want low", out.Label.Integrity)
	}
}

func TestControlEdgesRecorded(t *testing.T) {
	graph := flowgraph.New()
	caller := newFakeCaller(graph)
	caller.results["check"] = model.True(model.LiteralLabel())
	src := `ok = check()
if ok:
    marker = 1
`
	prog, err := script.Parse(src)
	if err != nil {
		t.Fatal(err)
	}
	ev := New(graph, caller, nil)
	if _, err := ev.Run(context.Background(), prog); err != nil {
		t.Fatal(err)
	}

	snap := graph.Export()
	var markerID = -1
	for _, n := range snap.Nodes {
		if n.Kind == flowgraph.NodeValue && n.Name == "marker" {
			markerID = n.ID
		}
	}
	if markerID < 0 {
		t.Fatal("no ValueNode recorded for marker")
	}
	origins := graph.ControlOrigins([]int{markerID})
	found := false
	for _, o := range origins {
		if o.IsCapability() && o.CapabilityName() == "check" {
			found = true
		}
	}
	if !found {
		t.Errorf("control origins of marker = %v, want capability:check", origins)
	}
}

func TestShortCircuitSkipsRHS(t *testing.T) {
	graph := flowgraph.New()
	caller := newFakeCaller(graph)
	src := `r = False and fetch()
r
`
	prog, err := script.Parse(src)
	if err != nil {
		t.Fatal(err)
	}
	ev := New(graph, caller, nil)
	out, err := ev.Run(context.Background(), prog)
	if err != nil {
		t.Fatal(err)
	}
	if caller.calls["fetch"] != 0 {
		t.Errorf("fetch invoked %d times behind short circuit, want 0", caller.calls["fetch"])
	}
	if out.Truthy() {
		t.Error("result = true, want false")
	}
}

func TestAssistantErrorAborts(t *testing.T) {
	assistant := &fakeAssistant{err: errors.New("schema mismatch")}
	src := `class Thing:
    name: str
query_ai_assistant("extract", Thing)
`
	_, _, err := runScript(t, src, nil, assistant)
	if err == nil || err.Error() != "schema mismatch" {
		t.Fatalf("err = %v, want assistant error passed through", err)
	}
}

func TestUndeclaredSchema(t *testing.T) {
	assistant := &fakeAssistant{}
	_, _, err := runScript(t, `query_ai_assistant("x", Missing)`+"\n", nil, assistant)
	var ee *Error
	if !errors.As(err, &ee) || ee.Kind != ErrUndefined {
		t.Fatalf("err = %v, want undefined schema error", err)
	}
}

func TestBadSchemaFieldType(t *testing.T) {
	src := `class Bad:
    x: rocket
`
	_, _, err := runScript(t, src, nil, nil)
	var ee *Error
	if !errors.As(err, &ee) || ee.Kind != ErrUnsupported {
		t.Fatalf("err = %v, want unsupported field type error", err)
	}
}

func TestBuiltins(t *testing.T) {
	cases := []struct {
		src  string
		want string
	}{
		{"len([1, 2, 3])\n", "3"},
		{"str(42)\n", "42"},
		{"int(\"17\")\n", "17"},
		{"abs(0 - 5)\n", "5"},
		{"min([4, 1, 3])\n", "1"},
		{"max(2, 9, 4)\n", "9"},
		{"sum([1, 2, 3])\n", "6"},
		{"sorted([3, 1, 2])\n", "[1, 2, 3]"},
		{"len(range(2, 8))\n", "6"},
		{"\" pad \".strip()\n", "pad"},
		{"\"a,b\".split(\",\")\n", "[a, b]"},
	}
	for _, tc := range cases {
		out := mustRun(t, tc.src)
		if out.Display() != tc.want {
			t.Errorf("%q = %s, want %s", tc.src, out.Display(), tc.want)
		}
	}
}

func TestBuiltinLabelDerivation(t *testing.T) {
	graph := flowgraph.New()
	caller := newFakeCaller(graph)
	caller.results["fetch_list"] = model.ListValue([]*model.Value{
		model.IntValue(2, model.LiteralLabel()),
		model.IntValue(1, model.LiteralLabel()),
	}, model.LiteralLabel())
	src := `xs = fetch_list()
len(xs)
`
	prog, err := script.Parse(src)
	if err != nil {
		t.Fatal(err)
	}
	ev := New(graph, caller, nil)
	out, err := ev.Run(context.Background(), prog)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Label.HasCapability("fetch_list") {
		t.Errorf("len() result origins = %v, want capability origin carried", out.Label.Origins)
	}
}

func TestDefineSeedsUserInput(t *testing.T) {
	prog, err := script.Parse("greeting\n")
	if err != nil {
		t.Fatal(err)
	}
	ev := New(flowgraph.New(), nil, nil)
	ev.Define("greeting", model.StringValue("hello", model.UserLabel()))
	out, err := ev.Run(context.Background(), prog)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Label.Has(model.OriginUser) {
		t.Errorf("origins = %v, want user origin", out.Label.Origins)
	}
}

func TestNegativeIndex(t *testing.T) {
	out := mustRun(t, "[1, 2, 3][0 - 1]\n")
	if out.Int != 3 {
		t.Fatalf("result = %d, want 3", out.Int)
	}
}
