package eval

import (
	"context"
	"fmt"
	"strings"

	"github.com/planguard/planguard/internal/flowgraph"
	"github.com/planguard/planguard/internal/model"
	"github.com/planguard/planguard/internal/script"
)

// AssistantName is the fixed callable name of the isolated assistant.
const AssistantName = "query_ai_assistant"

// maxWhileIters bounds while loops. A planner script that spins past this
// is broken; abort instead of hanging the run.
const maxWhileIters = 10000

// Caller performs a capability invocation on behalf of the evaluator.
// The capability gateway is the only production implementation; it
// consults the policy engine before any effect happens. Positional
// arguments carry an empty Name and are mapped by the callee.
// controlDeps are the flow-graph node ids whose values currently guard
// execution, so the callee can record control edges onto the call node.
type Caller interface {
	Invoke(ctx context.Context, capability string, args []model.NamedValue, controlDeps []int) (*model.Value, error)
}

// Assistant transforms untrusted prompt text into a structured record
// matching the declared schema. Implementations have no gateway access;
// the evaluator stamps labels and records the call node itself, so the
// assistant stays provenance-unaware.
type Assistant interface {
	Query(ctx context.Context, prompt string, schema *model.Schema) (*model.Value, error)
}

// Evaluator executes one parsed script. It owns the environment and the
// flow graph for the run; a new Evaluator is built per run and never
// shared across goroutines.
type Evaluator struct {
	env       *Env
	graph     *flowgraph.Graph
	caller    Caller
	assistant Assistant
	schemas   map[string]*model.Schema

	// control holds the producing-node ids of every condition currently
	// guarding execution, innermost last. Assignments under a guard get a
	// control edge from each of these nodes.
	control []int

	last *model.Value
}

// New returns an evaluator bound to a flow graph, a capability caller,
// and an assistant. caller and assistant may be nil when the script is
// known not to use them (static checking, pure-expression tests).
func New(graph *flowgraph.Graph, caller Caller, assistant Assistant) *Evaluator {
	return &Evaluator{
		env:       NewEnv(),
		graph:     graph,
		caller:    caller,
		assistant: assistant,
		schemas:   map[string]*model.Schema{},
	}
}

// Define binds a name in the script scope before execution, used to seed
// user-provided inputs.
func (e *Evaluator) Define(name string, v *model.Value) {
	e.env.Set(name, v)
}

// Run executes the program and returns the value of its last expression
// statement, which may be nil when the script ends on a binding.
func (e *Evaluator) Run(ctx context.Context, prog *script.Program) (*model.Value, error) {
	if err := e.execStmts(ctx, prog.Stmts); err != nil {
		return nil, err
	}
	return e.last, nil
}

func (e *Evaluator) execStmts(ctx context.Context, stmts []script.Stmt) error {
	for _, stmt := range stmts {
		if err := e.execStmt(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (e *Evaluator) execStmt(ctx context.Context, stmt script.Stmt) error {
	switch s := stmt.(type) {
	case *script.Assign:
		v, err := e.evalExpr(ctx, s.Value)
		if err != nil {
			return err
		}
		return e.assign(s.Target, v, s.P)
	case *script.ExprStmt:
		v, err := e.evalExpr(ctx, s.X)
		if err != nil {
			return err
		}
		e.last = v
		return nil
	case *script.If:
		return e.execIf(ctx, s)
	case *script.For:
		return e.execFor(ctx, s)
	case *script.While:
		return e.execWhile(ctx, s)
	case *script.SchemaDecl:
		return e.declareSchema(s)
	default:
		return e.errAt(ErrUnsupported, stmt.Pos(), "unsupported statement")
	}
}

// assign records a ValueNode for each bound name, wires control edges
// from every active guard, and rebinds the name to a copy whose deps
// point at the new node.
func (e *Evaluator) assign(target script.Target, v *model.Value, pos script.Position) error {
	switch t := target.(type) {
	case *script.NameTarget:
		id := e.graph.RecordValue(t.Name, v.Label, v.Deps)
		for _, guard := range e.control {
			e.graph.AddControlEdge(guard, id)
		}
		e.env.Set(t.Name, v.WithDeps([]int{id}))
		return nil
	case *script.TupleTarget:
		if v.Kind != model.KindList {
			return e.errAt(ErrType, pos, "cannot destructure %s into %d names", v.Kind, len(t.Elems))
		}
		if len(v.List) != len(t.Elems) {
			return e.errAt(ErrValue, pos, "destructuring arity mismatch: %d names, %d values", len(t.Elems), len(v.List))
		}
		for i, elem := range t.Elems {
			if err := e.assign(elem, v.List[i], pos); err != nil {
				return err
			}
		}
		return nil
	default:
		return e.errAt(ErrUnsupported, pos, "unsupported assignment target")
	}
}

func (e *Evaluator) execIf(ctx context.Context, s *script.If) error {
	mark := len(e.control)
	defer func() { e.control = e.control[:mark] }()

	cond, err := e.evalExpr(ctx, s.Cond)
	if err != nil {
		return err
	}
	e.control = append(e.control, cond.Deps...)
	if cond.Truthy() {
		return e.execStmts(ctx, s.Then)
	}
	for _, elif := range s.Elifs {
		c, err := e.evalExpr(ctx, elif.Cond)
		if err != nil {
			return err
		}
		e.control = append(e.control, c.Deps...)
		if c.Truthy() {
			return e.execStmts(ctx, elif.Body)
		}
	}
	if s.Else != nil {
		return e.execStmts(ctx, s.Else)
	}
	return nil
}

func (e *Evaluator) execFor(ctx context.Context, s *script.For) error {
	iter, err := e.evalExpr(ctx, s.Iter)
	if err != nil {
		return err
	}
	if iter.Kind != model.KindList {
		return e.errAt(ErrType, s.P, "cannot iterate over %s", iter.Kind)
	}
	mark := len(e.control)
	e.control = append(e.control, iter.Deps...)
	defer func() { e.control = e.control[:mark] }()

	for _, elem := range iter.List {
		if err := e.assign(s.Target, elem, s.P); err != nil {
			return err
		}
		if err := e.execStmts(ctx, s.Body); err != nil {
			return err
		}
	}
	return nil
}

func (e *Evaluator) execWhile(ctx context.Context, s *script.While) error {
	mark := len(e.control)
	defer func() { e.control = e.control[:mark] }()

	guarded := make(map[int]bool)
	for i := 0; ; i++ {
		if i >= maxWhileIters {
			return e.errAt(ErrValue, s.P, "while loop exceeded %d iterations", maxWhileIters)
		}
		cond, err := e.evalExpr(ctx, s.Cond)
		if err != nil {
			return err
		}
		if !cond.Truthy() {
			return nil
		}
		// The body may rebind a name the condition reads, so the guard
		// set is re-collected on every pass.
		for _, d := range cond.Deps {
			if !guarded[d] {
				guarded[d] = true
				e.control = append(e.control, d)
			}
		}
		if err := e.execStmts(ctx, s.Body); err != nil {
			return err
		}
	}
}

func (e *Evaluator) declareSchema(s *script.SchemaDecl) error {
	schema := &model.Schema{Name: s.Name}
	for _, f := range s.Fields {
		if !model.ValidFieldType(f.Type) {
			return e.errAt(ErrUnsupported, s.P, "schema %s: unsupported field type %q", s.Name, f.Type)
		}
		schema.Fields = append(schema.Fields, model.SchemaField{Name: f.Name, Type: model.FieldType(f.Type)})
	}
	e.schemas[s.Name] = schema
	return nil
}

// --- Expressions ---

func (e *Evaluator) evalExpr(ctx context.Context, expr script.Expr) (*model.Value, error) {
	switch x := expr.(type) {
	case *script.IntLit:
		return model.IntValue(x.Value, model.LiteralLabel()), nil
	case *script.FloatLit:
		return model.FloatValue(x.Value, model.LiteralLabel()), nil
	case *script.StringLit:
		return model.StringValue(x.Value, model.LiteralLabel()), nil
	case *script.BoolLit:
		return model.BoolValue(x.Value, model.LiteralLabel()), nil
	case *script.NullLit:
		return model.Null(model.LiteralLabel()), nil
	case *script.Ident:
		v, ok := e.env.Get(x.Name)
		if !ok {
			return nil, e.errAt(ErrUndefined, x.P, "name %q is not defined", x.Name)
		}
		return v, nil
	case *script.FString:
		return e.evalFString(ctx, x)
	case *script.ListLit:
		return e.evalList(ctx, x)
	case *script.MapLit:
		return e.evalMap(ctx, x)
	case *script.SetLit:
		return e.evalSet(ctx, x)
	case *script.Attr:
		return e.evalAttr(ctx, x)
	case *script.Index:
		return e.evalIndex(ctx, x)
	case *script.Unary:
		return e.evalUnary(ctx, x)
	case *script.Binary:
		return e.evalBinary(ctx, x)
	case *script.Ternary:
		return e.evalTernary(ctx, x)
	case *script.Call:
		return e.evalCall(ctx, x)
	case *script.Comp:
		return e.evalComp(ctx, x)
	default:
		return nil, e.errAt(ErrUnsupported, expr.Pos(), "unsupported expression")
	}
}

func (e *Evaluator) evalFString(ctx context.Context, x *script.FString) (*model.Value, error) {
	var b strings.Builder
	var inputs []*model.Value
	for _, part := range x.Parts {
		if part.Expr == nil {
			b.WriteString(part.Text)
			continue
		}
		v, err := e.evalExpr(ctx, part.Expr)
		if err != nil {
			return nil, err
		}
		b.WriteString(v.Display())
		inputs = append(inputs, v)
	}
	out := model.StringValue(b.String(), derivedLabel(inputs...))
	return out.WithDeps(model.MergeDeps(inputs...)), nil
}

func (e *Evaluator) evalList(ctx context.Context, x *script.ListLit) (*model.Value, error) {
	elems := make([]*model.Value, 0, len(x.Elems))
	for _, el := range x.Elems {
		v, err := e.evalExpr(ctx, el)
		if err != nil {
			return nil, err
		}
		elems = append(elems, v)
	}
	out := model.ListValue(elems, derivedLabel(elems...))
	return out.WithDeps(model.MergeDeps(elems...)), nil
}

func (e *Evaluator) evalMap(ctx context.Context, x *script.MapLit) (*model.Value, error) {
	m := make(map[string]*model.Value, len(x.Keys))
	var inputs []*model.Value
	for i, keyExpr := range x.Keys {
		k, err := e.evalExpr(ctx, keyExpr)
		if err != nil {
			return nil, err
		}
		if k.Kind != model.KindString {
			return nil, e.errAt(ErrType, keyExpr.Pos(), "map keys must be strings, got %s", k.Kind)
		}
		v, err := e.evalExpr(ctx, x.Values[i])
		if err != nil {
			return nil, err
		}
		m[k.Str] = v
		inputs = append(inputs, k, v)
	}
	out := model.MapValue(m, derivedLabel(inputs...))
	return out.WithDeps(model.MergeDeps(inputs...)), nil
}

// evalSet deduplicates structurally; the result is an ordered list since
// the value model has no distinct set kind.
func (e *Evaluator) evalSet(ctx context.Context, x *script.SetLit) (*model.Value, error) {
	var elems []*model.Value
	for _, el := range x.Elems {
		v, err := e.evalExpr(ctx, el)
		if err != nil {
			return nil, err
		}
		dup := false
		for _, seen := range elems {
			if model.Equal(seen, v) {
				dup = true
				break
			}
		}
		if !dup {
			elems = append(elems, v)
		}
	}
	out := model.ListValue(elems, derivedLabel(elems...))
	return out.WithDeps(model.MergeDeps(elems...)), nil
}

func (e *Evaluator) evalAttr(ctx context.Context, x *script.Attr) (*model.Value, error) {
	recv, err := e.evalExpr(ctx, x.X)
	if err != nil {
		return nil, err
	}
	switch recv.Kind {
	case model.KindRecord:
		if v, ok := recv.Rec.Fields[x.Name]; ok {
			return v, nil
		}
		return nil, e.errAt(ErrValue, x.P, "record %s has no field %q", recv.Rec.Schema.Name, x.Name)
	case model.KindMap:
		if v, ok := recv.Map[x.Name]; ok {
			return v, nil
		}
		return nil, e.errAt(ErrValue, x.P, "no key %q", x.Name)
	default:
		return nil, e.errAt(ErrType, x.P, "%s has no attribute %q", recv.Kind, x.Name)
	}
}

func (e *Evaluator) evalIndex(ctx context.Context, x *script.Index) (*model.Value, error) {
	recv, err := e.evalExpr(ctx, x.X)
	if err != nil {
		return nil, err
	}
	key, err := e.evalExpr(ctx, x.Key)
	if err != nil {
		return nil, err
	}
	switch recv.Kind {
	case model.KindList:
		if key.Kind != model.KindInt {
			return nil, e.errAt(ErrType, x.P, "list index must be an integer, got %s", key.Kind)
		}
		i := key.Int
		if i < 0 {
			i += int64(len(recv.List))
		}
		if i < 0 || i >= int64(len(recv.List)) {
			return nil, e.errAt(ErrValue, x.P, "list index %d out of range (len %d)", key.Int, len(recv.List))
		}
		return recv.List[i], nil
	case model.KindMap:
		if key.Kind != model.KindString {
			return nil, e.errAt(ErrType, x.P, "map key must be a string, got %s", key.Kind)
		}
		if v, ok := recv.Map[key.Str]; ok {
			return v, nil
		}
		return nil, e.errAt(ErrValue, x.P, "no key %q", key.Str)
	case model.KindString:
		if key.Kind != model.KindInt {
			return nil, e.errAt(ErrType, x.P, "string index must be an integer, got %s", key.Kind)
		}
		i := key.Int
		if i < 0 {
			i += int64(len(recv.Str))
		}
		if i < 0 || i >= int64(len(recv.Str)) {
			return nil, e.errAt(ErrValue, x.P, "string index %d out of range", key.Int)
		}
		out := model.StringValue(string(recv.Str[i]), derivedLabel(recv, key))
		return out.WithDeps(model.MergeDeps(recv, key)), nil
	default:
		return nil, e.errAt(ErrType, x.P, "%s is not subscriptable", recv.Kind)
	}
}

func (e *Evaluator) evalUnary(ctx context.Context, x *script.Unary) (*model.Value, error) {
	v, err := e.evalExpr(ctx, x.X)
	if err != nil {
		return nil, err
	}
	switch x.Op {
	case "-":
		switch v.Kind {
		case model.KindInt:
			return model.IntValue(-v.Int, derivedLabel(v)).WithDeps(v.Deps), nil
		case model.KindFloat:
			return model.FloatValue(-v.Float, derivedLabel(v)).WithDeps(v.Deps), nil
		}
		return nil, e.errAt(ErrType, x.P, "cannot negate %s", v.Kind)
	case "not":
		return model.BoolValue(!v.Truthy(), derivedLabel(v)).WithDeps(v.Deps), nil
	}
	return nil, e.errAt(ErrUnsupported, x.P, "unsupported unary operator %q", x.Op)
}

func (e *Evaluator) evalBinary(ctx context.Context, x *script.Binary) (*model.Value, error) {
	if x.Op == "and" || x.Op == "or" {
		return e.evalBoolOp(ctx, x)
	}
	a, err := e.evalExpr(ctx, x.X)
	if err != nil {
		return nil, err
	}
	b, err := e.evalExpr(ctx, x.Y)
	if err != nil {
		return nil, err
	}
	label := derivedLabel(a, b)
	deps := model.MergeDeps(a, b)

	switch x.Op {
	case "==":
		return model.BoolValue(model.Equal(a, b), label).WithDeps(deps), nil
	case "!=":
		return model.BoolValue(!model.Equal(a, b), label).WithDeps(deps), nil
	case "<", "<=", ">", ">=":
		lt, ok1 := less(a, b)
		gt, ok2 := less(b, a)
		if !ok1 || !ok2 {
			return nil, e.errAt(ErrType, x.P, "cannot compare %s and %s", a.Kind, b.Kind)
		}
		var res bool
		switch x.Op {
		case "<":
			res = lt
		case "<=":
			res = !gt
		case ">":
			res = gt
		case ">=":
			res = !lt
		}
		return model.BoolValue(res, label).WithDeps(deps), nil
	case "in", "not-in":
		found, err := e.contains(b, a, x.P)
		if err != nil {
			return nil, err
		}
		if x.Op == "not-in" {
			found = !found
		}
		return model.BoolValue(found, label).WithDeps(deps), nil
	case "+", "-", "*", "/", "%":
		return e.arith(x.Op, a, b, label, deps, x.P)
	}
	return nil, e.errAt(ErrUnsupported, x.P, "unsupported operator %q", x.Op)
}

// evalBoolOp short-circuits like the source syntax demands, returning the
// deciding operand restamped with derivation from everything evaluated.
func (e *Evaluator) evalBoolOp(ctx context.Context, x *script.Binary) (*model.Value, error) {
	a, err := e.evalExpr(ctx, x.X)
	if err != nil {
		return nil, err
	}
	shortCircuit := (x.Op == "and" && !a.Truthy()) || (x.Op == "or" && a.Truthy())
	if shortCircuit {
		return a.Restamp(derivedLabel(a), a.Deps), nil
	}
	b, err := e.evalExpr(ctx, x.Y)
	if err != nil {
		return nil, err
	}
	return b.Restamp(derivedLabel(a, b), model.MergeDeps(a, b)), nil
}

func (e *Evaluator) contains(container, item *model.Value, pos script.Position) (bool, error) {
	switch container.Kind {
	case model.KindList:
		for _, el := range container.List {
			if model.Equal(el, item) {
				return true, nil
			}
		}
		return false, nil
	case model.KindMap:
		if item.Kind != model.KindString {
			return false, e.errAt(ErrType, pos, "map membership requires a string key")
		}
		_, ok := container.Map[item.Str]
		return ok, nil
	case model.KindString:
		if item.Kind != model.KindString {
			return false, e.errAt(ErrType, pos, "string membership requires a string")
		}
		return strings.Contains(container.Str, item.Str), nil
	default:
		return false, e.errAt(ErrType, pos, "%s does not support membership tests", container.Kind)
	}
}

func (e *Evaluator) arith(op string, a, b *model.Value, label model.Label, deps []int, pos script.Position) (*model.Value, error) {
	if op == "+" {
		if a.Kind == model.KindString && b.Kind == model.KindString {
			return model.StringValue(a.Str+b.Str, label).WithDeps(deps), nil
		}
		if a.Kind == model.KindList && b.Kind == model.KindList {
			elems := make([]*model.Value, 0, len(a.List)+len(b.List))
			elems = append(elems, a.List...)
			elems = append(elems, b.List...)
			return model.ListValue(elems, label).WithDeps(deps), nil
		}
	}
	na, okA := asNumber(a)
	nb, okB := asNumber(b)
	if !okA || !okB {
		return nil, e.errAt(ErrType, pos, "cannot apply %q to %s and %s", op, a.Kind, b.Kind)
	}
	bothInt := a.Kind == model.KindInt && b.Kind == model.KindInt

	switch op {
	case "+", "-", "*":
		if bothInt {
			var n int64
			switch op {
			case "+":
				n = a.Int + b.Int
			case "-":
				n = a.Int - b.Int
			case "*":
				n = a.Int * b.Int
			}
			return model.IntValue(n, label).WithDeps(deps), nil
		}
		var f float64
		switch op {
		case "+":
			f = na + nb
		case "-":
			f = na - nb
		case "*":
			f = na * nb
		}
		return model.FloatValue(f, label).WithDeps(deps), nil
	case "/":
		if nb == 0 {
			return nil, e.errAt(ErrValue, pos, "division by zero")
		}
		return model.FloatValue(na/nb, label).WithDeps(deps), nil
	case "%":
		if !bothInt {
			return nil, e.errAt(ErrType, pos, "%% requires integers")
		}
		if b.Int == 0 {
			return nil, e.errAt(ErrValue, pos, "modulo by zero")
		}
		return model.IntValue(a.Int%b.Int, label).WithDeps(deps), nil
	}
	return nil, e.errAt(ErrUnsupported, pos, "unsupported operator %q", op)
}

// evalTernary evaluates only the taken branch but derives the result from
// the condition too: the choice itself leaks which way the condition
// went.
func (e *Evaluator) evalTernary(ctx context.Context, x *script.Ternary) (*model.Value, error) {
	cond, err := e.evalExpr(ctx, x.Cond)
	if err != nil {
		return nil, err
	}
	branch := x.Then
	if !cond.Truthy() {
		branch = x.Else
	}
	v, err := e.evalExpr(ctx, branch)
	if err != nil {
		return nil, err
	}
	return v.Restamp(derivedLabel(cond, v), model.MergeDeps(cond, v)), nil
}

func (e *Evaluator) evalComp(ctx context.Context, x *script.Comp) (*model.Value, error) {
	e.env.Push()
	defer e.env.Pop()

	var elems []*model.Value
	var mapKeys []string
	var mapVals []*model.Value
	var inputs []*model.Value

	var run func(ctx context.Context, gens []script.CompGen) error
	run = func(ctx context.Context, gens []script.CompGen) error {
		gen := gens[0]
		iter, err := e.evalExpr(ctx, gen.Iter)
		if err != nil {
			return err
		}
		if iter.Kind != model.KindList {
			return e.errAt(ErrType, x.P, "cannot iterate over %s", iter.Kind)
		}
		inputs = append(inputs, iter)
		for _, elem := range iter.List {
			if err := e.bindCompTarget(gen.Target, elem, x.P); err != nil {
				return err
			}
			keep := true
			for _, filter := range gen.Filters {
				fv, err := e.evalExpr(ctx, filter)
				if err != nil {
					return err
				}
				inputs = append(inputs, fv)
				if !fv.Truthy() {
					keep = false
					break
				}
			}
			if !keep {
				continue
			}
			if len(gens) > 1 {
				if err := run(ctx, gens[1:]); err != nil {
					return err
				}
				continue
			}
			switch x.Kind {
			case script.CompMap:
				k, err := e.evalExpr(ctx, x.Key)
				if err != nil {
					return err
				}
				if k.Kind != model.KindString {
					return e.errAt(ErrType, x.P, "map keys must be strings, got %s", k.Kind)
				}
				v, err := e.evalExpr(ctx, x.Elt)
				if err != nil {
					return err
				}
				mapKeys = append(mapKeys, k.Str)
				mapVals = append(mapVals, v)
				inputs = append(inputs, k, v)
			default:
				v, err := e.evalExpr(ctx, x.Elt)
				if err != nil {
					return err
				}
				if x.Kind == script.CompSet {
					for _, seen := range elems {
						if model.Equal(seen, v) {
							v = nil
							break
						}
					}
					if v == nil {
						continue
					}
				}
				elems = append(elems, v)
				inputs = append(inputs, v)
			}
		}
		return nil
	}
	if err := run(ctx, x.Gens); err != nil {
		return nil, err
	}

	label := derivedLabel(inputs...)
	deps := model.MergeDeps(inputs...)
	if x.Kind == script.CompMap {
		m := make(map[string]*model.Value, len(mapKeys))
		for i, k := range mapKeys {
			m[k] = mapVals[i]
		}
		return model.MapValue(m, label).WithDeps(deps), nil
	}
	return model.ListValue(elems, label).WithDeps(deps), nil
}

// bindCompTarget binds comprehension generator variables directly in the
// pushed scope. No ValueNode is recorded: the bound element keeps its own
// producing deps, and the scope dies with the comprehension.
func (e *Evaluator) bindCompTarget(target script.Target, v *model.Value, pos script.Position) error {
	switch t := target.(type) {
	case *script.NameTarget:
		e.env.Set(t.Name, v)
		return nil
	case *script.TupleTarget:
		if v.Kind != model.KindList || len(v.List) != len(t.Elems) {
			return e.errAt(ErrValue, pos, "destructuring arity mismatch in comprehension")
		}
		for i, elem := range t.Elems {
			if err := e.bindCompTarget(elem, v.List[i], pos); err != nil {
				return err
			}
		}
		return nil
	default:
		return e.errAt(ErrUnsupported, pos, "unsupported comprehension target")
	}
}

// --- Calls ---

func (e *Evaluator) evalCall(ctx context.Context, x *script.Call) (*model.Value, error) {
	switch fn := x.Fn.(type) {
	case *script.Ident:
		if fn.Name == AssistantName {
			return e.callAssistant(ctx, x)
		}
		if isBuiltin(fn.Name) {
			return e.callBuiltin(ctx, fn.Name, x)
		}
		return e.callCapability(ctx, fn.Name, x)
	case *script.Attr:
		return e.callMethodExpr(ctx, fn, x)
	default:
		return nil, e.errAt(ErrUnsupported, x.P, "expression is not callable")
	}
}

func (e *Evaluator) callBuiltin(ctx context.Context, name string, x *script.Call) (*model.Value, error) {
	if len(x.Kwargs) > 0 {
		return nil, e.errAt(ErrType, x.P, "%s() takes no keyword arguments", name)
	}
	args := make([]*model.Value, 0, len(x.Args))
	for _, a := range x.Args {
		v, err := e.evalExpr(ctx, a)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	out, err := builtins[name](x.P, args)
	if err != nil {
		return nil, err
	}
	return out.WithDeps(model.MergeDeps(args...)), nil
}

func (e *Evaluator) callMethodExpr(ctx context.Context, fn *script.Attr, x *script.Call) (*model.Value, error) {
	if len(x.Kwargs) > 0 {
		return nil, e.errAt(ErrType, x.P, "methods take no keyword arguments")
	}
	recv, err := e.evalExpr(ctx, fn.X)
	if err != nil {
		return nil, err
	}
	args := make([]*model.Value, 0, len(x.Args))
	for _, a := range x.Args {
		v, err := e.evalExpr(ctx, a)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	out, err := callMethod(x.P, recv, fn.Name, args)
	if err != nil {
		return nil, err
	}
	return out.WithDeps(model.MergeDeps(append([]*model.Value{recv}, args...)...)), nil
}

// callAssistant runs the isolated assistant: prompt in, schema-validated
// record out. The result derives from the prompt and never upgrades
// integrity, so untrusted text stays untrusted through extraction.
func (e *Evaluator) callAssistant(ctx context.Context, x *script.Call) (*model.Value, error) {
	if e.assistant == nil {
		return nil, e.errAt(ErrUnsupported, x.P, "no assistant is configured")
	}
	if len(x.Args) != 2 || len(x.Kwargs) != 0 {
		return nil, e.errAt(ErrType, x.P, "%s() takes a prompt and a schema name", AssistantName)
	}
	prompt, err := e.evalExpr(ctx, x.Args[0])
	if err != nil {
		return nil, err
	}
	if prompt.Kind != model.KindString {
		return nil, e.errAt(ErrType, x.P, "%s() prompt must be a string, got %s", AssistantName, prompt.Kind)
	}
	schemaIdent, ok := x.Args[1].(*script.Ident)
	if !ok {
		return nil, e.errAt(ErrType, x.P, "%s() second argument must be a declared schema name", AssistantName)
	}
	schema, ok := e.schemas[schemaIdent.Name]
	if !ok {
		return nil, e.errAt(ErrUndefined, x.P, "schema %q is not declared", schemaIdent.Name)
	}

	result, err := e.assistant.Query(ctx, prompt.Str, schema)
	if err != nil {
		return nil, err
	}

	label := derivedLabel(prompt)
	id := e.graph.RecordCall(AssistantName, label, prompt.Deps)
	for _, guard := range e.control {
		e.graph.AddControlEdge(guard, id)
	}
	return result.Restamp(label, []int{id}), nil
}

func (e *Evaluator) callCapability(ctx context.Context, name string, x *script.Call) (*model.Value, error) {
	if e.caller == nil {
		return nil, e.errAt(ErrUndefined, x.P, "unknown function %q", name)
	}
	args := make([]model.NamedValue, 0, len(x.Args)+len(x.Kwargs))
	for _, a := range x.Args {
		v, err := e.evalExpr(ctx, a)
		if err != nil {
			return nil, err
		}
		args = append(args, model.NamedValue{Value: v})
	}
	for _, kw := range x.Kwargs {
		v, err := e.evalExpr(ctx, kw.Value)
		if err != nil {
			return nil, err
		}
		args = append(args, model.NamedValue{Name: kw.Name, Value: v})
	}
	controlDeps := make([]int, len(e.control))
	copy(controlDeps, e.control)
	result, err := e.caller.Invoke(ctx, name, args, controlDeps)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Evaluator) errAt(kind ErrorKind, pos script.Position, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Line: pos.Line, Col: pos.Column}
}
