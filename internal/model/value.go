package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind enumerates the value shapes the interpreter manipulates.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindTime
	KindList
	KindMap
	KindRecord
)

// String returns the human-readable kind name used in error messages.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindTime:
		return "time"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindRecord:
		return "record"
	default:
		return "unknown"
	}
}

// TimeLayout is the wire format for time values in raw representations
// and f-string rendering.
const TimeLayout = "2006-01-02 15:04"

// Value wraps one interpreted value with its Label and its producing
// flow-graph nodes. Every Value exclusively owns its Label; derivation
// produces a fresh Value, never a mutation of an input.
type Value struct {
	Kind  Kind
	Bool  bool
	Int   int64
	Float float64
	Str   string
	Time  time.Time
	List  []*Value
	Map   map[string]*Value
	Rec   *Record

	Label Label

	// Deps are the flow-graph node IDs this value descends from. A value
	// bound to a name carries exactly its ValueNode; a capability result
	// carries its CallNode; an unbound expression carries the union of
	// its operands' deps.
	Deps []int
}

// Record is a structured value declared by a script schema.
type Record struct {
	Schema *Schema
	Fields map[string]*Value
}

// Constructors. Each returns a fresh Value with the given label.

func Null(label Label) *Value  { return &Value{Kind: KindNull, Label: label} }
func True(label Label) *Value  { return &Value{Kind: KindBool, Bool: true, Label: label} }
func False(label Label) *Value { return &Value{Kind: KindBool, Bool: false, Label: label} }

func BoolValue(b bool, label Label) *Value {
	return &Value{Kind: KindBool, Bool: b, Label: label}
}

func IntValue(n int64, label Label) *Value {
	return &Value{Kind: KindInt, Int: n, Label: label}
}

func FloatValue(f float64, label Label) *Value {
	return &Value{Kind: KindFloat, Float: f, Label: label}
}

func StringValue(s string, label Label) *Value {
	return &Value{Kind: KindString, Str: s, Label: label}
}

func TimeValue(t time.Time, label Label) *Value {
	return &Value{Kind: KindTime, Time: t, Label: label}
}

func ListValue(elems []*Value, label Label) *Value {
	return &Value{Kind: KindList, List: elems, Label: label}
}

func MapValue(m map[string]*Value, label Label) *Value {
	return &Value{Kind: KindMap, Map: m, Label: label}
}

func RecordValue(rec *Record, label Label) *Value {
	return &Value{Kind: KindRecord, Rec: rec, Label: label}
}

// Truthy reports the boolean interpretation of the value: empty
// collections, zero numbers, empty strings, and null are false.
func (v *Value) Truthy() bool {
	switch v.Kind {
	case KindNull:
		return false
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int != 0
	case KindFloat:
		return v.Float != 0
	case KindString:
		return v.Str != ""
	case KindTime:
		return !v.Time.IsZero()
	case KindList:
		return len(v.List) > 0
	case KindMap:
		return len(v.Map) > 0
	case KindRecord:
		return true
	default:
		return false
	}
}

// Display renders the value for f-strings and CLI output.
func (v *Value) Display() string {
	switch v.Kind {
	case KindNull:
		return "None"
	case KindBool:
		if v.Bool {
			return "True"
		}
		return "False"
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindString:
		return v.Str
	case KindTime:
		return v.Time.Format(TimeLayout)
	case KindList:
		parts := make([]string, len(v.List))
		for i, e := range v.List {
			parts[i] = e.Display()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindMap:
		keys := make([]string, 0, len(v.Map))
		for k := range v.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s: %s", k, v.Map[k].Display())
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case KindRecord:
		if v.Rec == nil || v.Rec.Schema == nil {
			return "record()"
		}
		parts := make([]string, 0, len(v.Rec.Schema.Fields))
		for _, f := range v.Rec.Schema.Fields {
			if fv, ok := v.Rec.Fields[f.Name]; ok {
				parts = append(parts, fmt.Sprintf("%s=%s", f.Name, fv.Display()))
			}
		}
		return v.Rec.Schema.Name + "(" + strings.Join(parts, ", ") + ")"
	default:
		return ""
	}
}

// Raw converts the value to its host representation for policy checks and
// capability invocation: scalars become Go scalars, times become formatted
// strings, lists become []any, maps and records become map[string]any.
// Labels are not part of the raw form.
func (v *Value) Raw() any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindString:
		return v.Str
	case KindTime:
		return v.Time.Format(TimeLayout)
	case KindList:
		out := make([]any, len(v.List))
		for i, e := range v.List {
			out[i] = e.Raw()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.Map))
		for k, e := range v.Map {
			out[k] = e.Raw()
		}
		return out
	case KindRecord:
		out := make(map[string]any, len(v.Rec.Fields))
		for k, e := range v.Rec.Fields {
			out[k] = e.Raw()
		}
		return out
	default:
		return nil
	}
}

// Equal compares two values structurally, ignoring labels. Int/float
// comparisons are numeric.
func Equal(a, b *Value) bool {
	if a.Kind != b.Kind {
		if na, okA := numeric(a); okA {
			if nb, okB := numeric(b); okB {
				return na == nb
			}
		}
		return false
	}
	switch a.Kind {
	case KindNull:
		return true
	case KindBool:
		return a.Bool == b.Bool
	case KindInt:
		return a.Int == b.Int
	case KindFloat:
		return a.Float == b.Float
	case KindString:
		return a.Str == b.Str
	case KindTime:
		return a.Time.Equal(b.Time)
	case KindList:
		if len(a.List) != len(b.List) {
			return false
		}
		for i := range a.List {
			if !Equal(a.List[i], b.List[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.Map) != len(b.Map) {
			return false
		}
		for k, av := range a.Map {
			bv, ok := b.Map[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case KindRecord:
		if len(a.Rec.Fields) != len(b.Rec.Fields) {
			return false
		}
		for k, av := range a.Rec.Fields {
			bv, ok := b.Rec.Fields[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func numeric(v *Value) (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.Int), true
	case KindFloat:
		return v.Float, true
	default:
		return 0, false
	}
}

// Restamp returns a copy of v (recursively for collections) with every
// label replaced by the given one. Used by the gateway to stamp capability
// results and by the assistant call to stamp parsed responses.
func (v *Value) Restamp(label Label, deps []int) *Value {
	out := &Value{Kind: v.Kind, Bool: v.Bool, Int: v.Int, Float: v.Float, Str: v.Str, Time: v.Time, Label: label.Clone(), Deps: deps}
	switch v.Kind {
	case KindList:
		out.List = make([]*Value, len(v.List))
		for i, e := range v.List {
			out.List[i] = e.Restamp(label, deps)
		}
	case KindMap:
		out.Map = make(map[string]*Value, len(v.Map))
		for k, e := range v.Map {
			out.Map[k] = e.Restamp(label, deps)
		}
	case KindRecord:
		fields := make(map[string]*Value, len(v.Rec.Fields))
		for k, e := range v.Rec.Fields {
			fields[k] = e.Restamp(label, deps)
		}
		out.Rec = &Record{Schema: v.Rec.Schema, Fields: fields}
	}
	return out
}

// WithDeps returns a shallow copy of v bound to the given producing nodes.
func (v *Value) WithDeps(deps []int) *Value {
	out := *v
	out.Deps = deps
	return &out
}

// MergeDeps unions the dep node sets of the given values.
func MergeDeps(values ...*Value) []int {
	seen := map[int]bool{}
	var out []int
	for _, v := range values {
		if v == nil {
			continue
		}
		for _, d := range v.Deps {
			if !seen[d] {
				seen[d] = true
				out = append(out, d)
			}
		}
	}
	return out
}

// Labels extracts the labels of the given values.
func Labels(values ...*Value) []Label {
	out := make([]Label, 0, len(values))
	for _, v := range values {
		if v != nil {
			out = append(out, v.Label)
		}
	}
	return out
}
