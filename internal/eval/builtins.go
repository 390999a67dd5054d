package eval

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/planguard/planguard/internal/model"
	"github.com/planguard/planguard/internal/script"
)

// builtinFn is a pure built-in function. Builtins never touch the
// gateway; their results derive from their arguments only. The evaluator
// stamps dependency ids after the call, so builtins only set labels.
type builtinFn func(pos script.Position, args []*model.Value) (*model.Value, error)

var builtins = map[string]builtinFn{
	"len":         builtinLen,
	"str":         builtinStr,
	"int":         builtinInt,
	"float":       builtinFloat,
	"bool":        builtinBool,
	"abs":         builtinAbs,
	"min":         builtinMin,
	"max":         builtinMax,
	"sum":         builtinSum,
	"sorted":      builtinSorted,
	"range":       builtinRange,
	"now":         builtinNow,
	"today":       builtinToday,
	"parse_date":  builtinParseDate,
	"format_date": builtinFormatDate,
	"add_days":    builtinAddDays,
	"add_hours":   builtinAddHours,
}

func isBuiltin(name string) bool {
	_, ok := builtins[name]
	return ok
}

func argCount(name string, pos script.Position, args []*model.Value, min, max int) error {
	if len(args) < min || len(args) > max {
		if min == max {
			return &Error{Kind: ErrType, Msg: fmt.Sprintf("%s() takes %d argument(s), got %d", name, min, len(args)), Line: pos.Line, Col: pos.Column}
		}
		return &Error{Kind: ErrType, Msg: fmt.Sprintf("%s() takes %d to %d arguments, got %d", name, min, max, len(args)), Line: pos.Line, Col: pos.Column}
	}
	return nil
}

func derivedLabel(args ...*model.Value) model.Label {
	return model.Derived(model.Labels(args...)...)
}

func builtinLen(pos script.Position, args []*model.Value) (*model.Value, error) {
	if err := argCount("len", pos, args, 1, 1); err != nil {
		return nil, err
	}
	v := args[0]
	var n int
	switch v.Kind {
	case model.KindString:
		n = len(v.Str)
	case model.KindList:
		n = len(v.List)
	case model.KindMap:
		n = len(v.Map)
	default:
		return nil, &Error{Kind: ErrType, Msg: fmt.Sprintf("len() of %s", v.Kind), Line: pos.Line, Col: pos.Column}
	}
	return model.IntValue(int64(n), derivedLabel(v)), nil
}

func builtinStr(pos script.Position, args []*model.Value) (*model.Value, error) {
	if err := argCount("str", pos, args, 1, 1); err != nil {
		return nil, err
	}
	return model.StringValue(args[0].Display(), derivedLabel(args[0])), nil
}

func builtinInt(pos script.Position, args []*model.Value) (*model.Value, error) {
	if err := argCount("int", pos, args, 1, 1); err != nil {
		return nil, err
	}
	v := args[0]
	switch v.Kind {
	case model.KindInt:
		return model.IntValue(v.Int, derivedLabel(v)), nil
	case model.KindFloat:
		return model.IntValue(int64(v.Float), derivedLabel(v)), nil
	case model.KindBool:
		if v.Bool {
			return model.IntValue(1, derivedLabel(v)), nil
		}
		return model.IntValue(0, derivedLabel(v)), nil
	case model.KindString:
		n, err := strconv.ParseInt(strings.TrimSpace(v.Str), 10, 64)
		if err != nil {
			return nil, &Error{Kind: ErrValue, Msg: fmt.Sprintf("int() cannot parse %q", v.Str), Line: pos.Line, Col: pos.Column}
		}
		return model.IntValue(n, derivedLabel(v)), nil
	default:
		return nil, &Error{Kind: ErrType, Msg: fmt.Sprintf("int() of %s", v.Kind), Line: pos.Line, Col: pos.Column}
	}
}

func builtinFloat(pos script.Position, args []*model.Value) (*model.Value, error) {
	if err := argCount("float", pos, args, 1, 1); err != nil {
		return nil, err
	}
	v := args[0]
	switch v.Kind {
	case model.KindInt:
		return model.FloatValue(float64(v.Int), derivedLabel(v)), nil
	case model.KindFloat:
		return model.FloatValue(v.Float, derivedLabel(v)), nil
	case model.KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return nil, &Error{Kind: ErrValue, Msg: fmt.Sprintf("float() cannot parse %q", v.Str), Line: pos.Line, Col: pos.Column}
		}
		return model.FloatValue(f, derivedLabel(v)), nil
	default:
		return nil, &Error{Kind: ErrType, Msg: fmt.Sprintf("float() of %s", v.Kind), Line: pos.Line, Col: pos.Column}
	}
}

func builtinBool(pos script.Position, args []*model.Value) (*model.Value, error) {
	if err := argCount("bool", pos, args, 1, 1); err != nil {
		return nil, err
	}
	return model.BoolValue(args[0].Truthy(), derivedLabel(args[0])), nil
}

func builtinAbs(pos script.Position, args []*model.Value) (*model.Value, error) {
	if err := argCount("abs", pos, args, 1, 1); err != nil {
		return nil, err
	}
	v := args[0]
	switch v.Kind {
	case model.KindInt:
		n := v.Int
		if n < 0 {
			n = -n
		}
		return model.IntValue(n, derivedLabel(v)), nil
	case model.KindFloat:
		f := v.Float
		if f < 0 {
			f = -f
		}
		return model.FloatValue(f, derivedLabel(v)), nil
	default:
		return nil, &Error{Kind: ErrType, Msg: fmt.Sprintf("abs() of %s", v.Kind), Line: pos.Line, Col: pos.Column}
	}
}

// less orders two values for min/max/sorted. Numbers compare numerically,
// strings lexicographically, times chronologically.
func less(a, b *model.Value) (bool, bool) {
	if na, okA := asNumber(a); okA {
		if nb, okB := asNumber(b); okB {
			return na < nb, true
		}
		return false, false
	}
	if a.Kind == model.KindString && b.Kind == model.KindString {
		return a.Str < b.Str, true
	}
	if a.Kind == model.KindTime && b.Kind == model.KindTime {
		return a.Time.Before(b.Time), true
	}
	return false, false
}

func asNumber(v *model.Value) (float64, bool) {
	switch v.Kind {
	case model.KindInt:
		return float64(v.Int), true
	case model.KindFloat:
		return v.Float, true
	}
	return 0, false
}

// extremeItems flattens min/max arguments: a single list argument means
// its elements, otherwise the arguments themselves.
func extremeItems(args []*model.Value) []*model.Value {
	if len(args) == 1 && args[0].Kind == model.KindList {
		return args[0].List
	}
	return args
}

func builtinMin(pos script.Position, args []*model.Value) (*model.Value, error) {
	return extreme("min", pos, args, true)
}

func builtinMax(pos script.Position, args []*model.Value) (*model.Value, error) {
	return extreme("max", pos, args, false)
}

func extreme(name string, pos script.Position, args []*model.Value, wantMin bool) (*model.Value, error) {
	if len(args) == 0 {
		return nil, &Error{Kind: ErrType, Msg: name + "() requires at least one argument", Line: pos.Line, Col: pos.Column}
	}
	items := extremeItems(args)
	if len(items) == 0 {
		return nil, &Error{Kind: ErrValue, Msg: name + "() of empty sequence", Line: pos.Line, Col: pos.Column}
	}
	best := items[0]
	for _, it := range items[1:] {
		lt, ok := less(it, best)
		if !ok {
			return nil, &Error{Kind: ErrType, Msg: name + "() operands are not comparable", Line: pos.Line, Col: pos.Column}
		}
		if lt == wantMin {
			best = it
		}
	}
	return best.Restamp(derivedLabel(args...), best.Deps), nil
}

func builtinSum(pos script.Position, args []*model.Value) (*model.Value, error) {
	if err := argCount("sum", pos, args, 1, 1); err != nil {
		return nil, err
	}
	if args[0].Kind != model.KindList {
		return nil, &Error{Kind: ErrType, Msg: "sum() requires a list", Line: pos.Line, Col: pos.Column}
	}
	var accInt int64
	var accFloat float64
	isFloat := false
	for _, e := range args[0].List {
		switch e.Kind {
		case model.KindInt:
			accInt += e.Int
			accFloat += float64(e.Int)
		case model.KindFloat:
			isFloat = true
			accFloat += e.Float
		default:
			return nil, &Error{Kind: ErrType, Msg: fmt.Sprintf("sum() of list containing %s", e.Kind), Line: pos.Line, Col: pos.Column}
		}
	}
	if isFloat {
		return model.FloatValue(accFloat, derivedLabel(args[0])), nil
	}
	return model.IntValue(accInt, derivedLabel(args[0])), nil
}

func builtinSorted(pos script.Position, args []*model.Value) (*model.Value, error) {
	if err := argCount("sorted", pos, args, 1, 1); err != nil {
		return nil, err
	}
	if args[0].Kind != model.KindList {
		return nil, &Error{Kind: ErrType, Msg: "sorted() requires a list", Line: pos.Line, Col: pos.Column}
	}
	elems := make([]*model.Value, len(args[0].List))
	copy(elems, args[0].List)
	sortable := true
	sort.SliceStable(elems, func(i, j int) bool {
		lt, ok := less(elems[i], elems[j])
		if !ok {
			sortable = false
			return false
		}
		return lt
	})
	if !sortable {
		return nil, &Error{Kind: ErrType, Msg: "sorted() elements are not comparable", Line: pos.Line, Col: pos.Column}
	}
	return model.ListValue(elems, derivedLabel(args[0])), nil
}

func builtinRange(pos script.Position, args []*model.Value) (*model.Value, error) {
	if err := argCount("range", pos, args, 1, 3); err != nil {
		return nil, err
	}
	nums := make([]int64, len(args))
	for i, a := range args {
		if a.Kind != model.KindInt {
			return nil, &Error{Kind: ErrType, Msg: "range() arguments must be integers", Line: pos.Line, Col: pos.Column}
		}
		nums[i] = a.Int
	}
	start, stop, step := int64(0), int64(0), int64(1)
	switch len(nums) {
	case 1:
		stop = nums[0]
	case 2:
		start, stop = nums[0], nums[1]
	case 3:
		start, stop, step = nums[0], nums[1], nums[2]
	}
	if step == 0 {
		return nil, &Error{Kind: ErrValue, Msg: "range() step must not be zero", Line: pos.Line, Col: pos.Column}
	}
	label := derivedLabel(args...)
	var elems []*model.Value
	if step > 0 {
		for n := start; n < stop; n += step {
			elems = append(elems, model.IntValue(n, label))
		}
	} else {
		for n := start; n > stop; n += step {
			elems = append(elems, model.IntValue(n, label))
		}
	}
	return model.ListValue(elems, label), nil
}

func builtinNow(pos script.Position, args []*model.Value) (*model.Value, error) {
	if err := argCount("now", pos, args, 0, 0); err != nil {
		return nil, err
	}
	return model.TimeValue(time.Now(), model.LiteralLabel()), nil
}

func builtinToday(pos script.Position, args []*model.Value) (*model.Value, error) {
	if err := argCount("today", pos, args, 0, 0); err != nil {
		return nil, err
	}
	y, m, d := time.Now().Date()
	return model.TimeValue(time.Date(y, m, d, 0, 0, 0, 0, time.Local), model.LiteralLabel()), nil
}

var dateLayouts = []string{model.TimeLayout, "2006-01-02", time.RFC3339}

func builtinParseDate(pos script.Position, args []*model.Value) (*model.Value, error) {
	if err := argCount("parse_date", pos, args, 1, 1); err != nil {
		return nil, err
	}
	if args[0].Kind != model.KindString {
		return nil, &Error{Kind: ErrType, Msg: "parse_date() requires a string", Line: pos.Line, Col: pos.Column}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(args[0].Str)); err == nil {
			return model.TimeValue(t, derivedLabel(args[0])), nil
		}
	}
	return nil, &Error{Kind: ErrValue, Msg: fmt.Sprintf("parse_date() cannot parse %q", args[0].Str), Line: pos.Line, Col: pos.Column}
}

func builtinFormatDate(pos script.Position, args []*model.Value) (*model.Value, error) {
	if err := argCount("format_date", pos, args, 1, 1); err != nil {
		return nil, err
	}
	if args[0].Kind != model.KindTime {
		return nil, &Error{Kind: ErrType, Msg: "format_date() requires a datetime", Line: pos.Line, Col: pos.Column}
	}
	return model.StringValue(args[0].Time.Format(model.TimeLayout), derivedLabel(args[0])), nil
}

func builtinAddDays(pos script.Position, args []*model.Value) (*model.Value, error) {
	return shiftTime("add_days", pos, args, 24*time.Hour)
}

func builtinAddHours(pos script.Position, args []*model.Value) (*model.Value, error) {
	return shiftTime("add_hours", pos, args, time.Hour)
}

func shiftTime(name string, pos script.Position, args []*model.Value, unit time.Duration) (*model.Value, error) {
	if err := argCount(name, pos, args, 2, 2); err != nil {
		return nil, err
	}
	if args[0].Kind != model.KindTime || args[1].Kind != model.KindInt {
		return nil, &Error{Kind: ErrType, Msg: name + "() requires a datetime and an integer", Line: pos.Line, Col: pos.Column}
	}
	return model.TimeValue(args[0].Time.Add(time.Duration(args[1].Int)*unit), derivedLabel(args...)), nil
}

// callMethod dispatches the fixed method table for string and map values.
// Methods are pure; anything outside the table is an unsupported
// construct.
func callMethod(pos script.Position, recv *model.Value, name string, args []*model.Value) (*model.Value, error) {
	switch recv.Kind {
	case model.KindString:
		return stringMethod(pos, recv, name, args)
	case model.KindMap:
		return mapMethod(pos, recv, name, args)
	}
	return nil, &Error{Kind: ErrUnsupported, Msg: fmt.Sprintf("%s has no method %q", recv.Kind, name), Line: pos.Line, Col: pos.Column}
}

func stringMethod(pos script.Position, recv *model.Value, name string, args []*model.Value) (*model.Value, error) {
	label := derivedLabel(append([]*model.Value{recv}, args...)...)
	strArgs := func(n int) ([]string, error) {
		if len(args) != n {
			return nil, &Error{Kind: ErrType, Msg: fmt.Sprintf("%s() takes %d argument(s), got %d", name, n, len(args)), Line: pos.Line, Col: pos.Column}
		}
		out := make([]string, n)
		for i, a := range args {
			if a.Kind != model.KindString {
				return nil, &Error{Kind: ErrType, Msg: fmt.Sprintf("%s() arguments must be strings", name), Line: pos.Line, Col: pos.Column}
			}
			out[i] = a.Str
		}
		return out, nil
	}
	switch name {
	case "lower":
		if _, err := strArgs(0); err != nil {
			return nil, err
		}
		return model.StringValue(strings.ToLower(recv.Str), label), nil
	case "upper":
		if _, err := strArgs(0); err != nil {
			return nil, err
		}
		return model.StringValue(strings.ToUpper(recv.Str), label), nil
	case "strip":
		if _, err := strArgs(0); err != nil {
			return nil, err
		}
		return model.StringValue(strings.TrimSpace(recv.Str), label), nil
	case "split":
		if len(args) == 0 {
			parts := strings.Fields(recv.Str)
			elems := make([]*model.Value, len(parts))
			for i, p := range parts {
				elems[i] = model.StringValue(p, label)
			}
			return model.ListValue(elems, label), nil
		}
		sa, err := strArgs(1)
		if err != nil {
			return nil, err
		}
		parts := strings.Split(recv.Str, sa[0])
		elems := make([]*model.Value, len(parts))
		for i, p := range parts {
			elems[i] = model.StringValue(p, label)
		}
		return model.ListValue(elems, label), nil
	case "replace":
		sa, err := strArgs(2)
		if err != nil {
			return nil, err
		}
		return model.StringValue(strings.ReplaceAll(recv.Str, sa[0], sa[1]), label), nil
	case "startswith":
		sa, err := strArgs(1)
		if err != nil {
			return nil, err
		}
		return model.BoolValue(strings.HasPrefix(recv.Str, sa[0]), label), nil
	case "endswith":
		sa, err := strArgs(1)
		if err != nil {
			return nil, err
		}
		return model.BoolValue(strings.HasSuffix(recv.Str, sa[0]), label), nil
	}
	return nil, &Error{Kind: ErrUnsupported, Msg: fmt.Sprintf("string has no method %q", name), Line: pos.Line, Col: pos.Column}
}

func mapMethod(pos script.Position, recv *model.Value, name string, args []*model.Value) (*model.Value, error) {
	label := derivedLabel(append([]*model.Value{recv}, args...)...)
	switch name {
	case "get":
		if len(args) < 1 || len(args) > 2 {
			return nil, &Error{Kind: ErrType, Msg: "get() takes 1 or 2 arguments", Line: pos.Line, Col: pos.Column}
		}
		if args[0].Kind != model.KindString {
			return nil, &Error{Kind: ErrType, Msg: "get() key must be a string", Line: pos.Line, Col: pos.Column}
		}
		if v, ok := recv.Map[args[0].Str]; ok {
			return v, nil
		}
		if len(args) == 2 {
			return args[1], nil
		}
		return model.Null(label), nil
	case "keys":
		keys := make([]string, 0, len(recv.Map))
		for k := range recv.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		elems := make([]*model.Value, len(keys))
		for i, k := range keys {
			elems[i] = model.StringValue(k, label)
		}
		return model.ListValue(elems, label), nil
	case "values":
		keys := make([]string, 0, len(recv.Map))
		for k := range recv.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		elems := make([]*model.Value, len(keys))
		for i, k := range keys {
			elems[i] = recv.Map[k]
		}
		return model.ListValue(elems, label), nil
	}
	return nil, &Error{Kind: ErrUnsupported, Msg: fmt.Sprintf("map has no method %q", name), Line: pos.Line, Col: pos.Column}
}
