package runtime

import (
	"encoding/json"
	"os"

	"nls.dev/nls/internal/errs"
	"nls.dev/nls/internal/parser"
	"nls.dev/nls/internal/staticenv"
)

// DefaultBuiltinsEnv builds the runtime root environment matching
// staticenv.DefaultBuiltins slot-for-slot: every name the static builder
// seeds above the document root (spec Open Question resolution #5) needs
// a runtime value behind it, or evalVar's "resolved statically but its
// runtime environment has no matching frame" failure fires on every bare
// use of `true`/`false`/`null`.
func DefaultBuiltinsEnv() *Env {
	values := map[string]Value{
		"true":  {Kind: KindBool, Bool: true},
		"false": {Kind: KindBool, Bool: false},
		"null":  Null,

		"import":      primopValue("import", builtinImport),
		"abort":       primopValue("abort", builtinAbort),
		"throw":       primopValue("throw", builtinThrow),
		"toString":    primopValue("toString", builtinToString),
		"toJSON":      primopValue("toJSON", builtinToJSON),
		"fromJSON":    primopValue("fromJSON", builtinFromJSON),
		"map":         curried2("map", builtinMap),
		"filter":      curried2("filter", builtinFilter),
		"removeAttrs": curried2("removeAttrs", builtinRemoveAttrs),
	}
	values["builtins"] = builtinsAttrsValue(values)
	return NewRootEnv(staticenv.DefaultBuiltins, values)
}

func primopValue(name string, fn func(ev *Evaluator, arg Value) (Value, *errs.Error)) Value {
	return Value{Kind: KindPrimop, Primop: &Primop{Name: name, Fn: fn}}
}

// curried2 builds a two-argument builtin (`f a b`) as a primop of a
// primop, the same application-by-repetition shape ordinary lambda calls
// already use (spec §3 has no multi-arg primop variant, only unary call).
func curried2(name string, fn func(ev *Evaluator, a, b Value) (Value, *errs.Error)) Value {
	return primopValue(name, func(ev *Evaluator, a Value) (Value, *errs.Error) {
		return primopValue(name+"/1", func(ev *Evaluator, b Value) (Value, *errs.Error) {
			return fn(ev, a, b)
		}), nil
	})
}

func builtinsAttrsValue(values map[string]Value) Value {
	names := []string{"import", "abort", "throw", "toString", "toJSON", "fromJSON", "map", "filter", "removeAttrs"}
	attrs := &Attrs{Entries: make(map[string]AttrsEntry, len(names))}
	for _, n := range names {
		attrs.Names = append(attrs.Names, n)
		attrs.Entries[n] = AttrsEntry{Value: Const(values[n])}
	}
	return Value{Kind: KindAttrs, Attrs: attrs}
}

// builtinImport reads, parses, and statically resolves the file named by
// arg (a path or string), returning a thunk over its root expression
// evaluated in a fresh builtins-seeded root environment. IO failure
// becomes an errs.KindIO diagnostic per spec §7, not a panic.
func builtinImport(ev *Evaluator, arg Value) (Value, *errs.Error) {
	v, err := ev.ForceValue(arg)
	if err != nil {
		return Null, err
	}
	if v.Kind != KindPath && v.Kind != KindString {
		return Null, errs.NewSentinelf(errs.KindEvaluation, "import requires a path or string argument")
	}
	src, ioErr := os.ReadFile(v.Str)
	if ioErr != nil {
		return Null, errs.NewSentinelf(errs.KindIO, "import %s: %v", v.Str, ioErr)
	}
	var el errs.List
	p := parser.New(src, &el)
	root := p.Parse()
	staticenv.Build(root, nil, &el)
	return Value{Kind: KindThunk, Thunk: NewThunk(root, DefaultBuiltinsEnv())}, nil
}

func builtinAbort(ev *Evaluator, arg Value) (Value, *errs.Error) {
	msg, _ := ev.coerceToString(mustForce(ev, arg))
	return Null, errs.NewSentinelf(errs.KindEvaluation, "evaluation aborted: %s", msg)
}

func builtinThrow(ev *Evaluator, arg Value) (Value, *errs.Error) {
	msg, _ := ev.coerceToString(mustForce(ev, arg))
	return Null, errs.NewSentinelf(errs.KindEvaluation, "%s", msg)
}

func mustForce(ev *Evaluator, v Value) Value {
	forced, err := ev.ForceValue(v)
	if err != nil {
		return Null
	}
	return forced
}

func builtinToString(ev *Evaluator, arg Value) (Value, *errs.Error) {
	v, err := ev.ForceValue(arg)
	if err != nil {
		return Null, err
	}
	s, ok := ev.coerceToString(v)
	if !ok {
		return Null, errs.NewSentinelf(errs.KindEvaluation, "toString: value has no string representation")
	}
	return Value{Kind: KindString, Str: s}, nil
}

func builtinToJSON(ev *Evaluator, arg Value) (Value, *errs.Error) {
	v, err := ev.ForceValue(arg)
	if err != nil {
		return Null, err
	}
	native, cerr := ev.toJSONNative(v)
	if cerr != nil {
		return Null, cerr
	}
	b, jerr := json.Marshal(native)
	if jerr != nil {
		return Null, errs.NewSentinelf(errs.KindEvaluation, "toJSON: %v", jerr)
	}
	return Value{Kind: KindString, Str: string(b)}, nil
}

func (ev *Evaluator) toJSONNative(v Value) (any, *errs.Error) {
	switch v.Kind {
	case KindNull:
		return nil, nil
	case KindBool:
		return v.Bool, nil
	case KindInt:
		return v.Int, nil
	case KindFloat:
		return v.Float, nil
	case KindString, KindPath:
		return v.Str, nil
	case KindList:
		out := make([]any, len(v.List))
		for i, t := range v.List {
			ev2, err := ev.ForceValue(Value{Kind: KindThunk, Thunk: t})
			if err != nil {
				return nil, err
			}
			n, err := ev.toJSONNative(ev2)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case KindAttrs:
		out := make(map[string]any, len(v.Attrs.Names))
		for _, name := range v.Attrs.Names {
			entry := v.Attrs.Entries[name]
			ev2, err := ev.ForceValue(Value{Kind: KindThunk, Thunk: entry.Value})
			if err != nil {
				return nil, err
			}
			n, err := ev.toJSONNative(ev2)
			if err != nil {
				return nil, err
			}
			out[name] = n
		}
		return out, nil
	default:
		return nil, errs.NewSentinelf(errs.KindEvaluation, "toJSON: value is not representable in JSON")
	}
}

func builtinFromJSON(ev *Evaluator, arg Value) (Value, *errs.Error) {
	v, err := ev.ForceValue(arg)
	if err != nil {
		return Null, err
	}
	if v.Kind != KindString {
		return Null, errs.NewSentinelf(errs.KindEvaluation, "fromJSON requires a string argument")
	}
	var native any
	if jerr := json.Unmarshal([]byte(v.Str), &native); jerr != nil {
		return Null, errs.NewSentinelf(errs.KindEvaluation, "fromJSON: %v", jerr)
	}
	return fromJSONNative(native), nil
}

func fromJSONNative(native any) Value {
	switch x := native.(type) {
	case nil:
		return Null
	case bool:
		return Value{Kind: KindBool, Bool: x}
	case float64:
		return Value{Kind: KindFloat, Float: x}
	case string:
		return Value{Kind: KindString, Str: x}
	case []any:
		list := make([]*Thunk, len(x))
		for i, e := range x {
			list[i] = Const(fromJSONNative(e))
		}
		return Value{Kind: KindList, List: list}
	case map[string]any:
		attrs := &Attrs{Entries: make(map[string]AttrsEntry, len(x))}
		for k, e := range x {
			attrs.Names = append(attrs.Names, k)
			attrs.Entries[k] = AttrsEntry{Value: Const(fromJSONNative(e))}
		}
		return Value{Kind: KindAttrs, Attrs: attrs}
	default:
		return Null
	}
}

// builtinMap applies f lazily to every element of list: each result stays
// a thunk until its consumer forces it, matching the rest of this
// package's head-forcing-only discipline.
func builtinMap(ev *Evaluator, f, list Value) (Value, *errs.Error) {
	lv, err := ev.ForceValue(list)
	if err != nil {
		return Null, err
	}
	if lv.Kind != KindList {
		return Null, errs.NewSentinelf(errs.KindEvaluation, "map requires a list argument")
	}
	out := make([]*Thunk, len(lv.List))
	for i, elemThunk := range lv.List {
		elem := Value{Kind: KindThunk, Thunk: elemThunk}
		out[i] = callThunk(ev, f, elem)
	}
	return Value{Kind: KindList, List: out}, nil
}

// builtinFilter must force each predicate result to decide membership, so
// it is the one builtin here that cannot stay fully lazy about its
// elements — only their values remain thunked.
func builtinFilter(ev *Evaluator, pred, list Value) (Value, *errs.Error) {
	lv, err := ev.ForceValue(list)
	if err != nil {
		return Null, err
	}
	if lv.Kind != KindList {
		return Null, errs.NewSentinelf(errs.KindEvaluation, "filter requires a list argument")
	}
	var out []*Thunk
	for _, elemThunk := range lv.List {
		elem := Value{Kind: KindThunk, Thunk: elemThunk}
		res, cerr := ev.Call(pred, elem)
		if cerr != nil {
			return Null, cerr
		}
		keep, ferr := ev.ForceValue(res)
		if ferr != nil {
			return Null, ferr
		}
		if keep.Kind == KindBool && keep.Bool {
			out = append(out, elemThunk)
		}
	}
	return Value{Kind: KindList, List: out}, nil
}

func builtinRemoveAttrs(ev *Evaluator, attrsVal, namesVal Value) (Value, *errs.Error) {
	av, err := ev.ForceValue(attrsVal)
	if err != nil {
		return Null, err
	}
	if av.Kind != KindAttrs {
		return Null, errs.NewSentinelf(errs.KindEvaluation, "removeAttrs requires an attrset argument")
	}
	nv, err := ev.ForceValue(namesVal)
	if err != nil {
		return Null, err
	}
	if nv.Kind != KindList {
		return Null, errs.NewSentinelf(errs.KindEvaluation, "removeAttrs requires a list of names")
	}
	remove := make(map[string]bool, len(nv.List))
	for _, t := range nv.List {
		nameVal, ferr := ev.ForceValue(Value{Kind: KindThunk, Thunk: t})
		if ferr != nil {
			return Null, ferr
		}
		if nameVal.Kind == KindString {
			remove[nameVal.Str] = true
		}
	}
	out := &Attrs{Entries: make(map[string]AttrsEntry, len(av.Attrs.Names))}
	for _, name := range av.Attrs.Names {
		if remove[name] {
			continue
		}
		out.Names = append(out.Names, name)
		out.Entries[name] = av.Attrs.Entries[name]
	}
	return Value{Kind: KindAttrs, Attrs: out}, nil
}

// callThunk defers a call so the result of applying f to arg is itself
// lazy — needed by map, which must not force each element's mapped value
// up front.
func callThunk(ev *Evaluator, f, arg Value) *Thunk {
	return NewCallThunk(func() (Value, *errs.Error) { return ev.Call(f, arg) })
}
