package runtime

import (
	"nls.dev/nls/internal/ast"
	"nls.dev/nls/internal/errs"
	"nls.dev/nls/internal/position"
	"nls.dev/nls/internal/staticenv"
)

// Evaluator implements spec §4.7's evaluator interface: force-value,
// eval, and call. Grounded on go-jsonnet's interpreter, with one hard
// guarantee spec §4.7 calls out explicitly — no method here may ever
// panic or otherwise propagate a fatal error; every failure is returned
// as an *errs.Error.
type Evaluator struct{}

// NewEvaluator returns a ready-to-use Evaluator. It carries no state of
// its own; all state lives in the Env/Thunk graph passed to it.
func NewEvaluator() *Evaluator { return &Evaluator{} }

// ForceValue reduces v to head normal form: a thunk chases its own
// forcing exactly once (spec §4.7: "force-value(v) → result ... a thunk
// is forced at most once, then cached"). ForceValue does not recurse
// into list elements or attrs entries — those stay lazy until selected.
func (ev *Evaluator) ForceValue(v Value) (Value, *errs.Error) {
	for v.Kind == KindThunk {
		forced, err := ev.forceThunk(v.Thunk)
		if err != nil {
			return Null, err
		}
		v = forced
	}
	return v, nil
}

func (ev *Evaluator) forceThunk(t *Thunk) (Value, *errs.Error) {
	t.once.Do(func() {
		if t.call != nil {
			t.val, t.err = t.call()
			return
		}
		t.val, t.err = ev.evalExpr(t.Expr, t.Env)
	})
	return t.val, t.err
}

// Eval evaluates expr in env to a (possibly still-lazy) Value, per spec
// §4.7's "eval(expr, env) → value".
func (ev *Evaluator) Eval(expr ast.Expr, env *Env) (Value, *errs.Error) {
	return ev.evalExpr(expr, env)
}

// Call applies fun to arg, per spec §4.7's "call(fun, arg) → value".
// fun is forced first; applying anything else is an evaluation error.
func (ev *Evaluator) Call(fun Value, arg Value) (Value, *errs.Error) {
	forced, err := ev.ForceValue(fun)
	if err != nil {
		return Null, err
	}
	switch forced.Kind {
	case KindLambda:
		callEnv := buildLambdaEnv(forced.Lambda, forced.LambdaEnv, ev, LambdaArgs{forced.Lambda: arg})
		return Value{Kind: KindThunk, Thunk: NewThunk(forced.Lambda.Body, callEnv)}, nil
	case KindPrimop:
		return forced.Primop.Fn(ev, arg)
	default:
		return Null, errs.NewSentinelf(errs.KindEvaluation, "attempt to call a value that is not a function")
	}
}

func thunkOf(expr ast.Expr, env *Env) Value {
	return Value{Kind: KindThunk, Thunk: NewThunk(expr, env)}
}

func (ev *Evaluator) forceExpr(expr ast.Expr, env *Env) (Value, *errs.Error) {
	return ev.ForceValue(thunkOf(expr, env))
}

func (ev *Evaluator) evalExpr(expr ast.Expr, env *Env) (Value, *errs.Error) {
	switch x := expr.(type) {
	case *ast.IntLit:
		return Value{Kind: KindInt, Int: x.Value}, nil
	case *ast.FloatLit:
		return Value{Kind: KindFloat, Float: x.Value}, nil
	case *ast.StringLit:
		return Value{Kind: KindString, Str: x.Value}, nil
	case *ast.PathLit:
		return Value{Kind: KindPath, Str: x.Value}, nil
	case *ast.Var:
		return ev.evalVar(x, env)
	case *ast.AttrSet:
		return ev.evalAttrSet(x, env)
	case *ast.List:
		elems := make([]*Thunk, len(x.Elems))
		for i, e := range x.Elems {
			elems[i] = NewThunk(e, env)
		}
		return Value{Kind: KindList, List: elems}, nil
	case *ast.Let:
		inner := buildRecursiveAttrSetEnv(x.Attrs, env)
		return ev.evalExpr(x.Body, inner)
	case *ast.Lambda:
		return Value{Kind: KindLambda, Lambda: x, LambdaEnv: env}, nil
	case *ast.Call:
		return ev.evalCall(x, env)
	case *ast.Select:
		return ev.evalSelect(x, env)
	case *ast.HasAttr:
		return ev.evalHasAttr(x, env)
	case *ast.With:
		bodyEnv := buildWithEnv(x, env)
		return ev.evalExpr(x.Body, bodyEnv)
	case *ast.If:
		return ev.evalIf(x, env)
	case *ast.Assert:
		return ev.evalAssert(x, env)
	case *ast.Not:
		b, err := ev.forceBool(x.Expr, env)
		if err != nil {
			return Null, err
		}
		return Value{Kind: KindBool, Bool: !b}, nil
	case *ast.Neg:
		return ev.evalNeg(x, env)
	case *ast.ConcatStrings:
		return ev.evalConcatStrings(x, env)
	case *ast.Binary:
		return ev.evalBinary(x, env)
	case *ast.PosRef:
		return ev.evalPosRef(x), nil
	default:
		return Null, errs.NewSentinelf(errs.KindEvaluation, "unhandled expression node")
	}
}

// evalVar implements spec §4.3/§4.5's with-over-static precedence at
// evaluation time: a lexical binding always shadows `with`, so the
// static slot is consulted first; the nearest enclosing with's attrset
// is only a fallback, read when no static binding exists at all.
func (ev *Evaluator) evalVar(x *ast.Var, env *Env) (Value, *errs.Error) {
	scope, _ := x.GetStaticEnv().(*staticenv.Scope)
	if scope == nil {
		return Null, errs.Newf(errs.KindEvaluation, x.Range(), "variable '%s' was never assigned a static scope", x.Name)
	}
	res := scope.Resolve(x.Name)
	if !res.Found {
		return Null, errs.Newf(errs.KindEvaluation, x.Range(), "undefined variable '%s'", x.Name)
	}

	if res.HasStatic {
		if binderEnv := env.at(res.Level); binderEnv != nil && res.Slot < len(binderEnv.Slots) {
			return Value{Kind: KindThunk, Thunk: binderEnv.Slots[res.Slot]}, nil
		}
		return Null, errs.Newf(errs.KindEvaluation, x.Range(), "variable '%s' resolved statically but its runtime environment has no matching frame", x.Name)
	}

	if res.WithFallback != nil {
		if withEnv := env.at(res.WithLevel); withEnv != nil && len(withEnv.Slots) > 0 {
			attrsVal, err := ev.ForceValue(Value{Kind: KindThunk, Thunk: withEnv.Slots[0]})
			if err == nil && attrsVal.Kind == KindAttrs {
				if entry, ok := attrsVal.Attrs.Entries[x.Name]; ok {
					return Value{Kind: KindThunk, Thunk: entry.Value}, nil
				}
			}
		}
	}
	return Null, errs.Newf(errs.KindEvaluation, x.Range(), "undefined variable '%s'", x.Name)
}

// evalAttrSet builds the attrs Value for a literal `{}`/`rec {}`. Static
// entries reuse the slots buildRecursiveAttrSetEnv already allocated (so
// a recursive set's self-references and a completion query's environment
// reconstruction share the exact same thunks); dynamic entries are forced
// eagerly to learn their name, per spec §3's "a computed attribute name is
// never resolvable statically" — evaluation is the only point one can be
// read at all.
func (ev *Evaluator) evalAttrSet(x *ast.AttrSet, env *Env) (Value, *errs.Error) {
	var bindEnv *Env
	if x.Recursive {
		bindEnv = buildRecursiveAttrSetEnv(x, env)
	}

	attrs := &Attrs{Entries: make(map[string]AttrsEntry, len(x.Names)+len(x.Dynamic))}
	for i, name := range x.Names {
		entry := x.Entries[name]
		var slot *Thunk
		if x.Recursive {
			slot = bindEnv.Slots[i]
		} else {
			slot = NewThunk(entry.Expr, env)
		}
		attrs.Names = append(attrs.Names, name)
		attrs.Entries[name] = AttrsEntry{Value: slot, DefPos: entry.DefPos}
	}

	valueEnv := env
	if x.Recursive {
		valueEnv = bindEnv
	}
	for _, d := range x.Dynamic {
		nameVal, err := ev.forceExpr(d.NameExpr, env)
		if err != nil {
			return Null, err
		}
		if nameVal.Kind != KindString {
			return Null, errs.Newf(errs.KindEvaluation, d.NameExpr.Range(), "dynamic attribute name did not evaluate to a string")
		}
		if _, exists := attrs.Entries[nameVal.Str]; !exists {
			attrs.Names = append(attrs.Names, nameVal.Str)
		}
		attrs.Entries[nameVal.Str] = AttrsEntry{
			Value:  NewThunk(d.ValueExpr, valueEnv),
			DefPos: d.NameExpr.Pos(),
		}
	}
	return Value{Kind: KindAttrs, Attrs: attrs}, nil
}

func (ev *Evaluator) evalCall(x *ast.Call, env *Env) (Value, *errs.Error) {
	cur, err := ev.forceExpr(x.Fun, env)
	if err != nil {
		return Null, err
	}
	for _, argExpr := range x.Args {
		arg := thunkOf(argExpr, env)
		res, cerr := ev.Call(cur, arg)
		if cerr != nil {
			return Null, cerr
		}
		cur, err = ev.ForceValue(res)
		if err != nil {
			return Null, err
		}
	}
	return cur, nil
}

// evalSelect walks a `.`-chain, forcing each step's base (spec §3's
// attrs-forcing lookup). On any failure along the chain — a missing
// attribute, or a base that isn't an attrset — the `or` default (if
// present) is returned instead; otherwise the failure is reported.
func (ev *Evaluator) evalSelect(x *ast.Select, env *Env) (Value, *errs.Error) {
	cur, err := ev.EvalSelectPrefix(x.Base, x.Path, env, x.Range())
	if err != nil {
		if x.Default != nil {
			return thunkOf(x.Default, env), nil
		}
		return Null, err
	}
	return cur, nil
}

// EvalSelectPrefix walks a `.`-chain starting at base through path, forcing
// each step (spec §3's attrs-forcing lookup). Exported so internal/schema's
// rule 1 ("evaluate the prefix... composed with the path components before
// the cursor's component") can reuse the exact walk evalSelect itself uses,
// over a truncated path and without the `or`-default handling a schema
// lookup has no use for.
func (ev *Evaluator) EvalSelectPrefix(base ast.Expr, path []ast.PathComponent, env *Env, at position.Range) (Value, *errs.Error) {
	cur, err := ev.forceExpr(base, env)
	for _, comp := range path {
		if err != nil {
			break
		}
		var name string
		name, err = ev.componentName(comp, env)
		if err != nil {
			break
		}
		if cur.Kind != KindAttrs {
			err = errs.Newf(errs.KindEvaluation, at, "attempt to select attribute '%s' on a non-attrset value", name)
			break
		}
		entry, ok := cur.Attrs.Entries[name]
		if !ok {
			err = errs.Newf(errs.KindEvaluation, at, "attribute '%s' is missing", name)
			break
		}
		cur, err = ev.ForceValue(Value{Kind: KindThunk, Thunk: entry.Value})
	}
	return cur, err
}

func (ev *Evaluator) evalHasAttr(x *ast.HasAttr, env *Env) (Value, *errs.Error) {
	cur, err := ev.forceExpr(x.Base, env)
	for _, comp := range x.Path {
		if err != nil {
			return Value{Kind: KindBool, Bool: false}, nil
		}
		var name string
		name, err = ev.componentName(comp, env)
		if err != nil {
			return Value{Kind: KindBool, Bool: false}, nil
		}
		if cur.Kind != KindAttrs {
			return Value{Kind: KindBool, Bool: false}, nil
		}
		entry, ok := cur.Attrs.Entries[name]
		if !ok {
			return Value{Kind: KindBool, Bool: false}, nil
		}
		cur, err = ev.ForceValue(Value{Kind: KindThunk, Thunk: entry.Value})
	}
	if err != nil {
		return Value{Kind: KindBool, Bool: false}, nil
	}
	return Value{Kind: KindBool, Bool: true}, nil
}

func (ev *Evaluator) componentName(comp ast.PathComponent, env *Env) (string, *errs.Error) {
	if comp.Expr == nil {
		return comp.Symbol, nil
	}
	v, err := ev.forceExpr(comp.Expr, env)
	if err != nil {
		return "", err
	}
	if v.Kind != KindString {
		return "", errs.Newf(errs.KindEvaluation, comp.Expr.Range(), "computed attribute-path component did not evaluate to a string")
	}
	return v.Str, nil
}

func (ev *Evaluator) evalIf(x *ast.If, env *Env) (Value, *errs.Error) {
	cond, err := ev.forceBool(x.Cond, env)
	if err != nil {
		return Null, err
	}
	if cond {
		return ev.evalExpr(x.Then, env)
	}
	return ev.evalExpr(x.Else, env)
}

func (ev *Evaluator) evalAssert(x *ast.Assert, env *Env) (Value, *errs.Error) {
	cond, err := ev.forceBool(x.Cond, env)
	if err != nil {
		return Null, err
	}
	if !cond {
		return Null, errs.Newf(errs.KindEvaluation, x.Range(), "assertion failed")
	}
	return ev.evalExpr(x.Body, env)
}

func (ev *Evaluator) evalNeg(x *ast.Neg, env *Env) (Value, *errs.Error) {
	v, err := ev.forceExpr(x.Expr, env)
	if err != nil {
		return Null, err
	}
	switch v.Kind {
	case KindInt:
		return Value{Kind: KindInt, Int: -v.Int}, nil
	case KindFloat:
		return Value{Kind: KindFloat, Float: -v.Float}, nil
	default:
		return Null, errs.Newf(errs.KindEvaluation, x.Range(), "unary minus applied to a non-numeric value")
	}
}

func (ev *Evaluator) evalConcatStrings(x *ast.ConcatStrings, env *Env) (Value, *errs.Error) {
	var out []byte
	for _, p := range x.Parts {
		v, err := ev.forceExpr(p.Expr, env)
		if err != nil {
			return Null, err
		}
		s, ok := ev.coerceToString(v)
		if !ok {
			return Null, errs.Newf(errs.KindEvaluation, p.Expr.Range(), "interpolated value is not convertible to a string")
		}
		out = append(out, s...)
	}
	return Value{Kind: KindString, Str: string(out)}, nil
}

// evalPosRef implements the `__curPos`-style position-reference primitive
// (spec §3 "position-reference") as a small attrset exposing the node's
// own 1-based line and column, matching how an editor reports cursor
// coordinates back to a user.
func (ev *Evaluator) evalPosRef(x *ast.PosRef) Value {
	p := x.Pos()
	attrs := &Attrs{
		Names: []string{"line", "column"},
		Entries: map[string]AttrsEntry{
			"line":   {Value: Const(Value{Kind: KindInt, Int: int64(p.Line1())})},
			"column": {Value: Const(Value{Kind: KindInt, Int: int64(p.Column1())})},
		},
	}
	return Value{Kind: KindAttrs, Attrs: attrs}
}

func (ev *Evaluator) forceBool(expr ast.Expr, env *Env) (bool, *errs.Error) {
	v, err := ev.forceExpr(expr, env)
	if err != nil {
		return false, err
	}
	if v.Kind != KindBool {
		return false, errs.Newf(errs.KindEvaluation, expr.Range(), "expected a boolean value")
	}
	return v.Bool, nil
}

func (ev *Evaluator) coerceToString(v Value) (string, bool) {
	switch v.Kind {
	case KindString, KindPath:
		return v.Str, true
	case KindBool:
		if v.Bool {
			return "true", true
		}
		return "false", true
	case KindNull:
		return "", true
	default:
		return "", false
	}
}

func (ev *Evaluator) evalBinary(x *ast.Binary, env *Env) (Value, *errs.Error) {
	switch x.Op {
	case ast.OpAnd, ast.OpOr, ast.OpImpl:
		return ev.evalLogical(x, env)
	}

	l, err := ev.forceExpr(x.Left, env)
	if err != nil {
		return Null, err
	}
	r, err := ev.forceExpr(x.Right, env)
	if err != nil {
		return Null, err
	}

	switch x.Op {
	case ast.OpEq:
		return Value{Kind: KindBool, Bool: ev.valuesEqual(l, r)}, nil
	case ast.OpNeq:
		return Value{Kind: KindBool, Bool: !ev.valuesEqual(l, r)}, nil
	case ast.OpUpdate:
		return ev.evalUpdate(l, r, x)
	case ast.OpConcatList:
		return ev.evalConcatList(l, r, x)
	case ast.OpAdd:
		return ev.evalAdd(l, r, x)
	case ast.OpSub, ast.OpMul, ast.OpDiv:
		return ev.evalArith(x.Op, l, r, x)
	case ast.OpLt, ast.OpGt, ast.OpLe, ast.OpGe:
		return ev.evalCompare(x.Op, l, r, x)
	default:
		return Null, errs.NewSentinelf(errs.KindEvaluation, "unsupported binary operator")
	}
}

func (ev *Evaluator) evalLogical(x *ast.Binary, env *Env) (Value, *errs.Error) {
	l, err := ev.forceBool(x.Left, env)
	if err != nil {
		return Null, err
	}
	switch x.Op {
	case ast.OpAnd:
		if !l {
			return Value{Kind: KindBool, Bool: false}, nil
		}
	case ast.OpOr:
		if l {
			return Value{Kind: KindBool, Bool: true}, nil
		}
	case ast.OpImpl:
		if !l {
			return Value{Kind: KindBool, Bool: true}, nil
		}
	}
	r, err := ev.forceBool(x.Right, env)
	if err != nil {
		return Null, err
	}
	return Value{Kind: KindBool, Bool: r}, nil
}

func (ev *Evaluator) evalUpdate(l, r Value, x *ast.Binary) (Value, *errs.Error) {
	if l.Kind != KindAttrs || r.Kind != KindAttrs {
		return Null, errs.Newf(errs.KindEvaluation, x.Range(), "'//' requires two attrsets")
	}
	out := &Attrs{Entries: make(map[string]AttrsEntry, len(l.Attrs.Entries)+len(r.Attrs.Entries))}
	seen := make(map[string]bool, len(out.Entries))
	for _, name := range l.Attrs.Names {
		out.Names = append(out.Names, name)
		out.Entries[name] = l.Attrs.Entries[name]
		seen[name] = true
	}
	for _, name := range r.Attrs.Names {
		if !seen[name] {
			out.Names = append(out.Names, name)
			seen[name] = true
		}
		out.Entries[name] = r.Attrs.Entries[name]
	}
	return Value{Kind: KindAttrs, Attrs: out}, nil
}

func (ev *Evaluator) evalConcatList(l, r Value, x *ast.Binary) (Value, *errs.Error) {
	if l.Kind != KindList || r.Kind != KindList {
		return Null, errs.Newf(errs.KindEvaluation, x.Range(), "'++' requires two lists")
	}
	out := make([]*Thunk, 0, len(l.List)+len(r.List))
	out = append(out, l.List...)
	out = append(out, r.List...)
	return Value{Kind: KindList, List: out}, nil
}

func (ev *Evaluator) evalAdd(l, r Value, x *ast.Binary) (Value, *errs.Error) {
	if l.Kind == KindString || r.Kind == KindString {
		ls, ok1 := ev.coerceToString(l)
		rs, ok2 := ev.coerceToString(r)
		if !ok1 || !ok2 {
			return Null, errs.Newf(errs.KindEvaluation, x.Range(), "'+' cannot concatenate these values")
		}
		return Value{Kind: KindString, Str: ls + rs}, nil
	}
	return ev.evalArith(ast.OpAdd, l, r, x)
}

func (ev *Evaluator) evalArith(op ast.BinOp, l, r Value, x *ast.Binary) (Value, *errs.Error) {
	if l.Kind == KindInt && r.Kind == KindInt {
		switch op {
		case ast.OpAdd:
			return Value{Kind: KindInt, Int: l.Int + r.Int}, nil
		case ast.OpSub:
			return Value{Kind: KindInt, Int: l.Int - r.Int}, nil
		case ast.OpMul:
			return Value{Kind: KindInt, Int: l.Int * r.Int}, nil
		case ast.OpDiv:
			if r.Int == 0 {
				return Null, errs.Newf(errs.KindEvaluation, x.Range(), "division by zero")
			}
			return Value{Kind: KindInt, Int: l.Int / r.Int}, nil
		}
	}
	lf, lok := numAsFloat(l)
	rf, rok := numAsFloat(r)
	if !lok || !rok {
		return Null, errs.Newf(errs.KindEvaluation, x.Range(), "arithmetic operator applied to a non-numeric value")
	}
	switch op {
	case ast.OpAdd:
		return Value{Kind: KindFloat, Float: lf + rf}, nil
	case ast.OpSub:
		return Value{Kind: KindFloat, Float: lf - rf}, nil
	case ast.OpMul:
		return Value{Kind: KindFloat, Float: lf * rf}, nil
	case ast.OpDiv:
		if rf == 0 {
			return Null, errs.Newf(errs.KindEvaluation, x.Range(), "division by zero")
		}
		return Value{Kind: KindFloat, Float: lf / rf}, nil
	}
	return Null, errs.NewSentinelf(errs.KindEvaluation, "unreachable arithmetic operator")
}

func (ev *Evaluator) evalCompare(op ast.BinOp, l, r Value, x *ast.Binary) (Value, *errs.Error) {
	if l.Kind == KindString && r.Kind == KindString {
		switch op {
		case ast.OpLt:
			return Value{Kind: KindBool, Bool: l.Str < r.Str}, nil
		case ast.OpGt:
			return Value{Kind: KindBool, Bool: l.Str > r.Str}, nil
		case ast.OpLe:
			return Value{Kind: KindBool, Bool: l.Str <= r.Str}, nil
		case ast.OpGe:
			return Value{Kind: KindBool, Bool: l.Str >= r.Str}, nil
		}
	}
	lf, lok := numAsFloat(l)
	rf, rok := numAsFloat(r)
	if !lok || !rok {
		return Null, errs.Newf(errs.KindEvaluation, x.Range(), "comparison operator applied to a non-comparable value")
	}
	switch op {
	case ast.OpLt:
		return Value{Kind: KindBool, Bool: lf < rf}, nil
	case ast.OpGt:
		return Value{Kind: KindBool, Bool: lf > rf}, nil
	case ast.OpLe:
		return Value{Kind: KindBool, Bool: lf <= rf}, nil
	case ast.OpGe:
		return Value{Kind: KindBool, Bool: lf >= rf}, nil
	}
	return Null, errs.NewSentinelf(errs.KindEvaluation, "unreachable comparison operator")
}

func numAsFloat(v Value) (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.Int), true
	case KindFloat:
		return v.Float, true
	default:
		return 0, false
	}
}

// valuesEqual implements `==`/`!=` structurally, forcing nested list and
// attrs members to compare them (spec is silent on equality depth; Nix's
// own `==` is structural, so this follows that rather than inventing a
// shallower rule).
func (ev *Evaluator) valuesEqual(l, r Value) bool {
	if l.Kind != r.Kind {
		lf, lok := numAsFloat(l)
		rf, rok := numAsFloat(r)
		if lok && rok {
			return lf == rf
		}
		return false
	}
	switch l.Kind {
	case KindNull:
		return true
	case KindBool:
		return l.Bool == r.Bool
	case KindInt:
		return l.Int == r.Int
	case KindFloat:
		return l.Float == r.Float
	case KindString, KindPath:
		return l.Str == r.Str
	case KindList:
		if len(l.List) != len(r.List) {
			return false
		}
		for i := range l.List {
			lv, lerr := ev.ForceValue(Value{Kind: KindThunk, Thunk: l.List[i]})
			rv, rerr := ev.ForceValue(Value{Kind: KindThunk, Thunk: r.List[i]})
			if lerr != nil || rerr != nil || !ev.valuesEqual(lv, rv) {
				return false
			}
		}
		return true
	case KindAttrs:
		if len(l.Attrs.Names) != len(r.Attrs.Names) {
			return false
		}
		for name, le := range l.Attrs.Entries {
			re, ok := r.Attrs.Entries[name]
			if !ok {
				return false
			}
			lv, lerr := ev.ForceValue(Value{Kind: KindThunk, Thunk: le.Value})
			rv, rerr := ev.ForceValue(Value{Kind: KindThunk, Thunk: re.Value})
			if lerr != nil || rerr != nil || !ev.valuesEqual(lv, rv) {
				return false
			}
		}
		return true
	case KindLambda, KindPrimop, KindExternal:
		return false
	default:
		return false
	}
}
