// Package runtime reconstructs the per-node runtime environment along a
// cursor path (spec §4.5 "Dynamic-env reconstructor") and provides the
// lazy value representation and evaluator (spec §4.7 "Evaluator
// interface") that the query and schema layers force values through.
//
// Grounded on go-jsonnet's interpreter.go (`environment`, `bindingFrame`,
// `cachedThunk`): an environment is a parent-linked frame of lazily-forced
// slots, and forcing a slot evaluates its captured expression against its
// captured environment exactly once. This package keeps that shape but
// replaces go-jsonnet's name-keyed bindingFrame with a positional slot
// vector, since this grammar's static scopes already fix slot indices
// (spec §3 "Runtime environment": "Slot order matches the corresponding
// static scope").
package runtime

import (
	"sync"

	"nls.dev/nls/internal/ast"
	"nls.dev/nls/internal/errs"
	"nls.dev/nls/internal/position"
)

// Kind tags a Value's active variant (spec §3 "Value").
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindPath
	KindList
	KindAttrs
	KindThunk
	KindLambda
	KindPrimop
	KindExternal
)

// AttrsEntry is one member of an attrs Value: a lazy slot plus the position
// of its defining occurrence (spec §3: "an attrs value exposes an ordered
// mapping from symbol to {value, definition-pos}").
type AttrsEntry struct {
	Value  *Thunk
	DefPos position.Position
}

// Attrs is an ordered attribute-name → entry mapping.
type Attrs struct {
	Names   []string
	Entries map[string]AttrsEntry
}

// Primop is a built-in callable (spec §3 Value variant "primop"): a Go
// function standing in for a name ordinarily supplied by the evaluator's
// builtins object (`toString`, `map`, `removeAttrs`, ...).
type Primop struct {
	Name string
	Fn   func(e *Evaluator, arg Value) (Value, *errs.Error)
}

// Value is the tagged variant spec §3 describes as "external, provided by
// the evaluation layer" — this package is that evaluation layer. Only the
// field matching Kind is meaningful.
type Value struct {
	Kind Kind

	Bool  bool
	Int   int64
	Float float64
	Str   string // String or Path payload

	List  []*Thunk
	Attrs *Attrs

	Thunk *Thunk

	Lambda    *ast.Lambda
	LambdaEnv *Env

	Primop *Primop

	// External carries a value injected from outside the tree being
	// evaluated — the flake-input attrset or package-set fixpoint
	// supplied by lambda-arg inference (spec §4.6), or a host-supplied
	// extension value. Opaque to this package by design.
	External any
}

// Null is the zero Value's variant, used throughout as the safe fallback
// spec §4.5 requires ("every thunk placement ... substitutes a null value"
// and "must never propagate an error").
var Null = Value{Kind: KindNull}

// EnvKind distinguishes an ordinary environment frame from one holding a
// `with`'s unevaluated attrs expression (spec §3 "Runtime environment":
// "kind: ordinary | has-with-expr").
type EnvKind int

const (
	EnvOrdinary EnvKind = iota
	EnvHasWithExpr
)

// Env is one runtime-environment frame (spec §3 "Runtime environment").
// Slot order matches the static scope it was built from.
type Env struct {
	Parent *Env
	Slots  []*Thunk
	Kind   EnvKind
}

// at walks level frames outward from e, stopping early (returning nil) if
// the chain is shorter than expected — a defensive floor, not a path a
// correctly-built tree should ever reach (spec invariant 4 guarantees
// |vars| ≤ |slots| only for well-formed trees).
func (e *Env) at(level int) *Env {
	for ; level > 0 && e != nil; level-- {
		e = e.Parent
	}
	return e
}

// Thunk is a lazily-forced expression/environment pair (spec §3's "thunk"
// Value variant, and go-jsonnet's cachedThunk). Forcing happens at most
// once; the result (value or error) is cached.
type Thunk struct {
	Expr ast.Expr
	Env  *Env

	once sync.Once
	val  Value
	err  *errs.Error

	// call, when set, takes the place of evaluating Expr in Env — used by
	// builtins whose result is itself a deferred call (map's per-element
	// thunks) rather than a syntax node.
	call func() (Value, *errs.Error)
}

// NewThunk builds an unforced thunk over expr evaluated in env.
func NewThunk(expr ast.Expr, env *Env) *Thunk {
	return &Thunk{Expr: expr, Env: env}
}

// NewCallThunk builds an unforced thunk whose forcing invokes call rather
// than evaluating an AST node — the deferred-application shape a lazy
// builtin like map needs for each result element.
func NewCallThunk(call func() (Value, *errs.Error)) *Thunk {
	return &Thunk{call: call}
}

// Const wraps an already-known value as a pre-forced thunk — used for
// placeholder nulls and for lambda name-arguments, which arrive as values
// rather than expressions (spec §4.5's lambda row: "If an external
// lambda-arg was supplied, use it").
func Const(v Value) *Thunk {
	t := &Thunk{}
	t.once.Do(func() {})
	t.val = v
	return t
}

// LambdaArgs supplies externally-provided arguments for specific lambda
// nodes on a cursor path (spec §4.6's flake-input / package-set / call-site
// values), keyed by the *ast.Lambda they apply to. A nil map means no
// lambda on the path has an externally-supplied argument.
type LambdaArgs map[*ast.Lambda]Value

// NewRootEnv builds the outermost runtime environment, aligned slot-for-
// slot with the outermost static scope's Vars (spec §3 invariant 4):
// internal/staticenv.Scope.Vars for the root scope is the natural source
// for names. Missing entries in values default to Null rather than being
// omitted, so slot indices still line up with the static scope.
func NewRootEnv(names []string, values map[string]Value) *Env {
	slots := make([]*Thunk, len(names))
	for i, name := range names {
		v, ok := values[name]
		if !ok {
			v = Null
		}
		slots[i] = Const(v)
	}
	return &Env{Slots: slots}
}

// ReconstructPath implements spec §4.5's dynamic-env reconstructor:
// path is ordered innermost-first (cursor.Result.Path's convention), and
// the result is indexed the same way — result[i] is the environment in
// which path[i] is evaluated. The outermost element's environment is root;
// every other element's environment is derived by walking outward-to-
// inward applying the parent-kind transition table.
func ReconstructPath(path []ast.Node, root *Env, ev *Evaluator, args LambdaArgs) []*Env {
	n := len(path)
	envs := make([]*Env, n)
	if n == 0 {
		return envs
	}
	envs[n-1] = root
	for i := n - 1; i > 0; i-- {
		envs[i-1] = transition(path[i], path[i-1], envs[i], ev, args)
	}
	return envs
}

// Transition exposes the per-step transition table (spec §4.5) so
// internal/arginfer can interleave lambda-argument inference with env
// construction: arginfer must decide an outer lambda's supplied argument
// before the env for anything nested inside it can be built, and
// ReconstructPath's own loop is exactly this same step repeated with a
// LambdaArgs map already known in full.
func Transition(parent, child ast.Node, up *Env, ev *Evaluator, args LambdaArgs) *Env {
	return transition(parent, child, up, ev, args)
}

// transition computes the environment for child, given that parent (its
// immediate AST ancestor on the path) is evaluated in up (spec §4.5's
// table, one case per row).
func transition(parent, child ast.Node, up *Env, ev *Evaluator, args LambdaArgs) *Env {
	switch p := parent.(type) {
	case *ast.Let:
		newEnv := buildRecursiveAttrSetEnv(p.Attrs, up)
		if inheritedValueExprOf(p.Attrs, child) {
			return up
		}
		return newEnv

	case *ast.Lambda:
		return buildLambdaEnv(p, up, ev, args)

	case *ast.AttrSet:
		if !p.Recursive {
			return up
		}
		newEnv := buildRecursiveAttrSetEnv(p, up)
		if inheritedValueExprOf(p, child) {
			return up
		}
		return newEnv

	case *ast.With:
		if child == ast.Node(p.Body) {
			return buildWithEnv(p, up)
		}
		return up

	default:
		return up
	}
}

func inheritedValueExprOf(set *ast.AttrSet, child ast.Node) bool {
	for _, name := range set.Names {
		e := set.Entries[name]
		if e.Inherited && ast.Node(e.Expr) == child {
			return true
		}
	}
	return false
}

// buildRecursiveAttrSetEnv allocates the new environment for a `let`'s
// bindings or a `rec {}` (spec §4.5 rows "let" and "recursive attrset"):
// one slot per top-level name, inherited values thunked in up, the rest
// thunked in the new environment itself (so siblings can see each other).
func buildRecursiveAttrSetEnv(set *ast.AttrSet, up *Env) *Env {
	env := &Env{Parent: up, Slots: make([]*Thunk, len(set.Names))}
	for i, name := range set.Names {
		entry := set.Entries[name]
		bindEnv := env
		if entry.Inherited {
			bindEnv = up
		}
		env.Slots[i] = NewThunk(entry.Expr, bindEnv)
	}
	return env
}

// buildLambdaEnv allocates a lambda's call environment (spec §4.5 row
// "lambda"): a slot for the name argument (if any) followed by one per
// formal. A supplied external argument is force-checked as an attrset only
// when formals are declared; on failure (or absence), formal slots default
// to their declared default or, lacking one, Null.
func buildLambdaEnv(lam *ast.Lambda, up *Env, ev *Evaluator, args LambdaArgs) *Env {
	slotCount := len(lam.Formals)
	if lam.NameArg != "" {
		slotCount++
	}
	env := &Env{Parent: up, Slots: make([]*Thunk, 0, slotCount)}

	argVal, supplied := args[lam]
	if !supplied {
		argVal = Null
	}
	if lam.NameArg != "" {
		env.Slots = append(env.Slots, Const(argVal))
	}

	var argAttrs *Attrs
	if supplied && len(lam.Formals) > 0 {
		if forced, err := ev.ForceValue(argVal); err == nil && forced.Kind == KindAttrs {
			argAttrs = forced.Attrs
		}
	}
	for i := range lam.Formals {
		f := &lam.Formals[i]
		var slot *Thunk
		if argAttrs != nil {
			if e, ok := argAttrs.Entries[f.Name]; ok {
				slot = e.Value
			}
		}
		if slot == nil && f.Default != nil {
			slot = NewThunk(f.Default, env)
		}
		if slot == nil {
			slot = Const(Null)
		}
		env.Slots = append(env.Slots, slot)
	}
	return env
}

// buildWithEnv allocates the one-slot `has-with-expr` frame spec §4.5's
// "with" row describes: the attrs expression stays unevaluated, thunked in
// the enclosing environment (a `with` cannot see its own bindings).
func buildWithEnv(w *ast.With, up *Env) *Env {
	return &Env{Parent: up, Kind: EnvHasWithExpr, Slots: []*Thunk{NewThunk(w.Attrs, up)}}
}
