// Package staticenv builds the lexical static environment over a parsed
// tree: a single depth-first walk that assigns every node the chain of
// scopes visible to it (spec §3 "Static scope", §4.3).
//
// Grounded on cue/ast/astutil's Resolve: a linked list of scopes, each
// holding an ordered name→slot index and a parent pointer, built by one
// recursive walk over the tree (astutil's walk dispatches on ast.Node kind
// via a visitor; this package dispatches via a plain type switch instead,
// because this grammar's six scope-introducing forms — let, rec attrset,
// non-recursive attrset, lambda, with, and everything else — need six
// distinct scope-construction rules rather than CUE's single struct-literal
// rule).
package staticenv

import (
	"nls.dev/nls/internal/ast"
	"nls.dev/nls/internal/errs"
)

// Scope mirrors spec §3's "Static scope": an ordered name→slot-index table,
// a parent link, and the with-marker sentinel flag used to defer lookup of
// names a `with` might supply dynamically.
type Scope struct {
	Parent       *Scope
	IsWithMarker bool
	IsBuiltins   bool
	// WithNode is the *ast.With this scope was introduced for, set only
	// when IsWithMarker.
	WithNode ast.Node

	// Vars is the slot-index ⇒ name table, in declaration order (spec §3:
	// "slot-indices are assigned in declaration order per scope").
	Vars []string

	index map[string]int
}

func newScope(parent *Scope, names []string) *Scope {
	idx := make(map[string]int, len(names))
	for i, n := range names {
		if _, dup := idx[n]; !dup {
			idx[n] = i // first-wins, mirroring duplicate-formal tolerance
		}
	}
	return &Scope{Parent: parent, Vars: names, index: idx}
}

// Slot reports the slot index assigned to name directly in s, without
// consulting s.Parent.
func (s *Scope) Slot(name string) (int, bool) {
	if s == nil {
		return 0, false
	}
	i, ok := s.index[name]
	return i, ok
}

// Resolution is the outcome of resolving a variable reference against a
// scope chain (spec §4.3's "Variable nodes" rule).
type Resolution struct {
	// Found is true if either a static binding or a with-marker fallback
	// was located; false means "undefined variable".
	Found bool

	// HasStatic is true when a lexical binding was found; Level/Slot then
	// index it relative to the scope the lookup started from (Level 0 is
	// that starting scope itself).
	HasStatic bool
	Level     int
	Slot      int
	// Binder is the scope the binding was found in.
	Binder *Scope

	// WithFallback is the nearest with-marker scope encountered while
	// walking outward, or nil if none. Recorded regardless of whether a
	// static binding was also found, but spec §4.3 makes it strictly a
	// fallback at runtime: the dynamic reconstructor/evaluator only
	// consults this with's attrset when HasStatic is false. A lexical
	// binding always shadows `with`, so Binder/Level/Slot take
	// precedence whenever HasStatic is true.
	WithFallback *Scope
	// WithLevel is WithFallback's hop distance, on the same scale as
	// Level, so a consumer addressing a parallel runtime-environment
	// chain (internal/runtime) can locate the matching env frame without
	// re-walking the scope chain.
	WithLevel int
}

// Resolve walks s and its ancestors looking for name, exactly per spec
// §4.3's "Variable nodes" rule: the first non-with scope containing the
// symbol fixes (level, slot); the nearest with-marker scope seen along the
// way is recorded too, regardless of whether a static binding is also
// found. A name present in neither yields Resolution{Found: false}.
func (s *Scope) Resolve(name string) Resolution {
	var res Resolution
	level := 0
	for cur := s; cur != nil; cur = cur.Parent {
		if cur.IsWithMarker {
			if res.WithFallback == nil {
				res.WithFallback = cur
				res.WithLevel = level
			}
		} else if slot, ok := cur.Slot(name); ok {
			res.HasStatic = true
			res.Level = level
			res.Slot = slot
			res.Binder = cur
			break
		}
		level++
	}
	res.Found = res.HasStatic || res.WithFallback != nil
	return res
}

// DefaultBuiltins names the identifiers bound in the outermost "global
// builtins" scope (spec §4.9's completion scenarios reference this scope
// as "builtins" without enumerating it; §4.1's keyword list confirms
// `true`/`false`/`null` are ordinary identifiers, not keywords, so without
// a root scope every literal use of them would spuriously read as an
// undefined variable).
var DefaultBuiltins = []string{
	"true", "false", "null",
	"import", "builtins", "abort", "throw", "toString",
	"map", "filter", "removeAttrs", "toJSON", "fromJSON",
}

// Build walks root assigning a *Scope to every node (spec §4.3's "single
// depth-first walk"). builtins seeds the outermost scope; nil selects
// DefaultBuiltins. errList receives "undefined variable" diagnostics.
func Build(root ast.Expr, builtins []string, errList *errs.List) *Scope {
	if builtins == nil {
		builtins = DefaultBuiltins
	}
	rootScope := newScope(nil, builtins)
	rootScope.IsBuiltins = true
	build(root, rootScope, errList)
	return rootScope
}

func build(n ast.Node, scope *Scope, el *errs.List) {
	if n == nil {
		return
	}
	n.SetStaticEnv(scope)

	switch x := n.(type) {
	case *ast.IntLit, *ast.FloatLit, *ast.StringLit, *ast.PathLit, *ast.PosRef:
		// leaves

	case *ast.Var:
		resolveVar(x, scope, el)

	case *ast.AttrSet:
		buildAttrSet(x, scope, el)

	case *ast.List:
		for _, e := range x.Elems {
			build(e, scope, el)
		}

	case *ast.Let:
		inner := buildAttrSet(x.Attrs, scope, el)
		build(x.Body, inner, el)

	case *ast.Lambda:
		buildLambda(x, scope, el)

	case *ast.Call:
		build(x.Fun, scope, el)
		for _, a := range x.Args {
			build(a, scope, el)
		}

	case *ast.Select:
		build(x.Base, scope, el)
		for _, c := range x.Path {
			build(c.Expr, scope, el)
		}
		build(x.Default, scope, el)

	case *ast.HasAttr:
		build(x.Base, scope, el)
		for _, c := range x.Path {
			build(c.Expr, scope, el)
		}

	case *ast.With:
		buildWith(x, scope, el)

	case *ast.If:
		build(x.Cond, scope, el)
		build(x.Then, scope, el)
		build(x.Else, scope, el)

	case *ast.Assert:
		build(x.Cond, scope, el)
		build(x.Body, scope, el)

	case *ast.Not:
		build(x.Expr, scope, el)

	case *ast.Neg:
		build(x.Expr, scope, el)

	case *ast.ConcatStrings:
		for _, p := range x.Parts {
			build(p.Expr, scope, el)
		}

	case *ast.Binary:
		build(x.Left, scope, el)
		build(x.Right, scope, el)
	}
}

// buildAttrSet implements spec §4.3's "let"/"rec {}"/non-recursive {} rules
// in one function, since a `let`'s bindings are themselves a Recursive
// AttrSet (the parser always sets Let.Attrs.Recursive = true). It returns
// the scope under which the set's body (for a let) or sibling expressions
// should continue to be built: the new scope when recursive, scope
// unchanged otherwise.
//
// Dynamic attribute names (`${expr} = val;`) are never statically
// resolvable (spec §3), so their name expression is always built in the
// enclosing, non-recursive scope — mirroring the host grammar's rule that a
// computed attribute name cannot observe its own recursive bindings — while
// its value expression follows the same inherited/non-inherited placement
// as an ordinary entry.
func buildAttrSet(set *ast.AttrSet, parent *Scope, el *errs.List) *Scope {
	set.SetStaticEnv(parent)

	if !set.Recursive {
		for _, name := range set.Names {
			build(set.Entries[name].Expr, parent, el)
		}
		for _, d := range set.Dynamic {
			build(d.NameExpr, parent, el)
			build(d.ValueExpr, parent, el)
		}
		return parent
	}

	inner := newScope(parent, set.Names)
	for _, name := range set.Names {
		entry := set.Entries[name]
		if entry.Inherited {
			build(entry.Expr, parent, el)
		} else {
			build(entry.Expr, inner, el)
		}
	}
	for _, d := range set.Dynamic {
		build(d.NameExpr, parent, el)
		build(d.ValueExpr, inner, el)
	}
	return inner
}

// buildLambda implements spec §4.3's "lambda" rule: one new scope holding a
// slot for the name argument (if any) followed by a slot per formal, in
// that order; formal defaults bind under the new scope so that, e.g.,
// `{ a, b ? a }: ...` resolves `a` in the default to the sibling formal.
func buildLambda(lam *ast.Lambda, parent *Scope, el *errs.List) {
	var names []string
	if lam.NameArg != "" {
		names = append(names, lam.NameArg)
	}
	for _, f := range lam.Formals {
		names = append(names, f.Name)
	}
	inner := newScope(parent, names)

	for i := range lam.Formals {
		build(lam.Formals[i].Default, inner, el)
	}
	build(lam.Body, inner, el)
}

// buildWith implements spec §4.3's "with" rule: the attrs expression binds
// in the enclosing scope (it cannot see its own with-scope), and the body
// binds under a new sentinel scope with no static slots of its own.
func buildWith(w *ast.With, parent *Scope, el *errs.List) {
	build(w.Attrs, parent, el)
	withScope := &Scope{Parent: parent, IsWithMarker: true, WithNode: w, index: map[string]int{}}
	build(w.Body, withScope, el)
}

// resolveVar performs spec §4.3's "Variable nodes" rule at the point a
// Var is visited, reporting the diagnostic described there when
// appropriate. The resolution itself is not cached on the node: scope.
// Resolve is cheap and idempotent, and the evaluator/query layer can always
// recompute it from the Var's static-env.
func resolveVar(v *ast.Var, scope *Scope, el *errs.List) {
	res := scope.Resolve(v.Name)
	if !res.Found {
		el.Addf(errs.KindStaticBinding, v.Range(), "undefined variable '%s'", v.Name)
	}
}
