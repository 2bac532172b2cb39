// Package schema implements spec §4.8's schema engine: given a cursor path
// and its dynamic environments, produce the vocabulary of attribute names
// (with optional documentation) expected at that position.
//
// Grounded on internal/lsp/definitions/definitions.go's general shape —
// resolve a path against the structure actually present at a program point
// rather than against a separate declared-schema document — adapted from
// CUE's lazy structural-unification resolver down to this grammar's much
// simpler four fixed resolution rules, since this language has no
// unification or pattern constraints for a definitions-style resolver to
// reconcile.
package schema

import (
	"sort"

	"nls.dev/nls/internal/ast"
	"nls.dev/nls/internal/cursor"
	"nls.dev/nls/internal/runtime"
	"nls.dev/nls/internal/staticenv"
)

// Item is one schema vocabulary entry (spec §4.8: "a list of {name,
// optional documentation} items").
type Item struct {
	Name string
	Doc  string
}

// Resolve implements spec §4.8's four resolution rules in specificity
// order: an inherit form or a recognised call-shape argument (most
// specific) beat a plain selection, which in turn beats the lexical-scope
// fallback (spec: "more specific matches ... take precedence over the
// lexical-scope fallback"). envs is indexed the same way res.Path is
// (internal/runtime.ReconstructPath's convention): envs[i] is the
// environment path[i] evaluates in.
func Resolve(res cursor.Result, envs []*runtime.Env, ev *runtime.Evaluator) ([]Item, bool) {
	if len(res.Path) == 0 {
		return nil, false
	}

	if items, ok := resolveInherit(res, envs, ev); ok {
		return sorted(items), true
	}
	if items, ok := resolveCallShape(res, envs, ev); ok {
		return sorted(items), true
	}
	if items, ok := resolveSelection(res, envs, ev); ok {
		return sorted(items), true
	}
	if items, ok := resolveLexical(res.Path[0]); ok {
		return sorted(items), true
	}
	return nil, false
}

func sorted(items []Item) []Item {
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items
}

// resolveInherit implements rule 4: an inherited binding's synthetic
// value expression (internal/parser.parseInherit lowers `inherit (src)
// name;` to a *ast.Select over src, and bare `inherit name;` to a *ast.Var)
// is recognised by walking out to the owning *ast.AttrSet and checking
// whether the innermost node is exactly that entry's Expr. A parenthesised
// source behaves as rule 1 with an empty trailing path (the source
// attrset's own keys are the vocabulary); a bare inherit has no source to
// offer and falls through to the lexical fallback instead.
func resolveInherit(res cursor.Result, envs []*runtime.Env, ev *runtime.Evaluator) ([]Item, bool) {
	focus := res.Path[0]
	set, entry := owningInheritEntry(res.Path)
	if set == nil {
		return nil, false
	}

	if sel, ok := focus.(*ast.Select); ok && entry.Expr == ast.Expr(sel) {
		idx := indexOfAttrSet(res.Path, set)
		if idx < 0 {
			return nil, false
		}
		v, err := ev.Eval(sel.Base, envs[idx])
		if err != nil {
			return nil, false
		}
		forced, err := ev.ForceValue(v)
		if err != nil || forced.Kind != runtime.KindAttrs {
			return nil, false
		}
		return attrsItems(forced.Attrs), true
	}
	return nil, false
}

// owningInheritEntry finds the nearest enclosing *ast.AttrSet on path and
// the entry within it (if any) whose Expr is path[0] and Inherited is set.
func owningInheritEntry(path []ast.Node) (*ast.AttrSet, *ast.AttrEntry) {
	focus := path[0]
	for _, n := range path[1:] {
		set, ok := n.(*ast.AttrSet)
		if !ok {
			continue
		}
		for _, name := range set.Names {
			entry := set.Entries[name]
			if entry.Inherited && ast.Node(entry.Expr) == focus {
				return set, entry
			}
		}
		return nil, nil
	}
	return nil, nil
}

func indexOfAttrSet(path []ast.Node, set *ast.AttrSet) int {
	for i, n := range path {
		if n == ast.Node(set) {
			return i
		}
	}
	return -1
}

// mkDerivationVocabulary is the curated subset of nixpkgs' stdenv.mkDerivation
// attribute surface this engine recognises for rule 3's call-shape match.
var mkDerivationVocabulary = []Item{
	{Name: "pname", Doc: "package name without the version suffix"},
	{Name: "name", Doc: "full package name, including version"},
	{Name: "version", Doc: "package version"},
	{Name: "src", Doc: "source to unpack and build"},
	{Name: "buildInputs", Doc: "dependencies present at both build and run time"},
	{Name: "nativeBuildInputs", Doc: "dependencies that run on the build platform"},
	{Name: "propagatedBuildInputs", Doc: "dependencies propagated to dependents"},
	{Name: "configureFlags", Doc: "flags passed to the configure phase"},
	{Name: "buildPhase", Doc: "overrides the build phase script"},
	{Name: "installPhase", Doc: "overrides the install phase script"},
	{Name: "checkPhase", Doc: "overrides the check phase script"},
	{Name: "doCheck", Doc: "whether to run the check phase"},
	{Name: "postPatch", Doc: "shell commands run after patching"},
	{Name: "postInstall", Doc: "shell commands run after installing"},
	{Name: "patches", Doc: "list of patch files to apply"},
	{Name: "meta", Doc: "package metadata attrset"},
	{Name: "outputs", Doc: "names of the derivation's outputs"},
}

// resolveCallShape implements rule 3: the innermost node is an attrset
// literal that is one of a Call's arguments, and the call's callee either
// names or selects mkDerivation, or evaluates to an options value (see
// optionsVocabulary).
func resolveCallShape(res cursor.Result, envs []*runtime.Env, ev *runtime.Evaluator) ([]Item, bool) {
	attrSet, ok := res.Path[0].(*ast.AttrSet)
	if !ok || len(res.Path) < 2 {
		return nil, false
	}
	call, ok := res.Path[1].(*ast.Call)
	if !ok {
		return nil, false
	}
	isArg := false
	for _, a := range call.Args {
		if a == ast.Expr(attrSet) {
			isArg = true
			break
		}
	}
	if !isArg {
		return nil, false
	}

	if calleeEndsIn(call.Fun, "mkDerivation") {
		items := make([]Item, len(mkDerivationVocabulary))
		copy(items, mkDerivationVocabulary)
		return items, true
	}

	callEnv := envs[1]
	v, err := ev.Eval(call.Fun, callEnv)
	if err != nil {
		return nil, false
	}
	forced, err := ev.ForceValue(v)
	if err != nil {
		return nil, false
	}
	return optionsVocabulary(ev, forced)
}

// calleeEndsIn reports whether fun is a bare variable reference or a
// selection whose final literal path component equals name.
func calleeEndsIn(fun ast.Expr, name string) bool {
	switch f := fun.(type) {
	case *ast.Var:
		return f.Name == name
	case *ast.Select:
		if len(f.Path) == 0 {
			return false
		}
		last := f.Path[len(f.Path)-1]
		return last.Expr == nil && last.Symbol == name
	default:
		return false
	}
}

// optionsVocabulary implements this engine's reading of rule 3's "evaluates
// to an options value at an identifiable option path": an attrs whose
// `_type` entry forces to the string "option" is a leaf with no further
// sub-vocabulary (spec §4.8: "an attrs whose `_type` is `option` is a
// leaf"); any other attrs is treated as an options tree and its own
// top-level keys become the vocabulary, mirroring a NixOS-style
// `options.<path>` tree where each key recursively carries its own
// sub-schema. This is a best-effort reading, not a literal option-system
// implementation — see DESIGN.md.
func optionsVocabulary(ev *runtime.Evaluator, v runtime.Value) ([]Item, bool) {
	if v.Kind != runtime.KindAttrs || v.Attrs == nil || len(v.Attrs.Names) == 0 {
		return nil, false
	}
	if entry, ok := v.Attrs.Entries["_type"]; ok {
		t, err := ev.ForceValue(runtime.Value{Kind: runtime.KindThunk, Thunk: entry.Value})
		if err == nil && t.Kind == runtime.KindString && t.Str == "option" {
			// A leaf option attrset carries no further sub-vocabulary.
			return nil, false
		}
	}
	return attrsItems(v.Attrs), true
}

// resolveSelection implements rule 1: the innermost node is a selection;
// evaluate its base composed with the path components preceding the
// cursor's component, and list the result's keys if it is an attrs.
func resolveSelection(res cursor.Result, envs []*runtime.Env, ev *runtime.Evaluator) ([]Item, bool) {
	sel, ok := res.Path[0].(*ast.Select)
	if !ok {
		return nil, false
	}
	idx := len(sel.Path)
	if res.PathComponent != nil && res.PathComponent.Node == ast.Node(sel) {
		idx = res.PathComponent.Index
	}
	v, err := ev.EvalSelectPrefix(sel.Base, sel.Path[:idx], envs[0], sel.Range())
	if err != nil {
		return nil, false
	}
	forced, err := ev.ForceValue(v)
	if err != nil || forced.Kind != runtime.KindAttrs {
		return nil, false
	}
	return attrsItems(forced.Attrs), true
}

// resolveLexical implements rule 2: the innermost node is a variable
// reference; collect names visible along its static-scope chain, skipping
// double-underscore-prefixed names introduced at the outermost (builtins)
// scope.
func resolveLexical(focus ast.Node) ([]Item, bool) {
	v, ok := focus.(*ast.Var)
	if !ok {
		return nil, false
	}
	scope, ok := v.GetStaticEnv().(*staticenv.Scope)
	if !ok || scope == nil {
		return nil, false
	}

	seen := map[string]bool{}
	var items []Item
	for s := scope; s != nil; s = s.Parent {
		if s.IsWithMarker {
			continue
		}
		for _, name := range s.Vars {
			if s.IsBuiltins && len(name) >= 2 && name[:2] == "__" {
				continue
			}
			if seen[name] {
				continue
			}
			seen[name] = true
			items = append(items, Item{Name: name})
		}
	}
	if len(items) == 0 {
		return nil, false
	}
	return items, true
}

func attrsItems(attrs *runtime.Attrs) []Item {
	items := make([]Item, 0, len(attrs.Names))
	for _, name := range attrs.Names {
		items = append(items, Item{Name: name})
	}
	return items
}
