// Package query assembles spec §4.9's completion, hover, go-to-definition,
// and diagnostics operations over a parsed document.
//
// Grounded on internal/lsp/server/definitions.go and internal/lsp/cache/
// eval.go's general shape — a thin layer gluing the cursor locator, the
// schema engine, and the evaluator together into editor-shaped answers —
// but not their signatures: both are built on
// cuelang.org/go/internal/golangorgx/gopls/protocol, a CUE-internal
// package this module cannot import. Results here are plain Go values
// over internal/position's already wire-compatible Position/Range types;
// shaping them onto the LSP JSON wire is internal/rpc's job, not this
// package's.
package query

import (
	"fmt"
	"sort"
	"strings"

	"nls.dev/nls/internal/arginfer"
	"nls.dev/nls/internal/ast"
	"nls.dev/nls/internal/cursor"
	"nls.dev/nls/internal/document"
	"nls.dev/nls/internal/errs"
	"nls.dev/nls/internal/position"
	"nls.dev/nls/internal/runtime"
	"nls.dev/nls/internal/schema"
)

// CompletionItem is one entry of a completion response (spec §4.9's
// "Returns items sorted lexicographically by label").
type CompletionItem struct {
	Label string
	Doc   string
}

// HoverResult is a hover response: a value's printed markdown form, plus
// its definition position when one is available (spec §4.9's "If the
// focus has an associated definition position, return it alongside").
type HoverResult struct {
	Markdown string
	DefPos   *position.Position
}

// locate runs the cursor locator and lambda-argument inference, then
// reconstructs the dynamic environment along the path — the shared setup
// every query operation below needs before it can evaluate anything.
func locate(doc *document.Document, pos position.Position, ev *runtime.Evaluator) (cursor.Result, []*runtime.Env) {
	root := doc.Root()
	res := cursor.Locate(root, pos)
	if len(res.Path) == 0 {
		return res, nil
	}
	args, _ := arginfer.Infer(doc, res.Path, ev, runtime.DefaultBuiltinsEnv())
	envs := runtime.ReconstructPath(res.Path, runtime.DefaultBuiltinsEnv(), ev, args)
	return res, envs
}

// Completion implements spec §4.9's completion operation: the schema
// engine's vocabulary (which itself falls back to lexical scope when no
// more specific rule matches), sorted lexicographically by label.
func Completion(doc *document.Document, pos position.Position, ev *runtime.Evaluator) []CompletionItem {
	res, envs := locate(doc, pos, ev)
	if len(res.Path) == 0 {
		return nil
	}
	items, ok := schema.Resolve(res, envs, ev)
	if !ok {
		return nil
	}
	out := make([]CompletionItem, len(items))
	for i, it := range items {
		out[i] = CompletionItem{Label: it.Name, Doc: it.Doc}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// Hover implements spec §4.9's hover operation: the focus node is treated
// as a selection prefix, evaluated, and printed as markdown. A focus
// landing on a formal's name is a special case (there is no
// value to select through — a formal has no binding of its own outside a
// call), and prints that default's own printed form instead.
func Hover(doc *document.Document, pos position.Position, ev *runtime.Evaluator) *HoverResult {
	res, envs := locate(doc, pos, ev)
	if len(res.Path) == 0 {
		return nil
	}

	if lam, formal, ok := formalAt(res.Path, pos); ok {
		return hoverFormal(lam, formal, envs, ev)
	}

	focus := res.Path[0]
	switch f := focus.(type) {
	case *ast.Select:
		upto := len(f.Path)
		if res.PathComponent != nil && res.PathComponent.Node == ast.Node(f) {
			upto = res.PathComponent.Index + 1
		}
		v, defPos, err := evalSelectionUpto(ev, f.Base, f.Path, upto, envs[0], f.Range())
		if err != nil {
			return nil
		}
		forced, ferr := ev.ForceValue(v)
		if ferr != nil {
			return nil
		}
		return &HoverResult{Markdown: FormatValue(ev, forced), DefPos: defPos}
	case ast.Expr:
		v, err := ev.Eval(f, envs[0])
		if err != nil {
			return nil
		}
		forced, ferr := ev.ForceValue(v)
		if ferr != nil {
			return nil
		}
		return &HoverResult{Markdown: FormatValue(ev, forced)}
	default:
		return nil
	}
}

// Definition implements spec §4.9's go-to-definition operation: it is the
// same computation as Hover, exposing only the definition position.
func Definition(doc *document.Document, pos position.Position, ev *runtime.Evaluator) *position.Position {
	h := Hover(doc, pos, ev)
	if h == nil {
		return nil
	}
	return h.DefPos
}

// formalAt reports whether pos lands on one of a Lambda's declared formal
// names. A Formal carries no dedicated AST node (spec's GLOSSARY lists no
// such variant; internal/ast.Formal is a plain struct field, not a Node),
// so a cursor resting on a formal's name surfaces the enclosing Lambda as
// res.Path[0] with no PathComponent set — disambiguated here by comparing
// pos directly against each formal's recorded NamePos/name length.
func formalAt(path []ast.Node, pos position.Position) (*ast.Lambda, *ast.Formal, bool) {
	if len(path) == 0 {
		return nil, nil, false
	}
	lam, ok := path[0].(*ast.Lambda)
	if !ok || !lam.HasFormals {
		return nil, nil, false
	}
	for i := range lam.Formals {
		f := &lam.Formals[i]
		start := f.NamePos
		end := position.Position{Line: start.Line, Column: start.Column + uint32(len(f.Name))}
		if !pos.Before(start) && pos.Before(end) || pos.Equal(end) {
			return lam, f, true
		}
	}
	return nil, nil, false
}

// hoverFormal implements spec §4.9's "if the focus is a formal, return its
// default's printed form": a formal with no default has nothing to print;
// otherwise the default is evaluated in the lambda's own call environment
// (the same environment buildLambdaEnv gives its body, so a default that
// references a sibling formal resolves correctly) with no externally
// supplied argument, matching how a default behaves when nothing
// overrides it.
func hoverFormal(lam *ast.Lambda, formal *ast.Formal, envs []*runtime.Env, ev *runtime.Evaluator) *HoverResult {
	if formal.Default == nil {
		return &HoverResult{Markdown: fmt.Sprintf("`%s` (no default)", formal.Name)}
	}
	up := envs[0]
	callEnv := runtime.Transition(lam, nil, up, ev, nil)
	v, err := ev.Eval(formal.Default, callEnv)
	if err != nil {
		return nil
	}
	forced, ferr := ev.ForceValue(v)
	if ferr != nil {
		return nil
	}
	return &HoverResult{Markdown: FormatValue(ev, forced)}
}

// evalSelectionUpto evaluates base composed with path[:upto] and, when the
// final consumed component is a literal symbol, also reports its defining
// entry's position (spec §4.9: "positions are attached to attr-set entries
// during evaluation"). A computed (`${...}`) final component carries no
// such entry to look back up, so no definition position is reported for
// one.
func evalSelectionUpto(ev *runtime.Evaluator, base ast.Expr, path []ast.PathComponent, upto int, env *runtime.Env, at position.Range) (runtime.Value, *position.Position, *errs.Error) {
	full := path[:upto]
	v, err := ev.EvalSelectPrefix(base, full, env, at)
	if err != nil {
		return runtime.Null, nil, err
	}
	if upto == 0 {
		return v, nil, nil
	}
	last := full[upto-1]
	if last.Expr != nil {
		return v, nil, nil
	}
	prefixVal, perr := ev.EvalSelectPrefix(base, full[:upto-1], env, at)
	if perr != nil {
		return v, nil, nil
	}
	prefixForced, ferr := ev.ForceValue(prefixVal)
	if ferr != nil || prefixForced.Kind != runtime.KindAttrs {
		return v, nil, nil
	}
	entry, ok := prefixForced.Attrs.Entries[last.Symbol]
	if !ok {
		return v, nil, nil
	}
	defPos := entry.DefPos
	return v, &defPos, nil
}

// Diagnostics implements spec §4.9's diagnostics operation: the union of
// parse diagnostics, a best-effort whole-document evaluation, and (for
// flake files) flake-structure diagnostics.
func Diagnostics(doc *document.Document, ev *runtime.Evaluator) []*errs.Error {
	var out []*errs.Error
	out = append(out, doc.ParseDiagnostics()...)

	root := doc.Root()
	if v, err := ev.Eval(root, runtime.DefaultBuiltinsEnv()); err != nil {
		out = append(out, err)
	} else if _, ferr := ev.ForceValue(v); ferr != nil {
		out = append(out, ferr)
	}

	out = append(out, doc.FlakeDiagnostics(ev)...)
	return out
}

// FormatValue renders v the way a hover panel shows a value: scalars print
// in full, attrs and lists print shallowly (their own key/length hints
// only) to avoid deep-forcing a lazily-infinite or merely expensive
// structure just to answer a hover.
func FormatValue(ev *runtime.Evaluator, v runtime.Value) string {
	switch v.Kind {
	case runtime.KindNull:
		return "null"
	case runtime.KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case runtime.KindInt:
		return fmt.Sprintf("%d", v.Int)
	case runtime.KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case runtime.KindString:
		return fmt.Sprintf("%q", v.Str)
	case runtime.KindPath:
		return v.Str
	case runtime.KindList:
		return fmt.Sprintf("[ %d items ]", len(v.List))
	case runtime.KindAttrs:
		if len(v.Attrs.Names) == 0 {
			return "{ }"
		}
		return fmt.Sprintf("{ %s }", strings.Join(v.Attrs.Names, ", "))
	case runtime.KindLambda:
		return lambdaSignature(v.Lambda)
	case runtime.KindPrimop:
		return fmt.Sprintf("<primop %s>", v.Primop.Name)
	case runtime.KindExternal:
		return "<external>"
	default:
		return "<thunk>"
	}
}

func lambdaSignature(lam *ast.Lambda) string {
	if !lam.HasFormals {
		return fmt.Sprintf("%s: <function>", lam.NameArg)
	}
	names := make([]string, len(lam.Formals))
	for i, f := range lam.Formals {
		names[i] = f.Name
	}
	params := strings.Join(names, ", ")
	if lam.HasEllipsis {
		if params != "" {
			params += ", "
		}
		params += "..."
	}
	return fmt.Sprintf("{ %s }: <function>", params)
}
