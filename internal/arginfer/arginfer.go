// Package arginfer implements spec §4.6's lambda-argument inference: a
// pass run before dynamic-env reconstruction (internal/runtime's
// ReconstructPath) that supplies synthetic arguments for lambdas sitting
// on a cursor path, based on file kind and call-site structure.
//
// Grounded on internal/lsp/eval/eval.go's lazy evaluator (the teacher's
// own "evaluate enough to serve a query" discipline) for the general
// shape of driving the shared Evaluator from a query-time pass, and on
// cue/load's single-root-import idiom for the package-set fixpoint
// (importing one file to a fixed point and caching the result).
package arginfer

import (
	"os"
	"sync"

	"nls.dev/nls/internal/ast"
	"nls.dev/nls/internal/document"
	"nls.dev/nls/internal/errs"
	"nls.dev/nls/internal/parser"
	"nls.dev/nls/internal/runtime"
	"nls.dev/nls/internal/staticenv"
)

// Infer scans path outermost-first (path is ordered innermost-first, the
// convention internal/cursor and internal/runtime already share, so this
// walks from the end towards index 0) and returns the LambdaArgs map
// internal/runtime.ReconstructPath needs, plus any diagnostics produced
// evaluating call-site argument expressions along the way.
func Infer(doc *document.Document, path []ast.Node, ev *runtime.Evaluator, root *runtime.Env) (runtime.LambdaArgs, []*errs.Error) {
	args := runtime.LambdaArgs{}
	var diags []*errs.Error
	if len(path) == 0 {
		return args, diags
	}

	flakeLambda := outputsLambda(doc)
	packageAssigned := false

	envs := make([]*runtime.Env, len(path))
	envs[len(path)-1] = root

	for i := len(path) - 1; i > 0; i-- {
		parent := path[i]
		child := path[i-1]
		up := envs[i]

		// A lambda needs its inferred argument decided here, before
		// Transition builds its call environment below — whether it is
		// the outermost node on the path (the document root itself, the
		// package-file case) or nested arbitrarily deep (the flake
		// outputs case, or a call-site-introduced intermediate lambda).
		if lam, ok := parent.(*ast.Lambda); ok {
			if _, already := args[lam]; !already {
				switch {
				case flakeLambda != nil && lam == flakeLambda:
					args[lam] = flakeInputsValue(doc, ev)

				case doc.Kind == document.FileKindPackage && !packageAssigned:
					packageAssigned = true
					if v, err := packageSetFixpoint(ev, packageRootOf(doc)); err != nil {
						diags = append(diags, err)
					} else {
						args[lam] = v
					}

				default:
					if i+1 < len(path) {
						if call, ok := path[i+1].(*ast.Call); ok {
							if argExpr, ok2 := callArgExprFor(call, lam); ok2 {
								if v, err := ev.Eval(argExpr, envs[i+1]); err != nil {
									diags = append(diags, err)
								} else {
									args[lam] = v
								}
							}
						}
					}
				}
			}
		}

		envs[i-1] = runtime.Transition(parent, child, up, ev, args)
	}
	return args, diags
}

func packageRootOf(doc *document.Document) string {
	if doc.ConfigStack == nil {
		return ""
	}
	return doc.ConfigStack.PackageRoot
}

// outputsLambda finds the flake file's `outputs` attribute's value, when
// that value is itself a lambda literal (spec §4.6: "the lambda
// immediately below outputs").
func outputsLambda(doc *document.Document) *ast.Lambda {
	if doc.Kind != document.FileKindFlake {
		return nil
	}
	root, ok := doc.Root().(*ast.AttrSet)
	if !ok {
		return nil
	}
	entry, ok := root.Entries["outputs"]
	if !ok {
		return nil
	}
	lam, ok := entry.Expr.(*ast.Lambda)
	if !ok {
		return nil
	}
	return lam
}

// flakeInputsValue builds spec §4.6's flake-input value: "an attr-set
// with one entry per declared input plus a self entry". Fetching a
// declared input's real content is out of scope (this spec has no
// fetcher/network component), so each declared input (other than self)
// is a placeholder empty attrset — a selection through it fails
// gracefully with a missing-attribute diagnostic rather than crashing.
func flakeInputsValue(doc *document.Document, ev *runtime.Evaluator) runtime.Value {
	doc.FlakeDiagnostics(ev) // side effect: populates doc.FlakeInputs()

	attrs := &runtime.Attrs{Entries: make(map[string]runtime.AttrsEntry)}
	if declared := doc.FlakeInputs(); declared != nil {
		for _, name := range declared.Names {
			if name == "self" {
				continue
			}
			attrs.Names = append(attrs.Names, name)
			attrs.Entries[name] = runtime.AttrsEntry{
				Value: runtime.Const(runtime.Value{Kind: runtime.KindAttrs, Attrs: &runtime.Attrs{}}),
			}
		}
	}
	attrs.Names = append(attrs.Names, "self")
	selfThunk := runtime.NewThunk(doc.Root(), runtime.DefaultBuiltinsEnv())
	attrs.Entries["self"] = runtime.AttrsEntry{Value: selfThunk}

	return runtime.Value{Kind: runtime.KindAttrs, Attrs: attrs}
}

// callArgExprFor locates the argument expression call supplies for lam,
// walking call's curried argument chain (`(a: b: body) x y` applies `x`
// to the outer lambda, `y` to the inner one, both evaluated in call's own
// environment since a curried multi-arg call evaluates every actual
// argument in the same outer scope).
func callArgExprFor(call *ast.Call, lam *ast.Lambda) (ast.Expr, bool) {
	var cur ast.Expr = call.Fun
	for _, argExpr := range call.Args {
		curLambda, ok := cur.(*ast.Lambda)
		if !ok {
			return nil, false
		}
		if curLambda == lam {
			return argExpr, true
		}
		cur = curLambda.Body
	}
	return nil, false
}

var packageSetCache = struct {
	mu     sync.Mutex
	values map[string]runtime.Value
}{values: map[string]runtime.Value{}}

// packageSetFixpoint implements spec §4.6's "process-level cached
// attr-set obtained by importing the configured package-root with an
// empty overrides argument" — the conventional `import <packageRoot> {}`
// shape package sets expose. Open Question resolution #1: an empty
// packageRoot produces a diagnostic rather than a process abort.
func packageSetFixpoint(ev *runtime.Evaluator, packageRoot string) (runtime.Value, *errs.Error) {
	if packageRoot == "" {
		return runtime.Null, errs.NewSentinelf(errs.KindEvaluation, "no package root configured")
	}

	packageSetCache.mu.Lock()
	defer packageSetCache.mu.Unlock()
	if v, ok := packageSetCache.values[packageRoot]; ok {
		return v, nil
	}

	src, ioErr := os.ReadFile(packageRoot)
	if ioErr != nil {
		return runtime.Null, errs.NewSentinelf(errs.KindIO, "reading package root %s: %v", packageRoot, ioErr)
	}
	var el errs.List
	p := parser.New(src, &el)
	root := p.Parse()
	staticenv.Build(root, nil, &el)

	rootVal, evalErr := ev.Eval(root, runtime.DefaultBuiltinsEnv())
	if evalErr != nil {
		return runtime.Null, evalErr
	}
	forcedRoot, forceErr := ev.ForceValue(rootVal)
	if forceErr != nil {
		return runtime.Null, forceErr
	}

	var result runtime.Value
	switch forcedRoot.Kind {
	case runtime.KindAttrs:
		result = forcedRoot
	default:
		called, callErr := ev.Call(forcedRoot, runtime.Value{Kind: runtime.KindAttrs, Attrs: &runtime.Attrs{}})
		if callErr != nil {
			return runtime.Null, callErr
		}
		forcedResult, forceErr := ev.ForceValue(called)
		if forceErr != nil {
			return runtime.Null, forceErr
		}
		result = forcedResult
	}

	packageSetCache.values[packageRoot] = result
	return result, nil
}
