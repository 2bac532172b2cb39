package parser

import (
	"testing"

	"github.com/go-quicktest/qt"

	"nls.dev/nls/internal/ast"
	"nls.dev/nls/internal/errs"
)

func parse(t *testing.T, src string) (ast.Expr, *errs.List) {
	t.Helper()
	var el errs.List
	p := New([]byte(src), &el)
	return p.Parse(), &el
}

func TestParseIntLit(t *testing.T) {
	root, el := parse(t, "42")
	qt.Assert(t, qt.Equals(el.Len(), 0))
	lit, ok := root.(*ast.IntLit)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(lit.Value, int64(42)))
}

func TestParseAttrSetOrderAndLookup(t *testing.T) {
	root, el := parse(t, "{ a = 1; b = 2; }")
	qt.Assert(t, qt.Equals(el.Len(), 0))
	set, ok := root.(*ast.AttrSet)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.IsFalse(set.Recursive))
	qt.Assert(t, qt.DeepEquals(set.Names, []string{"a", "b"}))
	qt.Assert(t, qt.Equals(set.Entries["a"].Expr.(*ast.IntLit).Value, int64(1)))
	qt.Assert(t, qt.Equals(set.Entries["b"].Expr.(*ast.IntLit).Value, int64(2)))
}

func TestParseRecAttrSet(t *testing.T) {
	root, el := parse(t, "rec { a = 1; b = a; }")
	qt.Assert(t, qt.Equals(el.Len(), 0))
	set := root.(*ast.AttrSet)
	qt.Assert(t, qt.IsTrue(set.Recursive))
}

func TestParseLetIn(t *testing.T) {
	root, el := parse(t, "let a = 1; in a")
	qt.Assert(t, qt.Equals(el.Len(), 0))
	let, ok := root.(*ast.Let)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.IsTrue(let.Attrs.Recursive))
	qt.Assert(t, qt.Equals(let.Attrs.Names[0], "a"))
	v, ok := let.Body.(*ast.Var)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(v.Name, "a"))
}

func TestParseSimpleLambdaAndApp(t *testing.T) {
	root, el := parse(t, "(x: x) 1")
	qt.Assert(t, qt.Equals(el.Len(), 0))
	call, ok := root.(*ast.Call)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(len(call.Args), 1))
	lam, ok := call.Fun.(*ast.Lambda)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(lam.NameArg, "x"))
	qt.Assert(t, qt.IsFalse(lam.HasFormals))
}

func TestParseFormalsLambdaWithDefaultAndEllipsis(t *testing.T) {
	root, el := parse(t, "{ a, b ? 2, ... }: a")
	qt.Assert(t, qt.Equals(el.Len(), 0))
	lam, ok := root.(*ast.Lambda)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.IsTrue(lam.HasFormals))
	qt.Assert(t, qt.IsTrue(lam.HasEllipsis))
	qt.Assert(t, qt.Equals(len(lam.Formals), 2))
	qt.Assert(t, qt.Equals(lam.Formals[0].Name, "a"))
	qt.Assert(t, qt.IsNil(lam.Formals[0].Default))
	qt.Assert(t, qt.Equals(lam.Formals[1].Name, "b"))
	qt.Assert(t, qt.IsNotNil(lam.Formals[1].Default))
}

func TestParseCombinedFormalsLambda(t *testing.T) {
	root, el := parse(t, "args@{ a, ... }: a")
	qt.Assert(t, qt.Equals(el.Len(), 0))
	lam, ok := root.(*ast.Lambda)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(lam.NameArg, "args"))
	qt.Assert(t, qt.IsTrue(lam.HasFormals))
	qt.Assert(t, qt.Equals(len(lam.Formals), 1))
}

func TestParseDuplicateFormalKeepsBothReportsDiagnostic(t *testing.T) {
	root, el := parse(t, "{ a, a }: a")
	qt.Assert(t, qt.Equals(el.Len(), 1))
	lam := root.(*ast.Lambda)
	qt.Assert(t, qt.Equals(len(lam.Formals), 2))
}

func TestParseSelectionWithDefault(t *testing.T) {
	root, el := parse(t, "a.b.c or 0")
	qt.Assert(t, qt.Equals(el.Len(), 0))
	sel, ok := root.(*ast.Select)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(len(sel.Path), 2))
	qt.Assert(t, qt.Equals(sel.Path[0].Symbol, "b"))
	qt.Assert(t, qt.Equals(sel.Path[1].Symbol, "c"))
	qt.Assert(t, qt.IsNotNil(sel.Default))
}

func TestParseHasAttr(t *testing.T) {
	root, el := parse(t, "a ? b.c")
	qt.Assert(t, qt.Equals(el.Len(), 0))
	has, ok := root.(*ast.HasAttr)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(len(has.Path), 2))
}

func TestParseInheritPlain(t *testing.T) {
	root, el := parse(t, "{ inherit a b; }")
	qt.Assert(t, qt.Equals(el.Len(), 0))
	set := root.(*ast.AttrSet)
	qt.Assert(t, qt.DeepEquals(set.Names, []string{"a", "b"}))
	qt.Assert(t, qt.IsTrue(set.Entries["a"].Inherited))
	_, ok := set.Entries["a"].Expr.(*ast.Var)
	qt.Assert(t, qt.IsTrue(ok))
}

func TestParseInheritFromExpr(t *testing.T) {
	root, el := parse(t, "{ inherit (a) x; }")
	qt.Assert(t, qt.Equals(el.Len(), 0))
	set := root.(*ast.AttrSet)
	sel, ok := set.Entries["x"].Expr.(*ast.Select)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(sel.Path[0].Symbol, "x"))
	base, ok := sel.Base.(*ast.Var)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(base.Name, "a"))
}

func TestParseDynamicAttrName(t *testing.T) {
	root, el := parse(t, "{ ${x} = 1; }")
	qt.Assert(t, qt.Equals(el.Len(), 0))
	set := root.(*ast.AttrSet)
	qt.Assert(t, qt.Equals(len(set.Dynamic), 1))
	nameVar, ok := set.Dynamic[0].NameExpr.(*ast.Var)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(nameVar.Name, "x"))
}

func TestParseStringInterpolationProducesConcatStrings(t *testing.T) {
	root, el := parse(t, `"a${b}c"`)
	qt.Assert(t, qt.Equals(el.Len(), 0))
	cs, ok := root.(*ast.ConcatStrings)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(len(cs.Parts), 3))
	first := cs.Parts[0].Expr.(*ast.StringLit)
	qt.Assert(t, qt.Equals(first.Value, "a"))
	_, ok = cs.Parts[1].Expr.(*ast.Var)
	qt.Assert(t, qt.IsTrue(ok))
}

func TestParsePlainStringIsStringLitNotConcat(t *testing.T) {
	root, el := parse(t, `"hello"`)
	qt.Assert(t, qt.Equals(el.Len(), 0))
	lit, ok := root.(*ast.StringLit)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(lit.Value, "hello"))
}

func TestParseArithmeticAndComparisonPrecedence(t *testing.T) {
	root, el := parse(t, "1 + 2 * 3 < 10")
	qt.Assert(t, qt.Equals(el.Len(), 0))
	cmp, ok := root.(*ast.Binary)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(cmp.Op, ast.OpLt))
	add, ok := cmp.Left.(*ast.Binary)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(add.Op, ast.OpAdd))
	mul, ok := add.Right.(*ast.Binary)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(mul.Op, ast.OpMul))
}

func TestParseUnaryNeg(t *testing.T) {
	root, el := parse(t, "-1")
	qt.Assert(t, qt.Equals(el.Len(), 0))
	neg, ok := root.(*ast.Neg)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(neg.Expr.(*ast.IntLit).Value, int64(1)))
}

func TestParseIfThenElse(t *testing.T) {
	root, el := parse(t, "if a then 1 else 2")
	qt.Assert(t, qt.Equals(el.Len(), 0))
	iff, ok := root.(*ast.If)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(iff.Then.(*ast.IntLit).Value, int64(1)))
	qt.Assert(t, qt.Equals(iff.Else.(*ast.IntLit).Value, int64(2)))
}

func TestParseWithAndAssert(t *testing.T) {
	root, el := parse(t, "with a; assert b; c")
	qt.Assert(t, qt.Equals(el.Len(), 0))
	with, ok := root.(*ast.With)
	qt.Assert(t, qt.IsTrue(ok))
	assertN, ok := with.Body.(*ast.Assert)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(assertN.Body.(*ast.Var).Name, "c"))
}

// --- error tolerance (spec §4.2) ---

func TestParseMissingAttrValueGetsNullPlaceholderAndDiagnostic(t *testing.T) {
	root, el := parse(t, "{ a; b = 1; }")
	qt.Assert(t, qt.Equals(el.Len(), 1))
	set := root.(*ast.AttrSet)
	qt.Assert(t, qt.DeepEquals(set.Names, []string{"a", "b"}))
	null, ok := set.Entries["a"].Expr.(*ast.Var)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(null.Name, "null"))
	qt.Assert(t, qt.Equals(set.Entries["b"].Expr.(*ast.IntLit).Value, int64(1)))
}

func TestParseDuplicateAttrFirstWinsReportsDiagnostic(t *testing.T) {
	root, el := parse(t, "{ a = 1; a = 2; }")
	qt.Assert(t, qt.Equals(el.Len(), 1))
	set := root.(*ast.AttrSet)
	qt.Assert(t, qt.DeepEquals(set.Names, []string{"a"}))
	qt.Assert(t, qt.Equals(set.Entries["a"].Expr.(*ast.IntLit).Value, int64(1)))
}

func TestParseTrailingDotSelectionGetsEmptyComponent(t *testing.T) {
	root, el := parse(t, "a.")
	qt.Assert(t, qt.Equals(el.Len(), 1))
	sel, ok := root.(*ast.Select)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(len(sel.Path), 1))
	qt.Assert(t, qt.Equals(sel.Path[0].Symbol, ""))
	qt.Assert(t, qt.IsNil(sel.Path[0].Expr))
}

func TestParseMissingClosingBraceSynchronises(t *testing.T) {
	root, el := parse(t, "{ a = 1;")
	qt.Assert(t, qt.Equals(el.Len(), 1))
	set, ok := root.(*ast.AttrSet)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.DeepEquals(set.Names, []string{"a"}))
}

func TestParseUnexpectedTokenProducesDiagnosticAndPlaceholder(t *testing.T) {
	root, el := parse(t, ")")
	qt.Assert(t, qt.Equals(el.Len(), 1))
	v, ok := root.(*ast.Var)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(v.Name, "null"))
}

func TestParseParentPointersSet(t *testing.T) {
	root, el := parse(t, "{ a = 1; }")
	qt.Assert(t, qt.Equals(el.Len(), 0))
	set := root.(*ast.AttrSet)
	entry := set.Entries["a"].Expr
	qt.Assert(t, qt.Equals(entry.GetParent(), ast.Node(set)))
}

func TestParseTokenRangeCoversWholeDocument(t *testing.T) {
	root, el := parse(t, "1")
	qt.Assert(t, qt.Equals(el.Len(), 0))
	start, end := root.TokenRange()
	qt.Assert(t, qt.Equals(start, 0))
	qt.Assert(t, qt.Equals(end, 0))
}
