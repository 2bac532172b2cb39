package scanner

import (
	"testing"

	"github.com/go-quicktest/qt"

	"nls.dev/nls/internal/errs"
	"nls.dev/nls/internal/token"
)

func tokenize(t *testing.T, src string) ([]token.Token, *errs.List) {
	t.Helper()
	var el errs.List
	s := New([]byte(src), &el)
	return s.Tokenize(), &el
}

func kinds(toks []token.Token) []token.Kind {
	out := make([]token.Kind, len(toks))
	for i, tok := range toks {
		out[i] = tok.Kind
	}
	return out
}

func TestScanBasicPunctuation(t *testing.T) {
	toks, el := tokenize(t, "{ a = 1; }")
	qt.Assert(t, qt.Equals(el.Len(), 0))
	qt.Assert(t, qt.DeepEquals(kinds(toks), []token.Kind{
		token.LBRACE, token.IDENT, token.EQ, token.INT, token.SEMI, token.RBRACE, token.EOF,
	}))
}

func TestScanKeywordsNotIdents(t *testing.T) {
	toks, _ := tokenize(t, "let x = 1; in x")
	qt.Assert(t, qt.Equals(toks[0].Kind, token.LET))
	qt.Assert(t, qt.Equals(toks[1].Kind, token.IDENT))
	qt.Assert(t, qt.Equals(toks[5].Kind, token.IN))
}

func TestScanIdentAllowsDashAndQuote(t *testing.T) {
	toks, el := tokenize(t, "foo-bar'")
	qt.Assert(t, qt.Equals(el.Len(), 0))
	qt.Assert(t, qt.Equals(toks[0].Kind, token.IDENT))
	qt.Assert(t, qt.Equals(toks[0].Literal.Str, "foo-bar'"))
}

func TestScanInteger(t *testing.T) {
	toks, _ := tokenize(t, "42")
	qt.Assert(t, qt.Equals(toks[0].Kind, token.INT))
	qt.Assert(t, qt.Equals(toks[0].Literal.Int, int64(42)))
}

func TestScanFloat(t *testing.T) {
	toks, _ := tokenize(t, "3.14")
	qt.Assert(t, qt.Equals(toks[0].Kind, token.FLOAT))
	qt.Assert(t, qt.Equals(toks[0].Literal.Float, 3.14))
}

func TestScanSimpleString(t *testing.T) {
	toks, el := tokenize(t, `"hello"`)
	qt.Assert(t, qt.Equals(el.Len(), 0))
	qt.Assert(t, qt.DeepEquals(kinds(toks), []token.Kind{
		token.STRING_OPEN, token.STRING_PART, token.STRING_CLOSE, token.EOF,
	}))
	qt.Assert(t, qt.Equals(toks[1].Literal.Str, "hello"))
}

func TestScanStringInterpolation(t *testing.T) {
	toks, el := tokenize(t, `"a${b}c"`)
	qt.Assert(t, qt.Equals(el.Len(), 0))
	qt.Assert(t, qt.DeepEquals(kinds(toks), []token.Kind{
		token.STRING_OPEN, token.STRING_PART, token.INTERP_OPEN, token.IDENT,
		token.INTERP_CLOSE, token.STRING_PART, token.STRING_CLOSE, token.EOF,
	}))
}

func TestScanNestedBraceInsideInterpolation(t *testing.T) {
	// "${ { b = 1; }.b }" exercises the merged nesting stack: the inner
	// `{ }` is an ordinary attrset, not a string close.
	toks, el := tokenize(t, `"${ { b = 1; }.b }"`)
	qt.Assert(t, qt.Equals(el.Len(), 0))
	qt.Assert(t, qt.Equals(toks[0].Kind, token.STRING_OPEN))
	qt.Assert(t, qt.Equals(toks[1].Kind, token.INTERP_OPEN))
	qt.Assert(t, qt.DeepEquals(kinds(toks[2:9]), []token.Kind{
		token.LBRACE, token.IDENT, token.EQ, token.INT, token.SEMI, token.RBRACE, token.DOT,
	}))
	last := toks[len(toks)-2]
	qt.Assert(t, qt.Equals(last.Kind, token.STRING_CLOSE))
}

func TestScanIndentedString(t *testing.T) {
	toks, el := tokenize(t, "''hi''")
	qt.Assert(t, qt.Equals(el.Len(), 0))
	qt.Assert(t, qt.DeepEquals(kinds(toks), []token.Kind{
		token.STRING_OPEN, token.STRING_PART, token.STRING_CLOSE, token.EOF,
	}))
	qt.Assert(t, qt.IsTrue(toks[2].Literal.HasIndent))
}

func TestScanUnterminatedStringReportsError(t *testing.T) {
	_, el := tokenize(t, `"abc`)
	qt.Assert(t, qt.Equals(el.Len(), 1))
}

func TestScanPathLiteral(t *testing.T) {
	toks, el := tokenize(t, "./foo/bar")
	qt.Assert(t, qt.Equals(el.Len(), 0))
	qt.Assert(t, qt.Equals(toks[0].Kind, token.PATH))
	qt.Assert(t, qt.Equals(toks[0].Literal.Str, "./foo/bar"))
}

func TestScanSearchPath(t *testing.T) {
	toks, el := tokenize(t, "<nixpkgs>")
	qt.Assert(t, qt.Equals(el.Len(), 0))
	qt.Assert(t, qt.Equals(toks[0].Kind, token.PATH))
	qt.Assert(t, qt.Equals(toks[0].Literal.Str, "<nixpkgs>"))
}

func TestScanLessThanNotConfusedWithSearchPath(t *testing.T) {
	toks, el := tokenize(t, "a < b")
	qt.Assert(t, qt.Equals(el.Len(), 0))
	qt.Assert(t, qt.DeepEquals(kinds(toks), []token.Kind{
		token.IDENT, token.LT, token.IDENT, token.EOF,
	}))
}

func TestScanOperators(t *testing.T) {
	toks, el := tokenize(t, "== != <= >= && || -> // ++")
	qt.Assert(t, qt.Equals(el.Len(), 0))
	qt.Assert(t, qt.DeepEquals(kinds(toks), []token.Kind{
		token.EQEQ, token.NEQ, token.LE, token.GE, token.ANDAND, token.OROR,
		token.IMPL, token.UPDATE, token.CONCAT, token.EOF,
	}))
}

func TestScanIllegalCharacterStillProgresses(t *testing.T) {
	toks, el := tokenize(t, "a ` b")
	qt.Assert(t, qt.Equals(el.Len(), 1))
	qt.Assert(t, qt.DeepEquals(kinds(toks), []token.Kind{
		token.IDENT, token.ILLEGAL, token.IDENT, token.EOF,
	}))
}

func TestScanCommentsAreSkipped(t *testing.T) {
	toks, el := tokenize(t, "a # line comment\n/* block */ b")
	qt.Assert(t, qt.Equals(el.Len(), 0))
	qt.Assert(t, qt.DeepEquals(kinds(toks), []token.Kind{
		token.IDENT, token.IDENT, token.EOF,
	}))
}

func TestScanBareInterpolationOpen(t *testing.T) {
	// Dynamic attribute names, e.g. `{ ${x} = 1; }`, use INTERP_OPEN/CLOSE
	// outside of any string literal.
	toks, el := tokenize(t, "{ ${x} = 1; }")
	qt.Assert(t, qt.Equals(el.Len(), 0))
	qt.Assert(t, qt.DeepEquals(kinds(toks), []token.Kind{
		token.LBRACE, token.INTERP_OPEN, token.IDENT, token.INTERP_CLOSE,
		token.EQ, token.INT, token.SEMI, token.RBRACE, token.EOF,
	}))
}

func TestScanEllipsis(t *testing.T) {
	toks, el := tokenize(t, "{ a, ... }:")
	qt.Assert(t, qt.Equals(el.Len(), 0))
	qt.Assert(t, qt.DeepEquals(kinds(toks), []token.Kind{
		token.LBRACE, token.IDENT, token.COMMA, token.ELLIPSIS, token.RBRACE, token.COLON, token.EOF,
	}))
}
