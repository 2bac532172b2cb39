// Package parser implements the error-tolerant recursive-descent parser for
// the host configuration language (spec §4.2). It consumes the scanner's
// full token vector rather than pulling tokens one at a time, which is what
// lets every constructed node record its token range as a pair of indices
// into that vector (spec §3 invariant 1) instead of needing a separate
// position-tracking scheme.
//
// Grounded on cue/parser's structure (expect/errorExpected/sync, a
// precedence-climbing binary-expression parser, struct literal vs. label
// disambiguation by lookahead) adapted to this language's grammar: function
// literals, let/with/assert/if, attribute sets with inherit and dynamic
// names, and string interpolation.
package parser

import (
	"fmt"

	"nls.dev/nls/internal/ast"
	"nls.dev/nls/internal/errs"
	"nls.dev/nls/internal/position"
	"nls.dev/nls/internal/scanner"
	"nls.dev/nls/internal/token"
)

// inRecoverySet reports membership in the synchronisation set named in spec §4.2: statement/attr-list
// terminators that a parser in error-recovery mode scans forward to.
func inRecoverySet(k token.Kind) bool {
	switch k {
	case token.SEMI, token.RBRACE, token.RBRACKET, token.IN, token.EOF:
		return true
	}
	return false
}

// Parser holds parsing state over a whole document's pre-scanned token
// vector.
type Parser struct {
	toks []token.Token
	pos  int
	errs *errs.List

	syncPos int
	syncCnt int
}

// New tokenizes src in full and returns a Parser ready to produce the root
// expression. errList accumulates both lexical and syntactic diagnostics.
func New(src []byte, errList *errs.List) *Parser {
	sc := scanner.New(src, errList)
	return &Parser{toks: sc.Tokenize(), errs: errList, syncPos: -1}
}

// Parse returns the document's root expression. It never returns nil: a
// completely unparseable document still yields a placeholder node so that
// every later pass (static-env, evaluation, queries) can assume a non-nil
// tree (spec §4.2's error tolerance contract).
func (p *Parser) Parse() ast.Expr {
	root := p.parseExpr()
	if p.curKind() != token.EOF {
		p.errorExpected("end of file")
		p.sync()
	}
	return root
}

// ---- token-stream primitives ----

func (p *Parser) cur() token.Token { return p.toks[p.pos] }

func (p *Parser) curKind() token.Kind { return p.toks[p.pos].Kind }

func (p *Parser) kindAt(i int) token.Kind {
	if i < 0 || i >= len(p.toks) {
		return token.EOF
	}
	return p.toks[i].Kind
}

func (p *Parser) peekKind(n int) token.Kind { return p.kindAt(p.pos + n) }

func (p *Parser) next() {
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
}

// matchingClose returns the index of the RBRACE matching the LBRACE at
// openIdx, or -1 if the token stream runs out first. Token-level depth
// counting is safe here because the scanner never emits LBRACE/RBRACE for
// string-interpolation brackets (those are INTERP_OPEN/INTERP_CLOSE), so a
// formals group can never be confused with braces nested inside a string.
func (p *Parser) matchingClose(openIdx int) int {
	depth := 0
	for i := openIdx; i < len(p.toks); i++ {
		switch p.toks[i].Kind {
		case token.LBRACE:
			depth++
		case token.RBRACE:
			depth--
			if depth == 0 {
				return i
			}
		case token.EOF:
			return -1
		}
	}
	return -1
}

// finish stamps n's token range and source range from startIdx through the
// last token consumed so far (p.pos-1), and is called once a production is
// fully parsed.
func (p *Parser) finish(n ast.Node, startIdx int) {
	endIdx := p.pos - 1
	if endIdx < startIdx {
		endIdx = startIdx
	}
	if endIdx >= len(p.toks) {
		endIdx = len(p.toks) - 1
	}
	if startIdx >= len(p.toks) {
		startIdx = len(p.toks) - 1
	}
	n.SetTokenRange(startIdx, endIdx)
	n.SetRange(p.toks[startIdx].Range.Start, p.toks[endIdx].Range.End)
}

// attach sets parent on every non-nil child (spec §3 invariant 2).
func attach(parent ast.Node, children ...ast.Node) {
	for _, c := range children {
		if c == nil {
			continue
		}
		c.SetParent(parent)
	}
}

// ---- diagnostics & recovery ----

func describeToken(t token.Token) string {
	switch t.Kind {
	case token.EOF:
		return "end of file"
	case token.IDENT, token.PATH:
		return fmt.Sprintf("%q", t.Literal.Str)
	case token.INT:
		return fmt.Sprintf("%d", t.Literal.Int)
	case token.FLOAT:
		return fmt.Sprintf("%g", t.Literal.Float)
	case token.STRING_OPEN:
		return "string"
	default:
		return "'" + t.Kind.String() + "'"
	}
}

func (p *Parser) errorExpected(want string) {
	got := describeToken(p.cur())
	p.errs.Addf(errs.KindParse, p.cur().Range, "syntax error, unexpected %s, expecting %s", got, want)
}

// expect consumes the current token if it has kind k; otherwise it reports
// the mismatch and synchronises (spec §4.2's missing-token rule).
func (p *Parser) expect(k token.Kind) token.Token {
	t := p.cur()
	if t.Kind != k {
		p.errorExpected("'" + k.String() + "'")
		p.sync()
		return t
	}
	p.next()
	return t
}

// sync advances to the next token in the recovery set (spec §4.2:
// "statement/attr-list terminators: ;, }, ], in, end-of-file"). The
// syncPos/syncCnt loop-breaker (grounded on cue/parser's syncExpr) bounds
// how long error recovery can spin without consuming input when two parser
// functions both try to recover from the same position.
func (p *Parser) sync() {
	for {
		if inRecoverySet(p.curKind()) {
			if p.curKind() == token.EOF {
				return
			}
			if p.pos == p.syncPos && p.syncCnt < 10 {
				p.syncCnt++
				return
			}
			if p.syncPos < p.pos {
				p.syncPos = p.pos
				p.syncCnt = 0
				return
			}
			// syncPos >= p.pos with syncCnt exhausted: likely a parser bug,
			// but advancing is safer than looping forever.
		}
		p.next()
	}
}

// startsOperand reports whether the current token can begin a primary
// expression; used to decide whether application (juxtaposition) continues.
func (p *Parser) startsOperand() bool {
	switch p.curKind() {
	case token.IDENT, token.INT, token.FLOAT, token.STRING_OPEN, token.PATH,
		token.LPAREN, token.LBRACE, token.LBRACKET, token.REC:
		return true
	}
	return false
}

// ---- expression entry point ----

// parseExpr dispatches to the keyword-led forms (if/assert/with/let) and
// function literals before falling back to the operator-precedence chain.
// Those forms extend as far right as possible, matching the host grammar;
// callers that need a tighter binding (e.g. an application argument) call
// further down the chain directly instead of through parseExpr.
func (p *Parser) parseExpr() ast.Expr {
	switch p.curKind() {
	case token.IF:
		return p.parseIf()
	case token.ASSERT:
		return p.parseAssert()
	case token.WITH:
		return p.parseWith()
	case token.LET:
		return p.parseLet()
	}
	if p.looksLikeLambda() {
		return p.parseLambda()
	}
	return p.parseImpl()
}

func (p *Parser) parseIf() ast.Expr {
	start := p.pos
	p.next()
	cond := p.parseExpr()
	p.expect(token.THEN)
	thenE := p.parseExpr()
	p.expect(token.ELSE)
	elseE := p.parseExpr()
	n := &ast.If{Cond: cond, Then: thenE, Else: elseE}
	p.finish(n, start)
	attach(n, cond, thenE, elseE)
	return n
}

func (p *Parser) parseAssert() ast.Expr {
	start := p.pos
	p.next()
	cond := p.parseExpr()
	p.expect(token.SEMI)
	body := p.parseExpr()
	n := &ast.Assert{Cond: cond, Body: body}
	p.finish(n, start)
	attach(n, cond, body)
	return n
}

func (p *Parser) parseWith() ast.Expr {
	start := p.pos
	p.next()
	attrs := p.parseExpr()
	p.expect(token.SEMI)
	body := p.parseExpr()
	n := &ast.With{Attrs: attrs, Body: body}
	p.finish(n, start)
	attach(n, attrs, body)
	return n
}

func (p *Parser) parseLet() ast.Expr {
	start := p.pos
	p.next()
	bindStart := p.pos
	set := &ast.AttrSet{Recursive: true, Entries: map[string]*ast.AttrEntry{}}
	for p.curKind() != token.IN && p.curKind() != token.EOF {
		p.parseAttrEntry(set)
	}
	p.finish(set, bindStart)
	p.expect(token.IN)
	body := p.parseExpr()
	n := &ast.Let{Attrs: set, Body: body}
	p.finish(n, start)
	attach(n, set, body)
	return n
}

// ---- function literals ----

// looksLikeLambda decides, by bounded lookahead, whether the expression
// starting at the current token is a function literal rather than a bare
// identifier/attribute-set expression. A `{` can open either a formals list
// or an attribute set; the two are told apart by finding the matching `}`
// (by depth-counted lookahead, never consuming anything) and checking
// whether a ':' (optionally via '@name') follows it.
func (p *Parser) looksLikeLambda() bool {
	switch p.curKind() {
	case token.IDENT:
		if p.peekKind(1) == token.COLON {
			return true
		}
		if p.peekKind(1) == token.AT && p.peekKind(2) == token.LBRACE {
			close := p.matchingClose(p.pos + 2)
			return p.kindAt(close+1) == token.COLON
		}
		return false
	case token.LBRACE:
		close := p.matchingClose(p.pos)
		after := close + 1
		if p.kindAt(after) == token.AT && p.kindAt(after+1) == token.IDENT {
			after += 2
		}
		return p.kindAt(after) == token.COLON
	}
	return false
}

func (p *Parser) parseLambda() ast.Expr {
	start := p.pos
	var nameArg string
	var nameArgPos position.Position
	hasFormals := false
	var formals []ast.Formal
	hasEllipsis := false

	switch {
	case p.curKind() == token.IDENT && p.peekKind(1) == token.AT:
		t := p.cur()
		nameArg, nameArgPos = t.Literal.Str, t.Range.Start
		p.next()
		p.next()
		formals, hasEllipsis = p.parseFormals()
		hasFormals = true
	case p.curKind() == token.IDENT:
		t := p.cur()
		nameArg, nameArgPos = t.Literal.Str, t.Range.Start
		p.next()
	default:
		formals, hasEllipsis = p.parseFormals()
		hasFormals = true
		if p.curKind() == token.AT {
			p.next()
			if p.curKind() == token.IDENT {
				t := p.cur()
				nameArg, nameArgPos = t.Literal.Str, t.Range.Start
				p.next()
			} else {
				p.errorExpected("identifier after '@'")
			}
		}
	}

	p.expect(token.COLON)
	body := p.parseExpr()
	n := &ast.Lambda{
		NameArg: nameArg, NameArgPos: nameArgPos,
		HasFormals: hasFormals, Formals: formals, HasEllipsis: hasEllipsis,
		Body: body,
	}
	p.finish(n, start)
	attach(n, body)
	for i := range n.Formals {
		attach(n, n.Formals[i].Default)
	}
	return n
}

// parseFormals parses a `{ a, b ? default, ... }` parameter list. Duplicate
// formal names produce a diagnostic but are kept in the list (spec §4.2).
func (p *Parser) parseFormals() ([]ast.Formal, bool) {
	p.expect(token.LBRACE)
	var formals []ast.Formal
	seen := map[string]bool{}
	hasEllipsis := false

	for p.curKind() != token.RBRACE && p.curKind() != token.EOF {
		if p.curKind() == token.ELLIPSIS {
			hasEllipsis = true
			p.next()
			if p.curKind() == token.COMMA {
				p.next()
			}
			break
		}
		if p.curKind() != token.IDENT {
			p.errorExpected("formal argument name")
			p.sync()
			if p.curKind() == token.COMMA {
				p.next()
				continue
			}
			break
		}
		t := p.cur()
		name, namePos := t.Literal.Str, t.Range.Start
		p.next()
		var def ast.Expr
		if p.curKind() == token.QUESTION {
			p.next()
			def = p.parseExpr()
		}
		if seen[name] {
			p.errs.Addf(errs.KindParse, position.Range{Start: namePos, End: namePos},
				"duplicate formal function argument %q", name)
		}
		seen[name] = true
		formals = append(formals, ast.Formal{NamePos: namePos, Name: name, Default: def})

		switch p.curKind() {
		case token.COMMA:
			p.next()
		case token.RBRACE, token.ELLIPSIS:
			// loop condition / next iteration handles it
		default:
			p.errorExpected("',' or '}'")
			p.sync()
		}
	}
	p.expect(token.RBRACE)
	return formals, hasEllipsis
}

// ---- operator precedence chain ----
//
// Loosest to tightest: -> (impl), ||, &&, ==/!= (equality), </>/<=/>=
// (comparison), // (update), +/- , */ , ++ (concat), unary -/!, ? (has-attr),
// application, selection/primary. This mirrors §4.2's "function application
// > arithmetic > comparison > logical" ordering; unary `!` is folded into
// the same prefix position as unary `-` rather than its own precedence tier
// (a deliberate simplification — see DESIGN.md).

func (p *Parser) parseImpl() ast.Expr {
	start := p.pos
	left := p.parseOr()
	if p.curKind() == token.IMPL {
		p.next()
		right := p.parseImpl()
		n := &ast.Binary{Op: ast.OpImpl, Left: left, Right: right}
		p.finish(n, start)
		attach(n, left, right)
		return n
	}
	return left
}

func (p *Parser) parseOr() ast.Expr {
	start := p.pos
	left := p.parseAnd()
	for p.curKind() == token.OROR {
		p.next()
		right := p.parseAnd()
		n := &ast.Binary{Op: ast.OpOr, Left: left, Right: right}
		p.finish(n, start)
		attach(n, left, right)
		left = n
	}
	return left
}

func (p *Parser) parseAnd() ast.Expr {
	start := p.pos
	left := p.parseEquality()
	for p.curKind() == token.ANDAND {
		p.next()
		right := p.parseEquality()
		n := &ast.Binary{Op: ast.OpAnd, Left: left, Right: right}
		p.finish(n, start)
		attach(n, left, right)
		left = n
	}
	return left
}

func (p *Parser) parseEquality() ast.Expr {
	start := p.pos
	left := p.parseComparison()
	var op ast.BinOp
	switch p.curKind() {
	case token.EQEQ:
		op = ast.OpEq
	case token.NEQ:
		op = ast.OpNeq
	default:
		return left
	}
	p.next()
	right := p.parseComparison()
	n := &ast.Binary{Op: op, Left: left, Right: right}
	p.finish(n, start)
	attach(n, left, right)
	return n
}

func (p *Parser) parseComparison() ast.Expr {
	start := p.pos
	left := p.parseUpdate()
	var op ast.BinOp
	switch p.curKind() {
	case token.LT:
		op = ast.OpLt
	case token.GT:
		op = ast.OpGt
	case token.LE:
		op = ast.OpLe
	case token.GE:
		op = ast.OpGe
	default:
		return left
	}
	p.next()
	right := p.parseUpdate()
	n := &ast.Binary{Op: op, Left: left, Right: right}
	p.finish(n, start)
	attach(n, left, right)
	return n
}

func (p *Parser) parseUpdate() ast.Expr {
	start := p.pos
	left := p.parseAdd()
	if p.curKind() == token.UPDATE {
		p.next()
		right := p.parseUpdate()
		n := &ast.Binary{Op: ast.OpUpdate, Left: left, Right: right}
		p.finish(n, start)
		attach(n, left, right)
		return n
	}
	return left
}

func (p *Parser) parseAdd() ast.Expr {
	start := p.pos
	left := p.parseMul()
	for {
		var op ast.BinOp
		switch p.curKind() {
		case token.PLUS:
			op = ast.OpAdd
		case token.MINUS:
			op = ast.OpSub
		default:
			return left
		}
		p.next()
		right := p.parseMul()
		n := &ast.Binary{Op: op, Left: left, Right: right}
		p.finish(n, start)
		attach(n, left, right)
		left = n
	}
}

func (p *Parser) parseMul() ast.Expr {
	start := p.pos
	left := p.parseConcat()
	for {
		var op ast.BinOp
		switch p.curKind() {
		case token.STAR:
			op = ast.OpMul
		case token.SLASH:
			op = ast.OpDiv
		default:
			return left
		}
		p.next()
		right := p.parseConcat()
		n := &ast.Binary{Op: op, Left: left, Right: right}
		p.finish(n, start)
		attach(n, left, right)
		left = n
	}
}

func (p *Parser) parseConcat() ast.Expr {
	start := p.pos
	left := p.parseUnary()
	if p.curKind() == token.CONCAT {
		p.next()
		right := p.parseConcat()
		n := &ast.Binary{Op: ast.OpConcatList, Left: left, Right: right}
		p.finish(n, start)
		attach(n, left, right)
		return n
	}
	return left
}

func (p *Parser) parseUnary() ast.Expr {
	start := p.pos
	switch p.curKind() {
	case token.MINUS:
		p.next()
		e := p.parseUnary()
		n := &ast.Neg{Expr: e}
		p.finish(n, start)
		attach(n, e)
		return n
	case token.NOT:
		p.next()
		e := p.parseUnary()
		n := &ast.Not{Expr: e}
		p.finish(n, start)
		attach(n, e)
		return n
	}
	return p.parseHasAttr()
}

func (p *Parser) parseHasAttr() ast.Expr {
	start := p.pos
	left := p.parseApp()
	if p.curKind() != token.QUESTION {
		return left
	}
	p.next()
	path := []ast.PathComponent{p.parsePathComponent()}
	for p.curKind() == token.DOT {
		p.next()
		path = append(path, p.parsePathComponent())
	}
	n := &ast.HasAttr{Base: left, Path: path}
	p.finish(n, start)
	attach(n, left)
	for _, c := range path {
		attach(n, c.Expr)
	}
	return n
}

// parseApp parses left-associative function application by juxtaposition:
// `f a b` is one Call node with two arguments, not nested single-arg calls.
func (p *Parser) parseApp() ast.Expr {
	start := p.pos
	fn := p.parseSelect()
	var args []ast.Expr
	for p.startsOperand() {
		args = append(args, p.parseSelect())
	}
	if len(args) == 0 {
		return fn
	}
	n := &ast.Call{Fun: fn, Args: args}
	p.finish(n, start)
	attach(n, fn)
	for _, a := range args {
		attach(n, a)
	}
	return n
}

// parseSelect parses a primary expression followed by an optional `.`-path
// chain and `or` default.
func (p *Parser) parseSelect() ast.Expr {
	start := p.pos
	base := p.parsePrimary()
	if p.curKind() != token.DOT {
		return base
	}
	var path []ast.PathComponent
	for p.curKind() == token.DOT {
		p.next()
		path = append(path, p.parsePathComponent())
	}
	n := &ast.Select{Base: base, Path: path}
	if p.curKind() == token.OR {
		p.next()
		n.Default = p.parseApp()
	}
	p.finish(n, start)
	attach(n, base)
	for _, c := range path {
		attach(n, c.Expr)
	}
	attach(n, n.Default)
	return n
}

// parsePathComponent parses one `.symbol` or `.${expr}` step. When the
// token after a dot cannot start a component (e.g. the attribute path ends
// in a bare dot, `a.`), it synthesises the empty trailing component named
// by spec §4.2 rather than consuming or erroring past the offending token.
func (p *Parser) parsePathComponent() ast.PathComponent {
	switch p.curKind() {
	case token.IDENT:
		t := p.cur()
		p.next()
		return ast.PathComponent{Pos: t.Range.Start, Symbol: t.Literal.Str}
	case token.STRING_OPEN:
		pos := p.cur().Range.Start
		e := p.parseStringLit()
		return ast.PathComponent{Pos: pos, Expr: e}
	case token.INTERP_OPEN:
		pos := p.cur().Range.Start
		p.next()
		e := p.parseExpr()
		p.expect(token.INTERP_CLOSE)
		return ast.PathComponent{Pos: pos, Expr: e}
	default:
		p.errorExpected("attribute name after '.'")
		return ast.PathComponent{Pos: p.cur().Range.Start}
	}
}

// ---- primaries ----

func (p *Parser) parsePrimary() ast.Expr {
	start := p.pos
	switch p.curKind() {
	case token.INT:
		t := p.cur()
		p.next()
		n := &ast.IntLit{Value: t.Literal.Int}
		p.finish(n, start)
		return n
	case token.FLOAT:
		t := p.cur()
		p.next()
		n := &ast.FloatLit{Value: t.Literal.Float}
		p.finish(n, start)
		return n
	case token.PATH:
		t := p.cur()
		p.next()
		n := &ast.PathLit{Value: t.Literal.Str}
		p.finish(n, start)
		return n
	case token.STRING_OPEN:
		return p.parseStringLit()
	case token.IDENT:
		t := p.cur()
		p.next()
		if t.Literal.Str == "__curPos" {
			n := &ast.PosRef{}
			p.finish(n, start)
			return n
		}
		n := &ast.Var{Name: t.Literal.Str}
		p.finish(n, start)
		return n
	case token.LPAREN:
		p.next()
		e := p.parseExpr()
		p.expect(token.RPAREN)
		return e
	case token.LBRACKET:
		return p.parseList()
	case token.LBRACE:
		return p.parseAttrSet(false, start)
	case token.REC:
		p.next()
		return p.parseAttrSet(true, start)
	default:
		p.errorExpected("expression")
		t := p.cur()
		n := &ast.Var{Name: "null"}
		n.SetRange(t.Range.Start, t.Range.Start)
		n.SetTokenRange(p.pos, p.pos)
		p.sync()
		return n
	}
}

func (p *Parser) parseList() ast.Expr {
	start := p.pos
	p.expect(token.LBRACKET)
	var elems []ast.Expr
	// List elements bind tighter than function application juxtaposition:
	// `[ f x ]` is a two-element list, not a one-element list holding `f x`
	// (an applied call needs explicit parens, `[ (f x) ]`). So elements are
	// parsed at the select level, skipping parseApp/parseHasAttr.
	for p.curKind() != token.RBRACKET && p.curKind() != token.EOF {
		elems = append(elems, p.parseSelect())
	}
	p.expect(token.RBRACKET)
	n := &ast.List{Elems: elems}
	p.finish(n, start)
	for _, e := range elems {
		attach(n, e)
	}
	return n
}

func (p *Parser) parseAttrSet(recursive bool, start int) *ast.AttrSet {
	p.expect(token.LBRACE)
	set := &ast.AttrSet{Recursive: recursive, Entries: map[string]*ast.AttrEntry{}}
	for p.curKind() != token.RBRACE && p.curKind() != token.EOF {
		p.parseAttrEntry(set)
	}
	p.expect(token.RBRACE)
	p.finish(set, start)
	return set
}

// parseStringLit parses a (possibly interpolated) string literal, lowering
// it directly to a ConcatStrings when it contains any `${ }` fragment, or a
// plain StringLit when it does not (spec §3's two distinct node kinds).
func (p *Parser) parseStringLit() ast.Expr {
	start := p.pos
	p.next() // STRING_OPEN
	var parts []ast.StringPart
	hasIndent := false

loop:
	for {
		switch p.curKind() {
		case token.STRING_PART:
			t := p.cur()
			chunkIdx := p.pos
			p.next()
			lit := &ast.StringLit{Value: t.Literal.Str}
			lit.SetRange(t.Range.Start, t.Range.End)
			lit.SetTokenRange(chunkIdx, chunkIdx)
			parts = append(parts, ast.StringPart{Pos: t.Range.Start, Expr: lit})
		case token.INTERP_OPEN:
			pos := p.cur().Range.Start
			p.next()
			e := p.parseExpr()
			p.expect(token.INTERP_CLOSE)
			parts = append(parts, ast.StringPart{Pos: pos, Expr: e})
		case token.STRING_CLOSE:
			hasIndent = p.cur().Literal.HasIndent
			p.next()
			break loop
		default:
			break loop
		}
	}

	if len(parts) == 0 {
		n := &ast.StringLit{HasIndent: hasIndent}
		p.finish(n, start)
		return n
	}
	if len(parts) == 1 {
		if lit, ok := parts[0].Expr.(*ast.StringLit); ok {
			lit.HasIndent = hasIndent
			p.finish(lit, start)
			return lit
		}
	}
	n := &ast.ConcatStrings{Parts: parts, HasIndent: hasIndent}
	p.finish(n, start)
	for _, part := range parts {
		attach(n, part.Expr)
	}
	return n
}

// ---- attribute-set bindings ----

// parseAttrEntry parses one binding inside an attribute set or a let's
// binding list: `name = expr;`, `${expr} = expr;`, or `inherit [(expr)]
// name*;`.
func (p *Parser) parseAttrEntry(set *ast.AttrSet) {
	switch p.curKind() {
	case token.INHERIT:
		p.parseInherit(set)
	case token.INTERP_OPEN:
		p.parseDynAttr(set)
	case token.IDENT:
		p.parseNamedAttr(set)
	default:
		p.errorExpected("attribute name, 'inherit', or '${'")
		p.sync()
		if p.curKind() == token.SEMI {
			p.next()
		}
	}
}

func (p *Parser) parseInherit(set *ast.AttrSet) {
	p.next() // inherit
	var fromExpr ast.Expr
	if p.curKind() == token.LPAREN {
		p.next()
		fromExpr = p.parseExpr()
		p.expect(token.RPAREN)
	}
	for p.curKind() == token.IDENT {
		t := p.cur()
		name, namePos, idx := t.Literal.Str, t.Range.Start, p.pos
		p.next()

		var entryExpr ast.Expr
		if fromExpr != nil {
			sel := &ast.Select{Base: fromExpr, Path: []ast.PathComponent{{Pos: namePos, Symbol: name}}}
			sel.SetRange(namePos, t.Range.End)
			sel.SetTokenRange(idx, idx)
			entryExpr = sel
		} else {
			v := &ast.Var{Name: name}
			v.SetRange(namePos, t.Range.End)
			v.SetTokenRange(idx, idx)
			entryExpr = v
		}
		p.addAttrEntry(set, name, namePos, entryExpr, true, namePos)
	}
	if fromExpr != nil {
		fromExpr.SetParent(set)
	}
	p.expect(token.SEMI)
}

func (p *Parser) parseDynAttr(set *ast.AttrSet) {
	p.next() // ${
	nameExpr := p.parseExpr()
	p.expect(token.INTERP_CLOSE)
	p.expect(token.EQ)
	val := p.parseExpr()
	set.Dynamic = append(set.Dynamic, ast.DynAttr{NameExpr: nameExpr, ValueExpr: val})
	attach(set, nameExpr, val)
	p.expect(token.SEMI)
}

func (p *Parser) parseNamedAttr(set *ast.AttrSet) {
	t := p.cur()
	name, namePos := t.Literal.Str, t.Range.Start
	p.next()

	if p.curKind() != token.EQ {
		// spec §4.2: attribute definition with no value gets a placeholder
		// null-literal value.
		p.errorExpected("'='")
		null := &ast.Var{Name: "null"}
		null.SetRange(p.cur().Range.Start, p.cur().Range.Start)
		null.SetTokenRange(p.pos, p.pos)
		p.addAttrEntry(set, name, namePos, null, false, namePos)
		p.sync()
		if p.curKind() == token.SEMI {
			p.next()
		}
		return
	}
	p.next() // =
	val := p.parseExpr()
	p.addAttrEntry(set, name, namePos, val, false, namePos)
	p.expect(token.SEMI)
}

// addAttrEntry records a binding, applying first-wins semantics for
// duplicate names (spec §4.2: "only the first definition wins"). The
// rejected expression still gets its parent pointer set even though it is
// unreachable from Names/Entries, preserving invariant 2 for any node the
// parser already built for it.
func (p *Parser) addAttrEntry(set *ast.AttrSet, name string, namePos position.Position, expr ast.Expr, inherited bool, defPos position.Position) {
	if _, exists := set.Entries[name]; exists {
		p.errs.Addf(errs.KindParse, position.Range{Start: namePos, End: namePos},
			"duplicate attribute definition for %q", name)
		expr.SetParent(set)
		return
	}
	set.Names = append(set.Names, name)
	set.Entries[name] = &ast.AttrEntry{NamePos: namePos, Name: name, Expr: expr, Inherited: inherited, DefPos: defPos}
	expr.SetParent(set)
}
