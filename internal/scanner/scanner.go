// Package scanner implements the tokenizer for the host configuration
// language (spec §4.1). It is grounded on cue/scanner's character-at-a-time
// structure, adapted for this language's string-interpolation and
// path-literal syntax, and for the contract that tokenizing never stops
// early: unknown bytes become ILLEGAL tokens, not scan errors.
package scanner

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/width"

	"nls.dev/nls/internal/errs"
	"nls.dev/nls/internal/position"
	"nls.dev/nls/internal/token"
)

// frameKind tags one entry of the scanner's single nesting stack: a plain
// `{ }` brace pair, the `{ }` that closes a `${ ... }` interpolation and
// must resume string scanning, or an open string literal itself. Merging
// all three into one stack (rather than tracking braces and strings
// separately) is what lets Next decide, with no extra bookkeeping, whether
// the next token comes from ordinary code or from string content: that is
// exactly a function of what the top-of-stack frame is.
type frameKind int

const (
	frameBrace frameKind = iota
	frameInterp
	frameString
)

type frame struct {
	kind  frameKind
	quote rune // '"' or 'i' (indented), only meaningful for frameString
}

// Scanner tokenizes a whole document's source into a flat token vector
// (Tokenize, or Next one token at a time up to EOF). A Scanner does not
// rewind; scanning the source again takes a new Scanner from New.
type Scanner struct {
	src  []byte
	errs *errs.List

	offset   int // current byte offset
	rdOffset int // offset of next byte to read
	ch       rune
	line     int // zero-based
	lineOff  int // byte offset where the current line began

	stack []frame
}

// New creates a Scanner over src. errs accumulates lexical diagnostics;
// ILLEGAL tokens are still emitted so the token stream never stops short.
func New(src []byte, errList *errs.List) *Scanner {
	s := &Scanner{src: src, errs: errList, line: 0}
	s.next()
	return s
}

func (s *Scanner) next() {
	if s.rdOffset < len(s.src) {
		s.offset = s.rdOffset
		r, w := rune(s.src[s.rdOffset]), 1
		if r >= utf8.RuneSelf {
			r, w = utf8.DecodeRune(s.src[s.rdOffset:])
		}
		s.rdOffset += w
		if s.ch == '\n' {
			s.line++
			s.lineOff = s.offset
		}
		s.ch = r
	} else {
		s.offset = len(s.src)
		if s.ch == '\n' {
			s.line++
			s.lineOff = s.offset
		}
		s.ch = -1
	}
}

func (s *Scanner) pos(off int) position.Position {
	return position.Position{Line: uint32(s.line), Column: uint32(off - s.lineOff)}
}

func (s *Scanner) curPos() position.Position { return s.pos(s.offset) }

func (s *Scanner) errf(r position.Range, format string, args ...any) {
	s.errs.Addf(errs.KindParse, r, format, args...)
}

func isLetter(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isDigit(r rune) bool {
	return unicode.IsDigit(r)
}

func isIdentCont(r rune) bool {
	return isLetter(r) || isDigit(r) || r == '-' || r == '\''
}

// Tokenize scans the entire source and returns the token vector, always
// terminated by a single EOF token (spec §4.1 "tokenising a string always
// terminates").
func (s *Scanner) Tokenize() []token.Token {
	var toks []token.Token
	for {
		t := s.Next()
		toks = append(toks, t)
		if t.Kind == token.EOF {
			return toks
		}
	}
}

// Next returns the next token, choosing between ordinary-code scanning and
// string-content scanning based on the top of the nesting stack (spec
// §4.1's "may contain interpolation brackets"): a frameString on top means
// we are directly inside that string's literal content; a frameBrace or
// frameInterp on top means we are inside ordinary code (either top level,
// inside a plain `{ }`, or inside a `${ ... }` interpolation's expression).
func (s *Scanner) Next() token.Token {
	if len(s.stack) > 0 && s.stack[len(s.stack)-1].kind == frameString {
		return s.scanStringPart()
	}
	return s.scan()
}

func (s *Scanner) scan() token.Token {
	s.skipSpaceAndComments()

	start := s.offset
	startPos := s.curPos()

	if s.ch == -1 {
		return s.tok(token.EOF, start, start, token.Literal{})
	}

	ch := s.ch

	switch {
	case isLetter(ch):
		return s.scanIdentOrKeyword(start, startPos)
	case isDigit(ch):
		return s.scanNumber(start, startPos)
	}

	switch ch {
	case '$':
		if s.peekRune() == '{' {
			s.next()
			s.next()
			s.stack = append(s.stack, frame{kind: frameInterp})
			return s.finishSymbol(token.INTERP_OPEN, start, startPos)
		}
	case '"':
		return s.scanStringOpen(start, startPos, '"')
	case '\'':
		if s.peekRune() == '\'' {
			return s.scanStringOpen(start, startPos, 'i')
		}
	case '/':
		if s.peekRune() == '/' {
			s.next()
			s.next()
			return s.finishSymbol(token.UPDATE, start, startPos)
		}
		if r := s.maybeScanPath(start, startPos); r != nil {
			return *r
		}
		s.next()
		return s.finishSymbol(token.SLASH, start, startPos)
	case '.':
		if s.peekRune() == '.' {
			s.next()
			s.next()
			if s.ch == '.' {
				s.next()
				return s.finishSymbol(token.ELLIPSIS, start, startPos)
			}
			s.errf(position.Range{Start: startPos, End: s.curPos()}, "syntax error, unexpected '..'")
			return s.tok(token.ILLEGAL, start, s.offset, token.Literal{})
		}
		if r := s.maybeScanPath(start, startPos); r != nil {
			return *r
		}
		s.next()
		return s.finishSymbol(token.DOT, start, startPos)
	case '~':
		if r := s.maybeScanPath(start, startPos); r != nil {
			return *r
		}
	case '<':
		if r := s.maybeScanSearchPath(start, startPos); r != nil {
			return *r
		}
		s.next()
		if s.ch == '=' {
			s.next()
			return s.finishSymbol(token.LE, start, startPos)
		}
		return s.finishSymbol(token.LT, start, startPos)
	}

	switch ch {
	case '(':
		s.next()
		return s.finishSymbol(token.LPAREN, start, startPos)
	case ')':
		s.next()
		return s.finishSymbol(token.RPAREN, start, startPos)
	case '{':
		s.next()
		s.stack = append(s.stack, frame{kind: frameBrace})
		return s.finishSymbol(token.LBRACE, start, startPos)
	case '}':
		return s.closeBrace(start, startPos)
	case '[':
		s.next()
		return s.finishSymbol(token.LBRACKET, start, startPos)
	case ']':
		s.next()
		return s.finishSymbol(token.RBRACKET, start, startPos)
	case ';':
		s.next()
		return s.finishSymbol(token.SEMI, start, startPos)
	case ',':
		s.next()
		return s.finishSymbol(token.COMMA, start, startPos)
	case ':':
		s.next()
		return s.finishSymbol(token.COLON, start, startPos)
	case '@':
		s.next()
		return s.finishSymbol(token.AT, start, startPos)
	case '?':
		s.next()
		return s.finishSymbol(token.QUESTION, start, startPos)
	case '=':
		s.next()
		if s.ch == '=' {
			s.next()
			return s.finishSymbol(token.EQEQ, start, startPos)
		}
		return s.finishSymbol(token.EQ, start, startPos)
	case '!':
		s.next()
		if s.ch == '=' {
			s.next()
			return s.finishSymbol(token.NEQ, start, startPos)
		}
		return s.finishSymbol(token.NOT, start, startPos)
	case '>':
		s.next()
		if s.ch == '=' {
			s.next()
			return s.finishSymbol(token.GE, start, startPos)
		}
		return s.finishSymbol(token.GT, start, startPos)
	case '&':
		s.next()
		if s.ch == '&' {
			s.next()
			return s.finishSymbol(token.ANDAND, start, startPos)
		}
	case '|':
		s.next()
		if s.ch == '|' {
			s.next()
			return s.finishSymbol(token.OROR, start, startPos)
		}
	case '-':
		s.next()
		if s.ch == '>' {
			s.next()
			return s.finishSymbol(token.IMPL, start, startPos)
		}
		return s.finishSymbol(token.MINUS, start, startPos)
	case '+':
		s.next()
		if s.ch == '+' {
			s.next()
			return s.finishSymbol(token.CONCAT, start, startPos)
		}
		return s.finishSymbol(token.PLUS, start, startPos)
	case '*':
		s.next()
		return s.finishSymbol(token.STAR, start, startPos)
	}

	// Unknown byte: emit ILLEGAL but keep making progress (spec §4.1).
	offendingEnd := s.offset
	s.next()
	r := position.Range{Start: startPos, End: s.curPos()}
	s.errf(r, "illegal character %q", ch)
	return token.Token{Kind: token.ILLEGAL, Range: r, Literal: token.Literal{Str: string(s.src[start:offendingEnd])}}
}

func (s *Scanner) tok(k token.Kind, start, end int, lit token.Literal) token.Token {
	return token.Token{Kind: k, Literal: lit, Range: position.Range{Start: s.pos(start), End: s.pos(end)}}
}

func (s *Scanner) finishSymbol(k token.Kind, start int, startPos position.Position) token.Token {
	return token.Token{Kind: k, Range: position.Range{Start: startPos, End: s.curPos()}}
}

func (s *Scanner) peekRune() rune {
	if s.rdOffset >= len(s.src) {
		return -1
	}
	r := rune(s.src[s.rdOffset])
	if r >= utf8.RuneSelf {
		r, _ = utf8.DecodeRune(s.src[s.rdOffset:])
	}
	return r
}

func (s *Scanner) skipSpaceAndComments() {
	for {
		switch {
		case s.ch == ' ' || s.ch == '\t' || s.ch == '\n' || s.ch == '\r':
			s.next()
		case s.ch == '#':
			for s.ch != '\n' && s.ch != -1 {
				s.next()
			}
		case s.ch == '/' && s.peekRune() == '*':
			s.next()
			s.next()
			for !(s.ch == '*' && s.peekRune() == '/') && s.ch != -1 {
				s.next()
			}
			if s.ch != -1 {
				s.next()
				s.next()
			}
		default:
			return
		}
	}
}

func (s *Scanner) scanIdentOrKeyword(start int, startPos position.Position) token.Token {
	for isIdentCont(s.ch) {
		s.next()
	}
	lit := string(s.src[start:s.offset])
	r := position.Range{Start: startPos, End: s.curPos()}
	if k, ok := token.Lookup(lit); ok {
		return token.Token{Kind: k, Range: r}
	}
	return token.Token{Kind: token.IDENT, Literal: token.Literal{Kind: token.LitString, Str: foldWidth(lit)}, Range: r}
}

// foldWidth normalizes any fullwidth punctuation that may have been pasted
// into an identifier (e.g. from a CJK IME) to its canonical-width form
// before it is used as a completion/hover label, mirroring the teacher's
// cue/literal use of x/text for literal decoding.
func foldWidth(s string) string {
	if !strings.ContainsFunc(s, func(r rune) bool { return r >= 0xFF00 }) {
		return s
	}
	return width.Narrow.String(s)
}

func (s *Scanner) scanNumber(start int, startPos position.Position) token.Token {
	isFloat := false
	for isDigit(s.ch) {
		s.next()
	}
	if s.ch == '.' && isDigit(s.peekRune()) {
		isFloat = true
		s.next()
		for isDigit(s.ch) {
			s.next()
		}
	}
	if s.ch == 'e' || s.ch == 'E' {
		isFloat = true
		s.next()
		if s.ch == '+' || s.ch == '-' {
			s.next()
		}
		for isDigit(s.ch) {
			s.next()
		}
	}
	lit := string(s.src[start:s.offset])
	r := position.Range{Start: startPos, End: s.curPos()}
	if isFloat {
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			s.errf(r, "malformed float literal %q", lit)
		}
		return token.Token{Kind: token.FLOAT, Literal: token.Literal{Kind: token.LitFloat, Float: f}, Range: r}
	}
	n, err := strconv.ParseInt(lit, 10, 64)
	if err != nil {
		s.errf(r, "malformed integer literal %q", lit)
	}
	return token.Token{Kind: token.INT, Literal: token.Literal{Kind: token.LitInt, Int: n}, Range: r}
}

// maybeScanPath recognises a path literal starting at the current
// character: `/abs`, `./rel`, `../rel`, `~/home`. It returns nil (and
// leaves scanner state untouched) if the character is not actually the
// start of a path in context.
func (s *Scanner) maybeScanPath(start int, startPos position.Position) *token.Token {
	save := *s
	ok := false
	switch s.ch {
	case '/':
		if isPathCont(s.peekRune()) {
			ok = true
		}
	case '.':
		// handled by caller after ruling out '..'
		if s.peekRune() == '/' {
			ok = true
		}
	case '~':
		if s.peekRune() == '/' {
			ok = true
		}
	}
	if !ok {
		return nil
	}
	for isPathCont(s.ch) || s.ch == '.' {
		s.next()
	}
	lit := string(s.src[start:s.offset])
	if !strings.Contains(lit, "/") {
		*s = save
		return nil
	}
	t := s.tok(token.PATH, start, s.offset, token.Literal{Kind: token.LitString, Str: lit})
	t.Range.End = s.curPos()
	return &t
}

// maybeScanSearchPath recognises `<nixpkgs>`-style search-path literals.
func (s *Scanner) maybeScanSearchPath(start int, startPos position.Position) *token.Token {
	save := *s
	s.next() // consume '<'
	contentStart := s.offset
	for isPathCont(s.ch) {
		s.next()
	}
	if s.ch != '>' || s.offset == contentStart {
		*s = save
		return nil
	}
	content := string(s.src[contentStart:s.offset])
	s.next() // consume '>'
	t := s.tok(token.PATH, start, s.offset, token.Literal{Kind: token.LitString, Str: "<" + content + ">"})
	t.Range.End = s.curPos()
	return &t
}

func isPathCont(r rune) bool {
	return isLetter(r) || isDigit(r) || r == '/' || r == '_' || r == '-' || r == '.'
}

// scanStringOpen consumes the opening quote(s) and returns STRING_OPEN;
// subsequent calls to Next return STRING_PART, INTERP_OPEN, or STRING_CLOSE
// until the matching close is found.
func (s *Scanner) scanStringOpen(start int, startPos position.Position, quote rune) token.Token {
	if quote == 'i' {
		s.next()
		s.next() // consume ''
	} else {
		s.next() // consume "
	}
	s.stack = append(s.stack, frame{kind: frameString, quote: quote})
	return s.finishSymbol(token.STRING_OPEN, start, startPos)
}

// scanStringPart scans up to the next interpolation or closing quote for
// the innermost open string (spec §4.1 "may contain interpolation
// brackets").
func (s *Scanner) scanStringPart() token.Token {
	quote := s.stack[len(s.stack)-1].quote
	startPos := s.curPos()
	var b strings.Builder
	for {
		if s.ch == -1 {
			s.errf(position.Range{Start: startPos, End: s.curPos()}, "unterminated string literal")
			s.stack = s.stack[:len(s.stack)-1]
			return token.Token{Kind: token.STRING_CLOSE, Range: position.Range{Start: startPos, End: s.curPos()}}
		}
		if quote == '"' && s.ch == '"' {
			r := position.Range{Start: startPos, End: s.curPos()}
			if b.Len() > 0 {
				return token.Token{Kind: token.STRING_PART, Literal: token.Literal{Kind: token.LitString, Str: b.String()}, Range: r}
			}
			s.next()
			s.stack = s.stack[:len(s.stack)-1]
			return token.Token{Kind: token.STRING_CLOSE, Range: position.Range{Start: startPos, End: s.curPos()}}
		}
		if quote == 'i' && s.ch == '\'' && s.peekRune() == '\'' {
			r := position.Range{Start: startPos, End: s.curPos()}
			if b.Len() > 0 {
				return token.Token{Kind: token.STRING_PART, Literal: token.Literal{Kind: token.LitString, Str: b.String()}, Range: r}
			}
			s.next()
			s.next()
			s.stack = s.stack[:len(s.stack)-1]
			return token.Token{Kind: token.STRING_CLOSE, Range: position.Range{Start: startPos, End: s.curPos()}, Literal: token.Literal{HasIndent: true}}
		}
		if s.ch == '$' && s.peekRune() == '{' {
			r := position.Range{Start: startPos, End: s.curPos()}
			if b.Len() > 0 {
				return token.Token{Kind: token.STRING_PART, Literal: token.Literal{Kind: token.LitString, Str: b.String()}, Range: r}
			}
			s.next()
			s.next()
			s.stack = append(s.stack, frame{kind: frameInterp})
			return token.Token{Kind: token.INTERP_OPEN, Range: position.Range{Start: r.Start, End: s.curPos()}}
		}
		if s.ch == '\\' {
			s.next()
			b.WriteRune(unescape(s.ch))
			s.next()
			continue
		}
		b.WriteRune(s.ch)
		s.next()
	}
}

func unescape(r rune) rune {
	switch r {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	default:
		return r
	}
}

// closeBrace resolves whether a `}` closes an ordinary brace or resumes
// string scanning after a `${ ... }` interpolation (spec §4.1).
func (s *Scanner) closeBrace(start int, startPos position.Position) token.Token {
	if len(s.stack) == 0 {
		s.next()
		return s.finishSymbol(token.RBRACE, start, startPos)
	}
	top := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	s.next()
	if top.kind == frameInterp {
		return s.finishSymbol(token.INTERP_CLOSE, start, startPos)
	}
	return s.finishSymbol(token.RBRACE, start, startPos)
}

