// Package ast declares the tagged-variant node types produced by the parser
// (spec §3 "AST node") together with the node metadata side table (spec §3
// "Node metadata").
//
// Unlike the teacher's cue/ast package, which models each production as its
// own exported struct implementing a shared Node interface, node identity
// here additionally doubles as the key into Meta — there is no separate
// arena/handle indirection (design note 9 motivates that indirection for a
// language without a tracing GC; Go's GC makes pointer-keyed metadata safe
// even in the presence of the upward Parent links described below).
package ast

import "nls.dev/nls/internal/position"

// Node is implemented by every AST node variant. Beyond the basic
// position/range accessors, Node exposes the whole of spec §3's "Node
// metadata" side table as promoted methods over the embedded base.
type Node interface {
	Pos() position.Position
	End() position.Position
	Range() position.Range
	TokenRange() (start, end int)
	SetRange(start, end position.Position)
	SetTokenRange(start, end int)
	GetParent() Node
	SetParent(Node)
	GetStaticEnv() any
	SetStaticEnv(any)
	GetDynamicEnv() any
	SetDynamicEnv(any)
	GetThunkValue() any
	SetThunkValue(any)
	node()
}

type base struct {
	Start position.Position
	Stop  position.Position

	// TokStart/TokEnd are inclusive token-vector indices (spec §3 invariant
	// 1). Set by the parser alongside Start/Stop.
	TokStart, TokEnd int

	// Parent is the immediate enclosing node, or nil for the root (spec §3
	// invariant 2). Set by the parser as it closes out each production.
	Parent Node

	// StaticEnv, DynamicEnv, and ThunkValue are the remaining three fields
	// of spec §3's "Node metadata" side table. They are typed as `any` here
	// (rather than *staticenv.Scope / *runtime.Env / *runtime.Value) so that
	// this package does not have to import the packages that own those
	// passes; staticenv, runtime, and query provide typed accessors over
	// these fields instead of redeclaring a separate map keyed by node
	// identity. This folds spec's conceptual "side table" into the node
	// itself, which is the idiomatic Go shape for per-node caches — a
	// pointer-keyed map would just reintroduce what the embedded field
	// already gives for free.
	StaticEnv  any
	DynamicEnv any
	ThunkValue any
}

func (b *base) Pos() position.Position { return b.Start }
func (b *base) End() position.Position { return b.Stop }
func (b *base) Range() position.Range  { return position.Range{Start: b.Start, End: b.Stop} }
func (*base) node()                    {}

// SetRange stamps a node's source position range. The parser builds each concrete node
// with a zero-value base embedded, then calls SetRange once its extent is
// known; the method (unlike the unexported base type itself) is promoted and
// so is callable from the parser package.
func (b *base) SetRange(start, end position.Position) {
	b.Start = start
	b.Stop = end
}

// SetTokenRange stamps the inclusive token-index range (spec §4.1: "the
// parser records its token range").
func (b *base) SetTokenRange(start, end int) {
	b.TokStart = start
	b.TokEnd = end
}

// SetParent records the immediate enclosing node.
func (b *base) SetParent(p Node) { b.Parent = p }

// GetParent returns the immediate enclosing node, or nil for the root.
func (b *base) GetParent() Node { return b.Parent }

// TokenRange returns the inclusive token-vector bounds recorded for this
// node.
func (b *base) TokenRange() (start, end int) { return b.TokStart, b.TokEnd }

func (b *base) GetStaticEnv() any     { return b.StaticEnv }
func (b *base) SetStaticEnv(e any)    { b.StaticEnv = e }
func (b *base) GetDynamicEnv() any    { return b.DynamicEnv }
func (b *base) SetDynamicEnv(e any)   { b.DynamicEnv = e }
func (b *base) GetThunkValue() any    { return b.ThunkValue }
func (b *base) SetThunkValue(v any)   { b.ThunkValue = v }

// Expr is implemented by every expression node. The host language has no
// statement forms distinct from expressions (spec §3's variant list is a
// single closed Expr hierarchy).
type Expr interface {
	Node
	exprNode()
}

// ---- literals ----

type IntLit struct {
	base
	Value int64
}

type FloatLit struct {
	base
	Value float64
}

// StringLit is a string literal with no interpolation. An interpolated
// string is never represented by StringLit; the parser lowers it directly
// to a ConcatStrings instead (spec §3 "concat-strings").
type StringLit struct {
	base
	Value     string
	HasIndent bool // produced from indented-string syntax
}

type PathLit struct {
	base
	Value string
}

// ---- names ----

type Var struct {
	base
	Name string
}

// ---- attribute sets ----

// AttrEntry is one `name = expr;` or `inherit name;` binding.
type AttrEntry struct {
	NamePos     position.Position
	Name        string
	Expr        Expr // for `inherit`, the looked-up Var placeholder
	Inherited   bool
	DefPos      position.Position // position of the defining occurrence
}

// DynAttr is a `${nameExpr} = valueExpr;` binding whose name is itself
// computed. These are never resolvable statically (spec §3).
type DynAttr struct {
	NameExpr  Expr
	ValueExpr Expr
}

type AttrSet struct {
	base
	Recursive bool
	// Names preserves declaration order; Entries is keyed by name for O(1)
	// lookup. Both are populated by the parser.
	Names   []string
	Entries map[string]*AttrEntry
	Dynamic []DynAttr
}

// ---- lists ----

type List struct {
	base
	Elems []Expr
}

// ---- let ----

type Let struct {
	base
	Attrs *AttrSet
	Body  Expr
}

// ---- lambda ----

// Formal is a declared parameter of an attrset-destructuring lambda,
// optionally with a default (spec GLOSSARY "Formal").
type Formal struct {
	NamePos position.Position
	Name    string
	Default Expr // nil if no default
}

type Lambda struct {
	base
	// NameArg is the simple `x: body` parameter name; empty if the lambda
	// takes only a formals set.
	NameArg     string
	NameArgPos  position.Position
	HasFormals  bool
	Formals     []Formal
	HasEllipsis bool // `{ ... }:` accepts unlisted actual attrs
	Body        Expr
}

// ---- application ----

type Call struct {
	base
	Fun  Expr
	Args []Expr
}

// ---- selection ----

// PathComponent is one `.symbol` or `.${expr}` step of a selection.
type PathComponent struct {
	Pos    position.Position
	Symbol string // set when the component is a literal identifier
	Expr   Expr   // set when the component is computed, e.g. a.${x}
}

type Select struct {
	base
	Base    Expr
	Path    []PathComponent
	Default Expr // from `or` (optional)
}

type HasAttr struct {
	base
	Base Expr
	Path []PathComponent
}

// ---- with ----

type With struct {
	base
	Attrs Expr
	Body  Expr
}

// ---- control ----

type If struct {
	base
	Cond, Then, Else Expr
}

type Assert struct {
	base
	Cond Expr
	Body Expr
}

type Not struct {
	base
	Expr Expr
}

// Neg is unary arithmetic negation (`-e`). The GLOSSARY's AST node list
// names "unary-not" but not a matching unary-minus variant; §4.2 still
// requires the parser to mirror the host grammar's arithmetic precedence
// tier, which has no arithmetic without negation, so Neg is carried as a
// sibling of Not (see DESIGN.md).
type Neg struct {
	base
	Expr Expr
}

// ---- interpolated strings ----

// StringPart is one fragment of an interpolated string: either a literal
// text chunk (Expr is a *StringLit covering just that chunk) or a `${ }`
// interpolated expression (spec §3 "concat-strings (list of {pos, expr})").
type StringPart struct {
	Pos  position.Position
	Expr Expr
}

// ConcatStrings is the node produced for any string literal that contains
// at least one interpolation; a string with none is a plain StringLit
// instead.
type ConcatStrings struct {
	base
	Parts     []StringPart
	HasIndent bool
}

// ---- binary operators ----

type BinOp int

const (
	OpEq BinOp = iota
	OpNeq
	OpAnd
	OpOr
	OpImpl
	OpUpdate     // //
	OpConcatList // ++
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpLt
	OpGt
	OpLe
	OpGe
)

type Binary struct {
	base
	Op          BinOp
	Left, Right Expr
}

// PosRef is the `__curPos`-style position-reference primitive (spec §3
// "position-reference").
type PosRef struct {
	base
}

func (*IntLit) exprNode()        {}
func (*FloatLit) exprNode()      {}
func (*StringLit) exprNode()     {}
func (*PathLit) exprNode()       {}
func (*Var) exprNode()           {}
func (*AttrSet) exprNode()       {}
func (*List) exprNode()          {}
func (*Let) exprNode()           {}
func (*Lambda) exprNode()        {}
func (*Call) exprNode()          {}
func (*Select) exprNode()        {}
func (*HasAttr) exprNode()       {}
func (*With) exprNode()          {}
func (*If) exprNode()            {}
func (*Assert) exprNode()        {}
func (*Not) exprNode()           {}
func (*Neg) exprNode()           {}
func (*ConcatStrings) exprNode() {}
func (*Binary) exprNode()        {}
func (*PosRef) exprNode()        {}

