// Package cursor locates the chain of AST nodes enclosing a target
// position (spec §4.4 "Cursor-path locator").
//
// spec §4.4 describes the locator as driven by "the position callback"
// fired during parsing. This package instead walks the already-built tree
// with ast.Walk's post-order callback after parsing completes — see
// DESIGN.md's "Cursor-path locator" entry for why the two are observably
// identical (post-order completion of a node is exactly when a
// parser-internal callback would have fired) and decoupling keeps the
// parser free of a second, consumer-specific side channel.
package cursor

import (
	"nls.dev/nls/internal/ast"
	"nls.dev/nls/internal/position"
)

// PathComponentRef identifies which `.`-step of a Select or HasAttr the
// cursor landed on, per spec §4.2's "{node-kind = attr-path, index-into-
// path}" reporting.
type PathComponentRef struct {
	Node  ast.Node // the *ast.Select or *ast.HasAttr owning the path
	Index int      // index into its Path slice
}

// Result is the outcome of locating a position in a tree (spec §4.4).
type Result struct {
	// Path lists the enclosing nodes innermost-first; Path[0] is the
	// query layer's focus node. Empty iff the position lies outside the
	// root's range (spec invariant 5).
	Path []ast.Node

	// PathComponent is set when the cursor lands on a specific `.`-step
	// of a selection or has-attr chain, nil otherwise.
	PathComponent *PathComponentRef
}

// contains reports the closed-interval containment spec §4.4 specifies
// ("a strict start ≤ target ≤ end check") — deliberately not
// position.Range.Contains's half-open [start, end) semantics, since a
// cursor resting immediately after a node's last character (e.g. right
// after an identifier, mid-completion) must still read as "inside" it.
func contains(r position.Range, target position.Position) bool {
	return !target.Before(r.Start) && !r.End.Before(target)
}

// Locate returns the cursor path for target within root (spec §4.4).
func Locate(root ast.Node, target position.Position) Result {
	if root == nil || !contains(root.Range(), target) {
		return Result{}
	}

	var res Result
	ast.Walk(root, nil, func(n ast.Node) {
		if !contains(n.Range(), target) {
			return
		}
		res.Path = append(res.Path, n)
		if res.PathComponent == nil {
			recordPathComponent(&res, n, target)
		}
	})
	return res
}

func recordPathComponent(res *Result, n ast.Node, target position.Position) {
	switch x := n.(type) {
	case *ast.Select:
		if idx, ok := componentAt(x.Path, target); ok {
			res.PathComponent = &PathComponentRef{Node: n, Index: idx}
		}
	case *ast.HasAttr:
		if idx, ok := componentAt(x.Path, target); ok {
			res.PathComponent = &PathComponentRef{Node: n, Index: idx}
		}
	}
}

func componentAt(path []ast.PathComponent, target position.Position) (int, bool) {
	for i, c := range path {
		if c.Expr != nil {
			if contains(c.Expr.Range(), target) {
				return i, true
			}
			continue
		}
		// A literal symbol component has no child node to walk into, so its
		// extent is reconstructed from c.Pos and the length of its symbol text
		// (identifiers never span a line). This covers the cursor sitting
		// anywhere in or at the end of the symbol (e.g. completing an
		// in-progress attribute name), as well as spec §4.2's
		// empty-trailing-component case where the cursor sits exactly at
		// c.Pos (e.g. right after `a.`).
		end := c.Pos
		end.Column += uint32(len(c.Symbol))
		if target.Line == c.Pos.Line && target.Column >= c.Pos.Column && target.Column <= end.Column {
			return i, true
		}
	}
	return -1, false
}
