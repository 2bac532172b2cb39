package ast

// Walk traverses an AST in depth-first order: before(node) is called on
// entry; if it returns false, node's children are skipped. after(node) is
// called on exit (post-order), which is how the cursor-path locator
// (spec §4.4) observes nodes: by the time after
// fires, the node's full range is known and its children have already been
// visited, so outermost nodes are reported last (spec §4.4).
func Walk(node Node, before func(Node) bool, after func(Node)) {
	if node == nil {
		return
	}
	if before != nil && !before(node) {
		if after != nil {
			after(node)
		}
		return
	}
	switch n := node.(type) {
	case *IntLit, *FloatLit, *StringLit, *PathLit, *Var, *PosRef:
		// leaves

	case *AttrSet:
		for _, name := range n.Names {
			e := n.Entries[name]
			Walk(e.Expr, before, after)
		}
		for _, d := range n.Dynamic {
			Walk(d.NameExpr, before, after)
			Walk(d.ValueExpr, before, after)
		}

	case *List:
		for _, e := range n.Elems {
			Walk(e, before, after)
		}

	case *Let:
		Walk(n.Attrs, before, after)
		Walk(n.Body, before, after)

	case *Lambda:
		for i := range n.Formals {
			Walk(n.Formals[i].Default, before, after)
		}
		Walk(n.Body, before, after)

	case *Call:
		Walk(n.Fun, before, after)
		for _, a := range n.Args {
			Walk(a, before, after)
		}

	case *Select:
		Walk(n.Base, before, after)
		for _, c := range n.Path {
			Walk(c.Expr, before, after)
		}
		Walk(n.Default, before, after)

	case *HasAttr:
		Walk(n.Base, before, after)
		for _, c := range n.Path {
			Walk(c.Expr, before, after)
		}

	case *With:
		Walk(n.Attrs, before, after)
		Walk(n.Body, before, after)

	case *If:
		Walk(n.Cond, before, after)
		Walk(n.Then, before, after)
		Walk(n.Else, before, after)

	case *Assert:
		Walk(n.Cond, before, after)
		Walk(n.Body, before, after)

	case *Not:
		Walk(n.Expr, before, after)

	case *Neg:
		Walk(n.Expr, before, after)

	case *ConcatStrings:
		for _, p := range n.Parts {
			Walk(p.Expr, before, after)
		}

	case *Binary:
		Walk(n.Left, before, after)
		Walk(n.Right, before, after)
	}
	if after != nil {
		after(node)
	}
}
