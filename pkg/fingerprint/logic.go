package fingerprint

import (
	"strings"
)

// MaxLogicDepth bounds logic tree traversal. A tree deeper than this is
// treated as cyclic: Go values only become self-referencing through shared
// child slices, which shows up as unbounded depth.
const MaxLogicDepth = 128

// Expr is a node of the logic tree. The set of variants is closed: And, Or,
// Not and Leaf are the only implementations.
type Expr interface {
	isExpr()
}

// And holds when every child holds.
type And struct {
	Children []Expr
}

// Or holds when any child holds.
type Or struct {
	Children []Expr
}

// Not inverts its child.
type Not struct {
	Child Expr
}

// Leaf references a probe by id.
type Leaf struct {
	ProbeID string
}

func (And) isExpr()  {}
func (Or) isExpr()   {}
func (Not) isExpr()  {}
func (Leaf) isExpr() {}

// AllOf is shorthand for And over leaves of the given probe ids.
func AllOf(ids ...string) And {
	return And{Children: leaves(ids)}
}

// AnyOf is shorthand for Or over leaves of the given probe ids.
func AnyOf(ids ...string) Or {
	return Or{Children: leaves(ids)}
}

func leaves(ids []string) []Expr {
	out := make([]Expr, 0, len(ids))
	for _, id := range ids {
		out = append(out, Leaf{ProbeID: id})
	}
	return out
}

// Walk visits expr depth-first, parents before children. It fails with a
// SpecificationError on nil nodes, empty combinators or trees deeper than
// MaxLogicDepth.
func Walk(expr Expr, fn func(node Expr, depth int) error) error {
	return walk(expr, 0, fn)
}

func walk(expr Expr, depth int, fn func(Expr, int) error) error {
	if depth >= MaxLogicDepth {
		return NewError(ErrorCodeCyclicLogic, "logic tree exceeds depth %d", MaxLogicDepth)
	}
	if expr == nil {
		return NewError(ErrorCodeEmptyLogic, "logic tree contains an empty node")
	}
	if err := fn(expr, depth); err != nil {
		return err
	}

	switch node := expr.(type) {
	case And:
		return walkChildren("and", node.Children, depth, fn)
	case Or:
		return walkChildren("or", node.Children, depth, fn)
	case Not:
		return walk(node.Child, depth+1, fn)
	case Leaf:
		return nil
	default:
		return NewError(ErrorCodeEmptyLogic, "unsupported logic node %T", expr)
	}
}

func walkChildren(kind string, children []Expr, depth int, fn func(Expr, int) error) error {
	if len(children) == 0 {
		return NewError(ErrorCodeEmptyLogic, "%s node has no children", kind)
	}
	for _, child := range children {
		if err := walk(child, depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}

// LeafIDs returns the distinct probe ids referenced by leaves reachable from
// expr, negated ones included, in first-visit order.
func LeafIDs(expr Expr) ([]string, error) {
	var ids []string
	seen := make(map[string]struct{})
	err := Walk(expr, func(node Expr, _ int) error {
		leaf, ok := node.(Leaf)
		if !ok {
			return nil
		}
		if _, dup := seen[leaf.ProbeID]; !dup {
			seen[leaf.ProbeID] = struct{}{}
			ids = append(ids, leaf.ProbeID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Format renders expr in the AND(LEAF(a), ...) notation used in reports.
func Format(expr Expr) string {
	var b strings.Builder
	format(&b, expr, 0)
	return b.String()
}

func format(b *strings.Builder, expr Expr, depth int) {
	if depth >= MaxLogicDepth {
		b.WriteString("...")
		return
	}
	switch node := expr.(type) {
	case And:
		formatChildren(b, "AND", node.Children, depth)
	case Or:
		formatChildren(b, "OR", node.Children, depth)
	case Not:
		b.WriteString("NOT(")
		format(b, node.Child, depth+1)
		b.WriteString(")")
	case Leaf:
		b.WriteString("LEAF(")
		b.WriteString(node.ProbeID)
		b.WriteString(")")
	default:
		b.WriteString("<nil>")
	}
}

func formatChildren(b *strings.Builder, name string, children []Expr, depth int) {
	b.WriteString(name)
	b.WriteString("(")
	for i, child := range children {
		if i > 0 {
			b.WriteString(", ")
		}
		format(b, child, depth+1)
	}
	b.WriteString(")")
}
