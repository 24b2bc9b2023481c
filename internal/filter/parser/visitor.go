package parser

import "fmt"

// Visitor is implemented by every operation over a filter AST. C is the
// per-call context threaded through the traversal and R the result type.
// There is exactly one method per node type, so adding a node type breaks
// every visitor at compile time.
type Visitor[C, R any] interface {
	VisitAnd(e *AndExpr, ctx C) R
	VisitOr(e *OrExpr, ctx C) R
	VisitNot(e *NotExpr, ctx C) R
	VisitCompare(e *CompareExpr, ctx C) R
	VisitIn(e *InExpr, ctx C) R
	VisitLike(e *LikeExpr, ctx C) R
	VisitGroup(e *GroupExpr, ctx C) R
	VisitIdentifier(e *Identifier, ctx C) R
	VisitLiteral(e *Literal, ctx C) R
	VisitMatchAll(e *MatchAll, ctx C) R
}

var matchAll = &MatchAll{}

// Accept dispatches expr to the visitor method for its node type. Visitors
// recurse into children by calling Accept again; nodes are never modified.
func Accept[C, R any](expr Expression, v Visitor[C, R], ctx C) R {
	switch e := expr.(type) {
	case nil:
		return v.VisitMatchAll(matchAll, ctx)
	case *AndExpr:
		return v.VisitAnd(e, ctx)
	case *OrExpr:
		return v.VisitOr(e, ctx)
	case *NotExpr:
		return v.VisitNot(e, ctx)
	case *CompareExpr:
		return v.VisitCompare(e, ctx)
	case *InExpr:
		return v.VisitIn(e, ctx)
	case *LikeExpr:
		return v.VisitLike(e, ctx)
	case *GroupExpr:
		return v.VisitGroup(e, ctx)
	case *Identifier:
		return v.VisitIdentifier(e, ctx)
	case *Literal:
		return v.VisitLiteral(e, ctx)
	case *MatchAll:
		return v.VisitMatchAll(e, ctx)
	default:
		panic(fmt.Sprintf("parser: unhandled expression type %T", expr))
	}
}

// identifierCollector gathers the distinct keys referenced by an expression
// in order of first appearance.
type identifierCollector struct {
	seen  map[string]struct{}
	names []string
}

func (c *identifierCollector) add(id *Identifier) {
	if id == nil {
		return
	}
	if _, ok := c.seen[id.Name]; ok {
		return
	}
	c.seen[id.Name] = struct{}{}
	c.names = append(c.names, id.Name)
}

func (c *identifierCollector) VisitAnd(e *AndExpr, _ struct{}) struct{} {
	Accept[struct{}, struct{}](e.Left, c, struct{}{})
	return Accept[struct{}, struct{}](e.Right, c, struct{}{})
}

func (c *identifierCollector) VisitOr(e *OrExpr, _ struct{}) struct{} {
	Accept[struct{}, struct{}](e.Left, c, struct{}{})
	return Accept[struct{}, struct{}](e.Right, c, struct{}{})
}

func (c *identifierCollector) VisitNot(e *NotExpr, _ struct{}) struct{} {
	return Accept[struct{}, struct{}](e.Operand, c, struct{}{})
}

func (c *identifierCollector) VisitCompare(e *CompareExpr, _ struct{}) struct{} {
	c.add(e.Key)
	return struct{}{}
}

func (c *identifierCollector) VisitIn(e *InExpr, _ struct{}) struct{} {
	c.add(e.Key)
	return struct{}{}
}

func (c *identifierCollector) VisitLike(e *LikeExpr, _ struct{}) struct{} {
	c.add(e.Key)
	return struct{}{}
}

func (c *identifierCollector) VisitGroup(e *GroupExpr, _ struct{}) struct{} {
	return Accept[struct{}, struct{}](e.Inner, c, struct{}{})
}

func (c *identifierCollector) VisitIdentifier(e *Identifier, _ struct{}) struct{} {
	c.add(e)
	return struct{}{}
}

func (c *identifierCollector) VisitLiteral(*Literal, struct{}) struct{}   { return struct{}{} }
func (c *identifierCollector) VisitMatchAll(*MatchAll, struct{}) struct{} { return struct{}{} }

// Identifiers returns the distinct partition keys referenced by expr, in
// order of first appearance.
func Identifiers(expr Expression) []string {
	c := &identifierCollector{seen: make(map[string]struct{})}
	Accept[struct{}, struct{}](expr, c, struct{}{})
	return c.names
}

// Validate returns the keys referenced by expr that are not in knownKeys.
// Parsing itself never checks identifiers; callers that know a table's
// partition keys use this to reject filters up front.
func Validate(expr Expression, knownKeys []string) []string {
	known := make(map[string]struct{}, len(knownKeys))
	for _, k := range knownKeys {
		known[k] = struct{}{}
	}
	var unknown []string
	for _, name := range Identifiers(expr) {
		if _, ok := known[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// equalVisitor compares the visited node with the node passed as context.
type equalVisitor struct{}

func (v equalVisitor) eq(a, b Expression) bool {
	if b == nil {
		b = matchAll
	}
	return Accept[Expression, bool](a, v, b)
}

func (v equalVisitor) VisitAnd(e *AndExpr, other Expression) bool {
	o, ok := other.(*AndExpr)
	return ok && v.eq(e.Left, o.Left) && v.eq(e.Right, o.Right)
}

func (v equalVisitor) VisitOr(e *OrExpr, other Expression) bool {
	o, ok := other.(*OrExpr)
	return ok && v.eq(e.Left, o.Left) && v.eq(e.Right, o.Right)
}

func (v equalVisitor) VisitNot(e *NotExpr, other Expression) bool {
	o, ok := other.(*NotExpr)
	return ok && v.eq(e.Operand, o.Operand)
}

func (v equalVisitor) VisitCompare(e *CompareExpr, other Expression) bool {
	o, ok := other.(*CompareExpr)
	return ok && e.Op == o.Op && identEqual(e.Key, o.Key) && literalEqual(e.Value, o.Value)
}

func (v equalVisitor) VisitIn(e *InExpr, other Expression) bool {
	o, ok := other.(*InExpr)
	if !ok || !identEqual(e.Key, o.Key) || len(e.Values) != len(o.Values) {
		return false
	}
	for i := range e.Values {
		if !literalEqual(e.Values[i], o.Values[i]) {
			return false
		}
	}
	return true
}

func (v equalVisitor) VisitLike(e *LikeExpr, other Expression) bool {
	o, ok := other.(*LikeExpr)
	return ok && identEqual(e.Key, o.Key) && literalEqual(e.Pattern, o.Pattern)
}

func (v equalVisitor) VisitGroup(e *GroupExpr, other Expression) bool {
	o, ok := other.(*GroupExpr)
	return ok && v.eq(e.Inner, o.Inner)
}

func (v equalVisitor) VisitIdentifier(e *Identifier, other Expression) bool {
	o, ok := other.(*Identifier)
	return ok && identEqual(e, o)
}

func (v equalVisitor) VisitLiteral(e *Literal, other Expression) bool {
	o, ok := other.(*Literal)
	return ok && literalEqual(e, o)
}

func (v equalVisitor) VisitMatchAll(_ *MatchAll, other Expression) bool {
	_, ok := other.(*MatchAll)
	return ok
}

func identEqual(a, b *Identifier) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Name == b.Name
}

func literalEqual(a, b *Literal) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Kind == b.Kind && a.Text == b.Text
}

// Equal reports whether a and b are structurally identical. Explicit
// grouping is significant.
func Equal(a, b Expression) bool {
	return equalVisitor{}.eq(a, b)
}
