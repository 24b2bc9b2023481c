package parser

import "strings"

// Expression is a node of a parsed filter. The set of implementations is
// closed; traverse it with Accept and a Visitor.
//
// A nil Expression is treated as MatchAll everywhere.
type Expression interface {
	expressionNode()
	String() string
}

// CompareOp is a comparison operator.
type CompareOp string

const (
	OpEq CompareOp = "="
	OpNe CompareOp = "!="
	OpLt CompareOp = "<"
	OpLe CompareOp = "<="
	OpGt CompareOp = ">"
	OpGe CompareOp = ">="
)

// Flip returns the operator that gives the same result with operands swapped.
func (op CompareOp) Flip() CompareOp {
	switch op {
	case OpLt:
		return OpGt
	case OpLe:
		return OpGe
	case OpGt:
		return OpLt
	case OpGe:
		return OpLe
	default:
		return op
	}
}

// Valid reports whether op is one of the known comparison operators.
func (op CompareOp) Valid() bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return true
	}
	return false
}

// LiteralKind classifies a literal.
type LiteralKind int

const (
	LiteralString LiteralKind = iota
	LiteralInteger
	LiteralDecimal
	LiteralBoolean
)

// String returns the name of the kind.
func (k LiteralKind) String() string {
	switch k {
	case LiteralString:
		return "string"
	case LiteralInteger:
		return "integer"
	case LiteralDecimal:
		return "decimal"
	case LiteralBoolean:
		return "boolean"
	default:
		return "unknown"
	}
}

// Numeric reports whether the kind is integer or decimal.
func (k LiteralKind) Numeric() bool {
	return k == LiteralInteger || k == LiteralDecimal
}

// AndExpr is the conjunction of two expressions.
type AndExpr struct {
	Left  Expression
	Right Expression
}

// OrExpr is the disjunction of two expressions.
type OrExpr struct {
	Left  Expression
	Right Expression
}

// NotExpr negates its operand.
type NotExpr struct {
	Operand Expression
}

// CompareExpr compares a partition key against a literal. The key is always
// on the left; the parser flips operators written the other way round.
type CompareExpr struct {
	Op    CompareOp
	Key   *Identifier
	Value *Literal
}

// InExpr tests a partition key for membership in a literal list.
type InExpr struct {
	Key    *Identifier
	Values []*Literal
}

// LikeExpr matches a partition key against a LIKE pattern.
type LikeExpr struct {
	Key     *Identifier
	Pattern *Literal
}

// GroupExpr is an explicitly parenthesized expression.
type GroupExpr struct {
	Inner Expression
}

// Identifier names a partition key.
type Identifier struct {
	Name string
}

// Literal is a constant. Text holds the unescaped string value, the number as
// written, or "true"/"false".
type Literal struct {
	Kind LiteralKind
	Text string
}

// MatchAll matches every partition. It is what an empty filter parses to.
type MatchAll struct{}

func (*AndExpr) expressionNode()     {}
func (*OrExpr) expressionNode()      {}
func (*NotExpr) expressionNode()     {}
func (*CompareExpr) expressionNode() {}
func (*InExpr) expressionNode()      {}
func (*LikeExpr) expressionNode()    {}
func (*GroupExpr) expressionNode()   {}
func (*Identifier) expressionNode()  {}
func (*Literal) expressionNode()     {}
func (*MatchAll) expressionNode()    {}

func (e *AndExpr) String() string     { return Format(e) }
func (e *OrExpr) String() string      { return Format(e) }
func (e *NotExpr) String() string     { return Format(e) }
func (e *CompareExpr) String() string { return Format(e) }
func (e *InExpr) String() string      { return Format(e) }
func (e *LikeExpr) String() string    { return Format(e) }
func (e *GroupExpr) String() string   { return Format(e) }
func (e *Identifier) String() string  { return Format(e) }
func (e *Literal) String() string     { return Format(e) }
func (e *MatchAll) String() string    { return "" }

// Bool returns the value of a boolean literal.
func (l *Literal) Bool() bool {
	return l.Kind == LiteralBoolean && strings.EqualFold(l.Text, "true")
}

// NewString returns a string literal.
func NewString(s string) *Literal {
	return &Literal{Kind: LiteralString, Text: s}
}

// NewBool returns a boolean literal.
func NewBool(b bool) *Literal {
	if b {
		return &Literal{Kind: LiteralBoolean, Text: "true"}
	}
	return &Literal{Kind: LiteralBoolean, Text: "false"}
}

// IsMatchAll reports whether expr matches everything without looking at keys.
func IsMatchAll(expr Expression) bool {
	switch e := expr.(type) {
	case nil, *MatchAll:
		return true
	case *GroupExpr:
		return IsMatchAll(e.Inner)
	default:
		return false
	}
}
