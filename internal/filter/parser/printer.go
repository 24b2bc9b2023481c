package parser

import (
	"strings"
)

// Printer renders an AST back into canonical filter syntax. Parsing the
// output of Printer yields an AST equal to the one printed.
type Printer struct{}

// Format renders expr in canonical filter syntax. MatchAll renders as the
// empty string.
func Format(expr Expression) string {
	return Accept[struct{}, string](expr, Printer{}, struct{}{})
}

// precedenceOf returns the binding strength of a node, used to decide where
// hand-built trees need parentheses.
func precedenceOf(expr Expression) int {
	switch expr.(type) {
	case *OrExpr:
		return precOr
	case *AndExpr:
		return precAnd
	case *NotExpr:
		return precNot
	case *CompareExpr, *InExpr, *LikeExpr:
		return precCompare
	case *GroupExpr:
		return precGroup
	default:
		return precPrimary
	}
}

func (p Printer) operand(expr Expression, min int) string {
	s := Accept[struct{}, string](expr, p, struct{}{})
	if precedenceOf(expr) < min {
		return "(" + s + ")"
	}
	return s
}

func (p Printer) binary(left, right Expression, op string, prec int) string {
	// Left-associative: an equal-precedence right operand needs parentheses.
	return p.operand(left, prec) + " " + op + " " + p.operand(right, prec+1)
}

func (p Printer) VisitAnd(e *AndExpr, _ struct{}) string {
	return p.binary(e.Left, e.Right, "AND", precAnd)
}

func (p Printer) VisitOr(e *OrExpr, _ struct{}) string {
	return p.binary(e.Left, e.Right, "OR", precOr)
}

func (p Printer) VisitNot(e *NotExpr, _ struct{}) string {
	return "NOT " + p.operand(e.Operand, precNot)
}

func (p Printer) VisitCompare(e *CompareExpr, _ struct{}) string {
	return p.VisitIdentifier(e.Key, struct{}{}) + " " + string(e.Op) + " " + p.VisitLiteral(e.Value, struct{}{})
}

func (p Printer) VisitIn(e *InExpr, _ struct{}) string {
	values := make([]string, len(e.Values))
	for i, v := range e.Values {
		values[i] = p.VisitLiteral(v, struct{}{})
	}
	return p.VisitIdentifier(e.Key, struct{}{}) + " IN (" + strings.Join(values, ", ") + ")"
}

func (p Printer) VisitLike(e *LikeExpr, _ struct{}) string {
	return p.VisitIdentifier(e.Key, struct{}{}) + " LIKE " + p.VisitLiteral(e.Pattern, struct{}{})
}

func (p Printer) VisitGroup(e *GroupExpr, _ struct{}) string {
	return "(" + Accept[struct{}, string](e.Inner, p, struct{}{}) + ")"
}

func (p Printer) VisitIdentifier(e *Identifier, _ struct{}) string {
	if isBareIdentifier(e.Name) {
		return e.Name
	}
	return "`" + strings.ReplaceAll(e.Name, "`", "``") + "`"
}

func (p Printer) VisitLiteral(e *Literal, _ struct{}) string {
	switch e.Kind {
	case LiteralInteger, LiteralDecimal:
		return e.Text
	case LiteralBoolean:
		if e.Bool() {
			return "TRUE"
		}
		return "FALSE"
	default:
		return quoteString(e.Text)
	}
}

func (p Printer) VisitMatchAll(*MatchAll, struct{}) string {
	return ""
}

func quoteString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "'", "''")
	return "'" + s + "'"
}

// isBareIdentifier reports whether name can be written without quotes.
func isBareIdentifier(name string) bool {
	if name == "" || IsReserved(name) {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
		case i > 0 && (isDigit(c) || c == '.' || c == '$' || c == '-'):
		default:
			return false
		}
	}
	return true
}
