package sqlite

import (
	"strings"

	"github.com/partcat/partcat/internal/filter/parser"
)

// keyValueSQL selects the value of one key of the partition row aliased p.
// It yields NULL when the partition does not have the key.
const keyValueSQL = `(SELECT kv.value FROM partition_key_values kv WHERE kv.partition_id = p.id AND kv.key = ?)`

// Translator renders a filter into a SQL boolean expression over the
// partitions table aliased p. Every predicate is delegated to the
// functions registered by RegisterDriver, so rows selected in SQL are
// exactly the rows the in-process evaluator would accept.
type Translator struct {
	args []interface{}
}

var _ parser.Visitor[struct{}, string] = (*Translator)(nil)

// Translate returns the SQL expression for expr and its bind arguments.
// A match-all filter renders as "1".
func Translate(expr parser.Expression) (string, []interface{}) {
	t := &Translator{}
	where := parser.Accept[struct{}, string](expr, t, struct{}{})
	return where, t.args
}

func (t *Translator) render(expr parser.Expression) string {
	return parser.Accept[struct{}, string](expr, t, struct{}{})
}

func (t *Translator) key(id *parser.Identifier) string {
	t.args = append(t.args, id.Name)
	return keyValueSQL
}

func (t *Translator) literal(lit *parser.Literal) string {
	t.args = append(t.args, int64(lit.Kind), lit.Text)
	return "?, ?"
}

func (t *Translator) VisitAnd(e *parser.AndExpr, _ struct{}) string {
	return "(" + t.render(e.Left) + " AND " + t.render(e.Right) + ")"
}

func (t *Translator) VisitOr(e *parser.OrExpr, _ struct{}) string {
	return "(" + t.render(e.Left) + " OR " + t.render(e.Right) + ")"
}

func (t *Translator) VisitNot(e *parser.NotExpr, _ struct{}) string {
	return "(NOT " + t.render(e.Operand) + ")"
}

func (t *Translator) VisitCompare(e *parser.CompareExpr, _ struct{}) string {
	if e.Key == nil || e.Value == nil {
		return "0"
	}
	t.args = append(t.args, string(e.Op))
	key := t.key(e.Key)
	return "partcat_cmp(?, " + key + ", " + t.literal(e.Value) + ")"
}

func (t *Translator) VisitIn(e *parser.InExpr, _ struct{}) string {
	if e.Key == nil || len(e.Values) == 0 {
		return "0"
	}
	var sb strings.Builder
	sb.WriteString("partcat_in(")
	sb.WriteString(t.key(e.Key))
	for _, v := range e.Values {
		sb.WriteString(", ")
		sb.WriteString(t.literal(v))
	}
	sb.WriteString(")")
	return sb.String()
}

func (t *Translator) VisitLike(e *parser.LikeExpr, _ struct{}) string {
	if e.Key == nil || e.Pattern == nil {
		return "0"
	}
	key := t.key(e.Key)
	t.args = append(t.args, e.Pattern.Text)
	return "partcat_like(" + key + ", ?)"
}

func (t *Translator) VisitGroup(e *parser.GroupExpr, _ struct{}) string {
	return t.render(e.Inner)
}

func (t *Translator) VisitIdentifier(e *parser.Identifier, _ struct{}) string {
	return "partcat_truthy(" + t.key(e) + ")"
}

func (t *Translator) VisitLiteral(e *parser.Literal, _ struct{}) string {
	if e.Bool() {
		return "1"
	}
	return "0"
}

func (t *Translator) VisitMatchAll(*parser.MatchAll, struct{}) string {
	return "1"
}
