package parser

import (
	"math/rand"
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var propertyKeys = []string{"dt", "region", "hour", "and", "order date", "a`b", "db.col", "_x1"}

var propertyStrings = []string{"us", "", "it's", `C:\dir`, `\'`, "20%", "a_b", "ünï"}

// randomExpr builds an arbitrary, not necessarily parser-shaped, tree.
func randomExpr(r *rand.Rand, depth int) Expression {
	if depth <= 0 {
		return randomPredicate(r)
	}
	switch r.Intn(6) {
	case 0:
		return &AndExpr{Left: randomExpr(r, depth-1), Right: randomExpr(r, depth-1)}
	case 1:
		return &OrExpr{Left: randomExpr(r, depth-1), Right: randomExpr(r, depth-1)}
	case 2:
		return &NotExpr{Operand: randomExpr(r, depth-1)}
	case 3:
		return &GroupExpr{Inner: randomExpr(r, depth-1)}
	default:
		return randomPredicate(r)
	}
}

func randomPredicate(r *rand.Rand) Expression {
	key := &Identifier{Name: propertyKeys[r.Intn(len(propertyKeys))]}
	switch r.Intn(3) {
	case 0:
		n := 1 + r.Intn(3)
		values := make([]*Literal, n)
		for i := range values {
			values[i] = randomLiteral(r)
		}
		return &InExpr{Key: key, Values: values}
	case 1:
		return &LikeExpr{Key: key, Pattern: NewString(propertyStrings[r.Intn(len(propertyStrings))])}
	default:
		ops := []CompareOp{OpEq, OpNe, OpLt, OpLe, OpGt, OpGe}
		return &CompareExpr{Op: ops[r.Intn(len(ops))], Key: key, Value: randomLiteral(r)}
	}
}

func randomLiteral(r *rand.Rand) *Literal {
	switch r.Intn(4) {
	case 0:
		return &Literal{Kind: LiteralInteger, Text: strconv.FormatInt(r.Int63n(40000000)-20000000, 10)}
	case 1:
		return &Literal{Kind: LiteralDecimal, Text: strconv.FormatFloat(r.NormFloat64()*1000, 'f', 3, 64)}
	case 2:
		return NewBool(r.Intn(2) == 0)
	default:
		return NewString(propertyStrings[r.Intn(len(propertyStrings))])
	}
}

func TestProperty_PrintParseRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	// Any tree prints to valid syntax, and parser-produced trees survive a
	// print/parse cycle unchanged.
	properties.Property("parse(format(parse(format(e)))) equals parse(format(e))", prop.ForAll(
		func(seed int64, depth int) bool {
			r := rand.New(rand.NewSource(seed))
			original := randomExpr(r, depth)

			first, err := Parse(Format(original))
			if err != nil {
				t.Logf("format %q: %v", Format(original), err)
				return false
			}
			second, err := Parse(Format(first))
			if err != nil {
				return false
			}
			return Equal(first, second) && Format(first) == Format(second)
		},
		gen.Int64(),
		gen.IntRange(0, 6),
	))

	properties.TestingRun(t)
}

func TestProperty_ParseDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("parsing the same text twice yields equal trees", prop.ForAll(
		func(seed int64) bool {
			r := rand.New(rand.NewSource(seed))
			text := Format(randomExpr(r, 4))

			a, errA := Parse(text)
			b, errB := Parse(text)
			if errA != nil || errB != nil {
				return false
			}
			return Equal(a, b)
		},
		gen.Int64(),
	))

	properties.Property("arbitrary input either parses or fails with a ParseError", prop.ForAll(
		func(input string) bool {
			expr, err := Parse(input)
			if err != nil {
				_, ok := err.(*ParseError)
				return ok && expr == nil
			}
			return expr != nil
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
