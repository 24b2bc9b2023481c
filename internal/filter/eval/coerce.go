package eval

import (
	"strconv"
	"strings"
	"time"

	"github.com/partcat/partcat/internal/filter/parser"
)

// DateLayouts are the value formats recognised as dates when a string
// literal is compared with a partition value.
var DateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006/01/02",
}

// CompareValue applies op to a partition value and a literal using the
// coercion rules of the evaluator. A missing value or a value that cannot be
// coerced to the literal's type never matches.
func CompareValue(op parser.CompareOp, value string, present bool, lit *parser.Literal) bool {
	if !present || lit == nil {
		return false
	}
	result, ok := compare(op, value, lit)
	return ok && result
}

// compare returns the comparison result and whether the value could be
// coerced at all.
func compare(op parser.CompareOp, value string, lit *parser.Literal) (bool, bool) {
	switch lit.Kind {
	case parser.LiteralInteger, parser.LiteralDecimal:
		cmp, ok := compareNumbers(value, lit.Text)
		if !ok {
			return false, false
		}
		return apply(op, cmp), true

	case parser.LiteralBoolean:
		if op != parser.OpEq && op != parser.OpNe {
			return false, false
		}
		b, ok := parseBool(value)
		if !ok {
			return false, false
		}
		equal := b == lit.Bool()
		if op == parser.OpEq {
			return equal, true
		}
		return !equal, true

	default:
		return apply(op, compareStrings(value, lit.Text)), true
	}
}

// compareStrings compares numerically when both sides are numbers, then
// chronologically when both are dates, and otherwise byte-wise.
func compareStrings(a, b string) int {
	if cmp, ok := compareNumbers(a, b); ok {
		return cmp
	}
	if ta, ok := parseDate(a); ok {
		if tb, ok := parseDate(b); ok {
			return ta.Compare(tb)
		}
	}
	return strings.Compare(a, b)
}

// CompareKeyValues orders two partition values with the same rule a string
// literal comparison uses. Missing values sort first.
func CompareKeyValues(a string, aok bool, b string, bok bool) int {
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return -1
	case !bok:
		return 1
	}
	return compareStrings(a, b)
}

func apply(op parser.CompareOp, cmp int) bool {
	switch op {
	case parser.OpEq:
		return cmp == 0
	case parser.OpNe:
		return cmp != 0
	case parser.OpLt:
		return cmp < 0
	case parser.OpLe:
		return cmp <= 0
	case parser.OpGt:
		return cmp > 0
	case parser.OpGe:
		return cmp >= 0
	default:
		return false
	}
}

// compareNumbers compares two numeric strings. Integers are compared exactly;
// anything with a fraction or exponent falls back to float64.
func compareNumbers(a, b string) (int, bool) {
	if !isNumber(a) || !isNumber(b) {
		return 0, false
	}
	if ia, err := strconv.ParseInt(a, 10, 64); err == nil {
		if ib, err := strconv.ParseInt(b, 10, 64); err == nil {
			switch {
			case ia < ib:
				return -1, true
			case ia > ib:
				return 1, true
			}
			return 0, true
		}
	}
	fa, err := strconv.ParseFloat(a, 64)
	if err != nil {
		return 0, false
	}
	fb, err := strconv.ParseFloat(b, 64)
	if err != nil {
		return 0, false
	}
	switch {
	case fa < fb:
		return -1, true
	case fa > fb:
		return 1, true
	}
	return 0, true
}

// isNumber accepts the numeric literal syntax of the filter grammar:
// [-+]digits[.digits][e[-+]digits]. Unlike strconv it rejects hex, Inf and NaN.
func isNumber(s string) bool {
	i := 0
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		i++
	}
	digits := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
			digits++
		}
	}
	if digits == 0 {
		return false
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '-' || s[i] == '+') {
			i++
		}
		exp := 0
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
			exp++
		}
		if exp == 0 {
			return false
		}
	}
	return i == len(s)
}

func parseDate(s string) (time.Time, bool) {
	if len(s) < len("2006/01/02") {
		return time.Time{}, false
	}
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Truthy reports whether a key value reads as boolean true.
func Truthy(value string) bool {
	b, ok := parseBool(value)
	return ok && b
}

func parseBool(s string) (bool, bool) {
	switch {
	case strings.EqualFold(s, "true"):
		return true, true
	case strings.EqualFold(s, "false"):
		return false, true
	}
	return false, false
}
