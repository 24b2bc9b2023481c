// Package eval evaluates parsed partition filters against partition key
// values.
package eval

import (
	"github.com/partcat/partcat/internal/filter/parser"
	"github.com/partcat/partcat/pkg/types"
)

// Stats counts what happened during evaluation.
type Stats struct {
	// Visited is the number of nodes evaluated. Short-circuited subtrees
	// are not counted.
	Visited int64
	// MissingKeys counts predicates over a key the partition does not have.
	MissingKeys int64
	// CoercionMismatches counts comparisons where the value could not be
	// coerced to the literal's type.
	CoercionMismatches int64
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.Visited += other.Visited
	s.MissingKeys += other.MissingKeys
	s.CoercionMismatches += other.CoercionMismatches
}

// Evaluator decides whether a partition's key values satisfy a filter.
// An Evaluator is not safe for concurrent use; ASTs are, so goroutines
// share the tree and each use their own Evaluator.
type Evaluator struct {
	stats Stats
}

var _ parser.Visitor[types.KeyLookup, bool] = (*Evaluator)(nil)

// New returns an Evaluator with zeroed statistics.
func New() *Evaluator {
	return &Evaluator{}
}

// Match evaluates expr against kv. A nil or empty filter matches everything.
// Missing keys and values that cannot be coerced make the predicate false;
// evaluation itself never fails.
func (e *Evaluator) Match(expr parser.Expression, kv types.KeyLookup) bool {
	if kv == nil {
		kv = types.PartitionKeyValues(nil)
	}
	return parser.Accept[types.KeyLookup, bool](expr, e, kv)
}

// Stats returns the statistics accumulated so far.
func (e *Evaluator) Stats() Stats {
	return e.stats
}

// Reset clears the accumulated statistics.
func (e *Evaluator) Reset() {
	e.stats = Stats{}
}

func (e *Evaluator) eval(expr parser.Expression, kv types.KeyLookup) bool {
	return parser.Accept[types.KeyLookup, bool](expr, e, kv)
}

func (e *Evaluator) lookup(key *parser.Identifier, kv types.KeyLookup) (string, bool) {
	if key == nil {
		e.stats.MissingKeys++
		return "", false
	}
	value, ok := kv.Get(key.Name)
	if !ok {
		e.stats.MissingKeys++
	}
	return value, ok
}

func (e *Evaluator) VisitAnd(n *parser.AndExpr, kv types.KeyLookup) bool {
	e.stats.Visited++
	return e.eval(n.Left, kv) && e.eval(n.Right, kv)
}

func (e *Evaluator) VisitOr(n *parser.OrExpr, kv types.KeyLookup) bool {
	e.stats.Visited++
	return e.eval(n.Left, kv) || e.eval(n.Right, kv)
}

func (e *Evaluator) VisitNot(n *parser.NotExpr, kv types.KeyLookup) bool {
	e.stats.Visited++
	return !e.eval(n.Operand, kv)
}

func (e *Evaluator) VisitCompare(n *parser.CompareExpr, kv types.KeyLookup) bool {
	e.stats.Visited++
	value, ok := e.lookup(n.Key, kv)
	if !ok || n.Value == nil {
		return false
	}
	result, coerced := compare(n.Op, value, n.Value)
	if !coerced {
		e.stats.CoercionMismatches++
		return false
	}
	return result
}

func (e *Evaluator) VisitIn(n *parser.InExpr, kv types.KeyLookup) bool {
	e.stats.Visited++
	value, ok := e.lookup(n.Key, kv)
	if !ok {
		return false
	}
	for _, lit := range n.Values {
		result, coerced := compare(parser.OpEq, value, lit)
		if !coerced {
			e.stats.CoercionMismatches++
			continue
		}
		if result {
			return true
		}
	}
	return false
}

func (e *Evaluator) VisitLike(n *parser.LikeExpr, kv types.KeyLookup) bool {
	e.stats.Visited++
	value, ok := e.lookup(n.Key, kv)
	if !ok || n.Pattern == nil {
		return false
	}
	return LikeMatch(value, n.Pattern.Text)
}

func (e *Evaluator) VisitGroup(n *parser.GroupExpr, kv types.KeyLookup) bool {
	e.stats.Visited++
	return e.eval(n.Inner, kv)
}

// VisitIdentifier treats a bare key as a predicate that holds when the key
// is present with a true value.
func (e *Evaluator) VisitIdentifier(n *parser.Identifier, kv types.KeyLookup) bool {
	e.stats.Visited++
	value, ok := e.lookup(n, kv)
	return ok && Truthy(value)
}

// VisitLiteral treats a bare literal as a constant; only TRUE holds.
func (e *Evaluator) VisitLiteral(n *parser.Literal, _ types.KeyLookup) bool {
	e.stats.Visited++
	return n.Bool()
}

func (e *Evaluator) VisitMatchAll(*parser.MatchAll, types.KeyLookup) bool {
	e.stats.Visited++
	return true
}

// Match is a convenience for a one-off evaluation with a fresh Evaluator.
func Match(expr parser.Expression, kv types.KeyLookup) bool {
	return New().Match(expr, kv)
}
