// Package observability tracks which partition keys filters use and exports
// dispatcher and connection pool metrics to Prometheus.
package observability

import (
	"sort"
	"sync"
	"time"

	"github.com/partcat/partcat/internal/filter/parser"
)

// FilterStats tracks how often each partition key appears in filters and
// with which operators. The dispatcher records every filter it routes.
type FilterStats struct {
	mu      sync.RWMutex
	keyFreq map[string]*KeyStats
	window  time.Duration
}

// KeyStats holds statistics for one partition key.
type KeyStats struct {
	Key       string         `json:"key"`
	Frequency int64          `json:"frequency"`
	LastSeen  time.Time      `json:"lastSeen"`
	Operators map[string]int `json:"operators"` // operator → count (e.g., "=" → 5, "IN" → 2)
}

// NewFilterStats creates a tracker that forgets keys unused for window.
func NewFilterStats(window time.Duration) *FilterStats {
	return &FilterStats{
		keyFreq: make(map[string]*KeyStats),
		window:  window,
	}
}

// RecordPredicate records one predicate over key with operator.
func (f *FilterStats) RecordPredicate(key, operator string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordLocked(key, operator, time.Now())
}

func (f *FilterStats) recordLocked(key, operator string, now time.Time) {
	stats, exists := f.keyFreq[key]
	if !exists {
		stats = &KeyStats{
			Key:       key,
			Operators: make(map[string]int),
		}
		f.keyFreq[key] = stats
	}
	stats.Frequency++
	stats.LastSeen = now
	stats.Operators[operator]++
}

// RecordFilter records every predicate of expr. A match-all filter records
// nothing.
func (f *FilterStats) RecordFilter(expr parser.Expression) {
	if parser.IsMatchAll(expr) {
		return
	}
	var rec predicateRecorder
	parser.Accept[struct{}, struct{}](expr, &rec, struct{}{})
	if len(rec.predicates) == 0 {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	for _, p := range rec.predicates {
		f.recordLocked(p.key, p.operator, now)
	}
}

// GetTopKeys returns the n most used keys, most frequent first. The result
// is a copy.
func (f *FilterStats) GetTopKeys(n int) []KeyStats {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if n <= 0 || len(f.keyFreq) == 0 {
		return []KeyStats{}
	}

	stats := make([]KeyStats, 0, len(f.keyFreq))
	for _, s := range f.keyFreq {
		c := KeyStats{
			Key:       s.Key,
			Frequency: s.Frequency,
			LastSeen:  s.LastSeen,
			Operators: make(map[string]int, len(s.Operators)),
		}
		for op, count := range s.Operators {
			c.Operators[op] = count
		}
		stats = append(stats, c)
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Frequency != stats[j].Frequency {
			return stats[i].Frequency > stats[j].Frequency
		}
		return stats[i].Key < stats[j].Key
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// Prune removes keys not seen within the window.
func (f *FilterStats) Prune() {
	f.mu.Lock()
	defer f.mu.Unlock()

	threshold := time.Now().Add(-f.window)
	for key, stats := range f.keyFreq {
		if stats.LastSeen.Before(threshold) {
			delete(f.keyFreq, key)
		}
	}
}

type predicate struct {
	key      string
	operator string
}

// predicateRecorder collects (key, operator) pairs. Negation is recorded
// on the operator so NOT IN and IN are counted apart.
type predicateRecorder struct {
	predicates []predicate
	negated    bool
}

func (r *predicateRecorder) add(key *parser.Identifier, op string) {
	if r.negated {
		op = "NOT " + op
	}
	r.predicates = append(r.predicates, predicate{key: key.Name, operator: op})
}

func (r *predicateRecorder) VisitAnd(e *parser.AndExpr, c struct{}) struct{} {
	parser.Accept[struct{}, struct{}](e.Left, r, c)
	return parser.Accept[struct{}, struct{}](e.Right, r, c)
}

func (r *predicateRecorder) VisitOr(e *parser.OrExpr, c struct{}) struct{} {
	parser.Accept[struct{}, struct{}](e.Left, r, c)
	return parser.Accept[struct{}, struct{}](e.Right, r, c)
}

func (r *predicateRecorder) VisitNot(e *parser.NotExpr, c struct{}) struct{} {
	r.negated = !r.negated
	parser.Accept[struct{}, struct{}](e.Operand, r, c)
	r.negated = !r.negated
	return c
}

func (r *predicateRecorder) VisitCompare(e *parser.CompareExpr, c struct{}) struct{} {
	r.add(e.Key, string(e.Op))
	return c
}

func (r *predicateRecorder) VisitIn(e *parser.InExpr, c struct{}) struct{} {
	r.add(e.Key, "IN")
	return c
}

func (r *predicateRecorder) VisitLike(e *parser.LikeExpr, c struct{}) struct{} {
	r.add(e.Key, "LIKE")
	return c
}

func (r *predicateRecorder) VisitGroup(e *parser.GroupExpr, c struct{}) struct{} {
	return parser.Accept[struct{}, struct{}](e.Inner, r, c)
}

// A bare identifier is a boolean test of the key.
func (r *predicateRecorder) VisitIdentifier(e *parser.Identifier, c struct{}) struct{} {
	r.add(e, "IS TRUE")
	return c
}

func (r *predicateRecorder) VisitLiteral(*parser.Literal, struct{}) struct{}   { return struct{}{} }
func (r *predicateRecorder) VisitMatchAll(*parser.MatchAll, struct{}) struct{} { return struct{}{} }

var _ parser.Visitor[struct{}, struct{}] = (*predicateRecorder)(nil)
