package observability

import (
	"sync"
	"testing"
	"time"

	"github.com/partcat/partcat/internal/filter/parser"
)

// TestRecordPredicateConcurrent tests concurrent RecordPredicate calls for race conditions.
func TestRecordPredicateConcurrent(t *testing.T) {
	fs := NewFilterStats(1 * time.Hour)
	var wg sync.WaitGroup
	numGoroutines := 10
	recordsPerGoroutine := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < recordsPerGoroutine; j++ {
				fs.RecordPredicate("dt", ">")
				fs.RecordPredicate("region", "IN")
				fs.RecordPredicate("hour", "=")
			}
		}()
	}
	wg.Wait()

	top := fs.GetTopKeys(10)
	if len(top) != 3 {
		t.Errorf("expected 3 keys, got %d", len(top))
	}
	expectedFreq := int64(numGoroutines * recordsPerGoroutine)
	for _, stat := range top {
		if stat.Frequency != expectedFreq {
			t.Errorf("expected frequency %d for %s, got %d", expectedFreq, stat.Key, stat.Frequency)
		}
	}
}

// TestGetTopKeysOrdering tests that GetTopKeys returns results sorted by frequency.
func TestGetTopKeysOrdering(t *testing.T) {
	fs := NewFilterStats(1 * time.Hour)
	for i := 0; i < 10; i++ {
		fs.RecordPredicate("region", "=")
	}
	for i := 0; i < 5; i++ {
		fs.RecordPredicate("hour", "IN")
	}
	for i := 0; i < 20; i++ {
		fs.RecordPredicate("dt", ">")
	}

	top := fs.GetTopKeys(2)
	if len(top) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(top))
	}
	if top[0].Key != "dt" || top[0].Frequency != 20 {
		t.Errorf("expected dt with frequency 20, got %s with %d", top[0].Key, top[0].Frequency)
	}
	if top[1].Key != "region" || top[1].Frequency != 10 {
		t.Errorf("expected region with frequency 10, got %s with %d", top[1].Key, top[1].Frequency)
	}

	if got := fs.GetTopKeys(0); len(got) != 0 {
		t.Errorf("expected empty result for n=0, got %v", got)
	}
}

func TestGetTopKeysReturnsCopy(t *testing.T) {
	fs := NewFilterStats(time.Hour)
	fs.RecordPredicate("dt", "=")

	top := fs.GetTopKeys(1)
	top[0].Operators["="] = 100
	top[0].Frequency = 100

	again := fs.GetTopKeys(1)
	if again[0].Frequency != 1 || again[0].Operators["="] != 1 {
		t.Errorf("internal state was modified through returned copy: %+v", again[0])
	}
}

// TestPruneRemovesOldEntries tests that Prune removes entries older than the window.
func TestPruneRemovesOldEntries(t *testing.T) {
	window := 50 * time.Millisecond
	fs := NewFilterStats(window)

	fs.RecordPredicate("old_key", "=")
	time.Sleep(window * 2)
	fs.RecordPredicate("new_key", "=")

	fs.Prune()

	top := fs.GetTopKeys(10)
	if len(top) != 1 || top[0].Key != "new_key" {
		t.Errorf("expected only new_key after prune, got %v", top)
	}
}

func TestRecordFilter(t *testing.T) {
	fs := NewFilterStats(time.Hour)
	expr := parser.MustParse("dt >= 20200101 AND (region IN ('us', 'eu') OR region NOT LIKE 'ap%') AND NOT hour = 3")
	fs.RecordFilter(expr)
	fs.RecordFilter(&parser.AndExpr{Left: &parser.Identifier{Name: "active"}, Right: &parser.MatchAll{}})

	byKey := map[string]KeyStats{}
	for _, s := range fs.GetTopKeys(10) {
		byKey[s.Key] = s
	}

	if byKey["dt"].Operators[">="] != 1 {
		t.Errorf("expected dt >= to be recorded, got %v", byKey["dt"].Operators)
	}
	region := byKey["region"]
	if region.Frequency != 2 || region.Operators["IN"] != 1 || region.Operators["NOT LIKE"] != 1 {
		t.Errorf("unexpected region stats %+v", region)
	}
	if byKey["hour"].Operators["NOT ="] != 1 {
		t.Errorf("expected negated comparison on hour, got %v", byKey["hour"].Operators)
	}
	if byKey["active"].Operators["IS TRUE"] != 1 {
		t.Errorf("expected bare identifier on active, got %v", byKey["active"].Operators)
	}
}

func TestRecordFilterMatchAll(t *testing.T) {
	fs := NewFilterStats(time.Hour)
	fs.RecordFilter(nil)
	fs.RecordFilter(&parser.MatchAll{})
	if got := fs.GetTopKeys(10); len(got) != 0 {
		t.Errorf("match-all filters should record nothing, got %v", got)
	}
}
