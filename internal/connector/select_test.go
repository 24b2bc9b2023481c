package connector

import (
	"testing"

	"github.com/partcat/partcat/pkg/types"
)

func names(parts []types.PartitionDto) []string {
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = p.Name.PartitionName
	}
	return out
}

func TestSelect(t *testing.T) {
	parts := makePartitions(6)
	pr, err := PrepareRequest(testTable, &types.GetPartitionsRequest{Filter: "dt > 20200102 AND region IN ('us', 'eu')"}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := names(Select(pr, parts))
	want := []string{"dt=20200104/region=us", "dt=20200105/region=eu"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
	if pr.EvalStats().Visited == 0 {
		t.Error("expected evaluator statistics to be recorded")
	}
}

func TestSelectWithNames(t *testing.T) {
	parts := makePartitions(3)
	pr, _ := PrepareRequest(testTable, &types.GetPartitionsRequest{
		PartitionNames:  []string{"dt=20200102"},
		PartialKeyMatch: true,
	}, nil, nil)
	got := names(Select(pr, parts))
	if len(got) != 1 || got[0] != "dt=20200102/region=eu" {
		t.Errorf("unexpected selection %v", got)
	}
}

func TestSortPartitions(t *testing.T) {
	parts := []types.PartitionDto{
		{Name: types.NewPartitionName(testTable, "hour=10"), Location: "s3://c"},
		{Name: types.NewPartitionName(testTable, "hour=9"), Location: "s3://a"},
		{Name: types.NewPartitionName(testTable, "hour=100"), Location: "s3://b"},
	}

	SortPartitions(parts, types.Sort{Field: "hour"})
	if got := names(parts); got[0] != "hour=9" || got[1] != "hour=10" || got[2] != "hour=100" {
		t.Errorf("key sort should be numeric, got %v", got)
	}

	SortPartitions(parts, types.Sort{Field: types.SortFieldName})
	if got := names(parts); got[0] != "hour=10" || got[1] != "hour=100" || got[2] != "hour=9" {
		t.Errorf("name sort should be lexicographic, got %v", got)
	}

	SortPartitions(parts, types.Sort{Field: types.SortFieldURI, Order: types.SortDescending})
	if parts[0].Location != "s3://c" || parts[2].Location != "s3://a" {
		t.Errorf("uri sort descending out of order: %v", names(parts))
	}
}

func TestSortByCreatedAt(t *testing.T) {
	parts := makePartitions(4)
	SortPartitions(parts, types.Sort{Field: types.SortFieldCreatedAt})
	// makePartitions creates later names with earlier timestamps.
	if parts[0].Name.PartitionName != "dt=20200104/region=us" {
		t.Errorf("expected newest name first by creation time, got %v", names(parts))
	}
}

func TestProject(t *testing.T) {
	p := makePartitions(1)[0]

	pr := &Request{}
	if got := Project(pr, p); got.Metadata != nil || got.Location == "" {
		t.Errorf("default projection should drop metadata and keep location, got %+v", got)
	}

	pr = &Request{IncludeMetadata: true, ExcludeLocation: true}
	got := Project(pr, p)
	if got.Metadata["owner"] != "etl" || got.Location != "" {
		t.Errorf("unexpected projection %+v", got)
	}
	if p.Location == "" || p.Metadata == nil {
		t.Error("projection must not modify the original")
	}
}

func TestMatchURI(t *testing.T) {
	if !MatchURI("s3://b/db/t/dt=1", "s3://b/db/t/dt=1", false) {
		t.Error("exact match expected")
	}
	if MatchURI("s3://b/db/t/dt=1", "s3://b/db/t", false) {
		t.Error("prefix must not match without prefix search")
	}
	if !MatchURI("s3://b/db/t/dt=1", "s3://b/db/t", true) {
		t.Error("prefix match expected")
	}
	if MatchURI("", "", true) {
		t.Error("partitions without location never match")
	}
}
