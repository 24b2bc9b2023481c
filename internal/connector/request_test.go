package connector

import (
	"testing"

	"github.com/partcat/partcat/internal/errors"
	"github.com/partcat/partcat/internal/filter/parser"
	"github.com/partcat/partcat/pkg/types"
)

func TestPrepareRequest(t *testing.T) {
	req := &types.GetPartitionsRequest{Filter: "dt > 20200101"}
	pr, err := PrepareRequest(testTable, req, &types.Sort{Field: "dt", Order: "desc"}, &types.Pageable{Offset: 3, Limit: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := pr.Expr.(*parser.CompareExpr); !ok {
		t.Errorf("expected parsed comparison, got %T", pr.Expr)
	}
	if pr.Sort.Field != "dt" || pr.Sort.Order != types.SortDescending {
		t.Errorf("unexpected sort %+v", pr.Sort)
	}
	if pr.Offset != 3 || pr.Limit != 10 {
		t.Errorf("unexpected window offset=%d limit=%d", pr.Offset, pr.Limit)
	}
}

func TestPrepareRequestDefaults(t *testing.T) {
	pr, err := PrepareRequest(testTable, nil, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !parser.IsMatchAll(pr.Expr) {
		t.Errorf("expected MatchAll, got %v", pr.Expr)
	}
	if pr.Sort.Field != types.SortFieldName || pr.Sort.Order != types.SortAscending {
		t.Errorf("unexpected default sort %+v", pr.Sort)
	}
}

func TestPrepareRequestReusesParsedExpression(t *testing.T) {
	expr := parser.MustParse("region = 'us'")
	pr, err := PrepareRequest(testTable, &types.GetPartitionsRequest{Filter: "this is not parsed (", Expr: expr}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pr.Expr != expr {
		t.Error("expected the pre-parsed expression to be reused")
	}
}

func TestPrepareRequestErrors(t *testing.T) {
	tests := []struct {
		name  string
		table types.QualifiedName
		req   *types.GetPartitionsRequest
		sort  *types.Sort
		page  *types.Pageable
		code  string
	}{
		{"syntax error", testTable, &types.GetPartitionsRequest{Filter: "dt >"}, nil, nil, errors.CodeSyntaxError},
		{"not a table", types.QualifiedName{CatalogName: "prod"}, nil, nil, nil, errors.CodeInvalidQualifiedName},
		{"negative limit", testTable, nil, nil, &types.Pageable{Limit: -1}, errors.CodeInvalidRequest},
		{"bad sort order", testTable, nil, &types.Sort{Field: "name", Order: "sideways"}, nil, errors.CodeInvalidRequest},
		{"empty partition name", testTable, &types.GetPartitionsRequest{PartitionNames: []string{""}}, nil, nil, errors.CodeInvalidRequest},
		{"garbage token", testTable, nil, nil, &types.Pageable{Token: "!!"}, errors.CodeInvalidPageToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PrepareRequest(tt.table, tt.req, tt.sort, tt.page)
			if err == nil {
				t.Fatal("expected error")
			}
			if errors.GetCode(err) != tt.code {
				t.Errorf("expected code %s, got %s (%v)", tt.code, errors.GetCode(err), err)
			}
		})
	}
}

func TestMatchesNames(t *testing.T) {
	tests := []struct {
		name    string
		names   []string
		partial bool
		want    bool
	}{
		{"dt=1/region=us", nil, false, true},
		{"dt=1/region=us", []string{"dt=1/region=us"}, false, true},
		{"dt=1/region=us", []string{"dt=1"}, false, false},
		{"dt=1/region=us", []string{"dt=1"}, true, true},
		{"dt=10/region=us", []string{"dt=1"}, true, false},
		{"dt=1", []string{"dt=1"}, true, true},
		{"dt=2", []string{"dt=1", "dt=2"}, false, true},
	}
	for _, tt := range tests {
		if got := MatchesNames(tt.name, tt.names, tt.partial); got != tt.want {
			t.Errorf("MatchesNames(%q, %v, %v): expected %v, got %v", tt.name, tt.names, tt.partial, tt.want, got)
		}
	}
}

func TestPrepareSave(t *testing.T) {
	req := &types.PartitionsSaveRequest{
		Partitions: []types.PartitionDto{
			{Name: types.QualifiedName{PartitionName: "dt=20200101/region=us"}, Location: "s3://b/t/dt=20200101/region=us"},
			{Name: types.NewPartitionName(testTable, "dt=20200102/region=eu")},
		},
	}
	parts, err := PrepareSave(testTable, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parts[0].Name.Table() != testTable {
		t.Errorf("expected name qualified by table, got %s", parts[0].Name)
	}
	if v, ok := parts[1].Keys.Get("region"); !ok || v != "eu" {
		t.Errorf("expected keys derived from name, got %v", parts[1].Keys)
	}

	bad := []*types.PartitionsSaveRequest{
		nil,
		{Partitions: []types.PartitionDto{{Name: types.QualifiedName{PartitionName: "no-equals"}}}},
		{Partitions: []types.PartitionDto{{Name: types.NewPartitionName(types.NewTableName("prod", "db", "other"), "dt=1")}}},
		{Partitions: []types.PartitionDto{{Name: types.QualifiedName{PartitionName: "dt=1"}}, {Name: types.QualifiedName{PartitionName: "dt=1"}}}},
		{PartitionIdsForDeletes: []string{"bad"}},
	}
	for i, r := range bad {
		if _, err := PrepareSave(testTable, r); errors.GetCategory(err) != errors.ErrCategoryValidation {
			t.Errorf("case %d: expected validation error, got %v", i, err)
		}
	}
}
