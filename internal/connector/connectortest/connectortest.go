// Package connectortest provides fixtures and a read-path parity check
// shared by the connector test suites.
package connectortest

import (
	"context"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/partcat/partcat/internal/connector"
	"github.com/partcat/partcat/pkg/types"
)

// Regions cycles through the region key of generated partitions.
var Regions = []string{"us", "eu", "ap"}

// Partitions returns n partitions of table named dt=<20200101+i>/region=<r>.
// Every fourth partition also has an hour key. Locations live under
// locationRoot and later partitions have earlier creation times.
func Partitions(table types.QualifiedName, n int, locationRoot string) []types.PartitionDto {
	parts := make([]types.PartitionDto, n)
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range parts {
		name := fmt.Sprintf("dt=%d/region=%s", 20200101+i, Regions[i%len(Regions)])
		if i%4 == 0 {
			name += fmt.Sprintf("/hour=%d", i%24)
		}
		kv, _ := types.ParsePartitionName(name)
		parts[i] = types.PartitionDto{
			Name:      types.NewPartitionName(table, name),
			Keys:      kv,
			Location:  locationRoot + "/" + name,
			Metadata:  map[string]string{"owner": "etl", "index": fmt.Sprint(i)},
			CreatedAt: base.Add(time.Duration(n-i) * time.Hour),
		}
	}
	return parts
}

// Filters exercise every node type, coercion path and missing keys.
var Filters = []string{
	"",
	"dt > 20200103",
	"dt >= 20200102 AND dt <= 20200105",
	"20200104 < dt",
	"region = 'us'",
	"region != 'us'",
	"region IN ('us', 'ap')",
	"region NOT IN ('us')",
	"region LIKE 'e%'",
	"region NOT LIKE '_s'",
	"hour = 0 OR hour = 4",
	"NOT hour = 0",
	"hour > 3",
	"dt = 20200101 OR region = 'eu' AND dt > 20200106",
	"(dt = 20200101 OR region = 'eu') AND dt > 20200106",
	"region > 'b' AND region < 'v'",
	"dt = 'abc'",
	"dt = 20200101.0",
	"missing = 1 OR NOT missing = 1",
}

// Sorts are the sort directives the parity check runs with.
var Sorts = []*types.Sort{
	nil,
	{Field: types.SortFieldName, Order: types.SortDescending},
	{Field: types.SortFieldURI},
	{Field: "dt", Order: types.SortDescending},
	{Field: "region"},
	{Field: "hour"},
}

// CheckParity asserts that svc returns, for every filter and sort, exactly
// the partitions the shared in-memory pipeline selects from want, and that
// walking pages of size 2 yields the same sequence.
func CheckParity(t *testing.T, svc connector.PartitionService, table types.QualifiedName, want []types.PartitionDto) {
	t.Helper()
	ctx := context.Background()

	for _, filter := range Filters {
		for _, sort := range Sorts {
			req := &types.GetPartitionsRequest{Filter: filter}
			pr, err := connector.PrepareRequest(table, req, sort, nil)
			if err != nil {
				t.Fatalf("filter %q: prepare: %v", filter, err)
			}
			expected := Names(connector.Apply(pr, want).Items)

			page, err := svc.GetPartitions(ctx, table, req, sort, nil)
			if err != nil {
				t.Fatalf("filter %q sort %v: unexpected error: %v", filter, sort, err)
			}
			if got := Names(page.Items); !reflect.DeepEqual(got, expected) {
				t.Errorf("filter %q sort %v:\n got  %v\n want %v", filter, sort, got, expected)
				continue
			}

			if got := walkPages(t, svc, table, req, sort); !reflect.DeepEqual(got, expected) {
				t.Errorf("filter %q sort %v paged:\n got  %v\n want %v", filter, sort, got, expected)
			}
		}
	}
}

func walkPages(t *testing.T, svc connector.PartitionService, table types.QualifiedName, req *types.GetPartitionsRequest, sort *types.Sort) []string {
	t.Helper()
	got := []string{}
	page := &types.Pageable{Limit: 2}
	for calls := 0; ; calls++ {
		if calls > 100 {
			t.Fatal("pagination did not terminate")
		}
		keys, err := svc.GetPartitionKeys(context.Background(), table, req, sort, page)
		if err != nil {
			t.Fatalf("paged keys: %v", err)
		}
		if len(keys.Items) > 2 {
			t.Fatalf("page larger than limit: %v", keys.Items)
		}
		got = append(got, keys.Items...)
		if !keys.HasMore() {
			return got
		}
		page = &types.Pageable{Limit: 2, Token: keys.NextToken}
	}
}

// Names returns the partition names of parts in order.
func Names(parts []types.PartitionDto) []string {
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = p.Name.PartitionName
	}
	return out
}
