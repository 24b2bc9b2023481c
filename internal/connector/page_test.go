package connector

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/partcat/partcat/internal/errors"
	"github.com/partcat/partcat/pkg/types"
)

func TestPageTokenRoundTrip(t *testing.T) {
	for _, offset := range []int{0, 1, 127, 128, 1 << 20} {
		token := DefaultTokenCodec.Encode(0xdeadbeef, offset)
		got, err := DefaultTokenCodec.Decode(token, 0xdeadbeef)
		if err != nil {
			t.Fatalf("offset %d: unexpected error: %v", offset, err)
		}
		if got != offset {
			t.Errorf("expected offset %d, got %d", offset, got)
		}
	}
}

func TestPageTokenRejectsOtherQuery(t *testing.T) {
	token := DefaultTokenCodec.Encode(1, 10)
	if _, err := DefaultTokenCodec.Decode(token, 2); errors.GetCode(err) != errors.CodeInvalidPageToken {
		t.Errorf("expected INVALID_PAGE_TOKEN, got %v", err)
	}

	other := PageTokenCodec{version: 9}
	if _, err := DefaultTokenCodec.Decode(other.Encode(1, 10), 1); errors.GetCode(err) != errors.CodeInvalidPageToken {
		t.Errorf("expected version mismatch to be rejected, got %v", err)
	}
}

func TestFingerprint(t *testing.T) {
	pr1, _ := PrepareRequest(testTable, &types.GetPartitionsRequest{Filter: "dt>1"}, nil, nil)
	pr2, _ := PrepareRequest(testTable, &types.GetPartitionsRequest{Filter: "dt > 1"}, nil, nil)
	pr3, _ := PrepareRequest(testTable, &types.GetPartitionsRequest{Filter: "dt > 2"}, nil, nil)
	if pr1.fingerprint != pr2.fingerprint {
		t.Error("equivalent filters should share a fingerprint")
	}
	if pr1.fingerprint == pr3.fingerprint {
		t.Error("different filters should not share a fingerprint")
	}
}

func makePartitions(n int) []types.PartitionDto {
	parts := make([]types.PartitionDto, n)
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range parts {
		name := fmt.Sprintf("dt=%d/region=%s", 20200101+i, []string{"us", "eu", "ap"}[i%3])
		parts[i] = types.PartitionDto{
			Name:      types.NewPartitionName(testTable, name),
			Location:  "s3://bucket/db/events/" + name,
			Metadata:  map[string]string{"owner": "etl"},
			CreatedAt: base.Add(time.Duration(n-i) * time.Hour),
		}
	}
	return parts
}

func TestPaginateWalksAllPages(t *testing.T) {
	parts := makePartitions(7)

	var seen []string
	page := &types.Pageable{Limit: 3}
	for calls := 0; ; calls++ {
		if calls > 5 {
			t.Fatal("pagination did not terminate")
		}
		pr, err := PrepareRequest(testTable, nil, nil, page)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		result := Apply(pr, parts)
		for _, p := range result.Items {
			seen = append(seen, p.Name.PartitionName)
		}
		if !result.HasMore() {
			break
		}
		page = &types.Pageable{Limit: 3, Token: result.NextToken}
	}

	if len(seen) != 7 {
		t.Fatalf("expected 7 partitions over all pages, got %d", len(seen))
	}
	for i := 1; i < len(seen); i++ {
		if seen[i-1] >= seen[i] {
			t.Errorf("pages out of order at %d: %s >= %s", i, seen[i-1], seen[i])
		}
	}
}

func TestPaginateBounds(t *testing.T) {
	items := []string{"a", "b", "c"}
	tests := []struct {
		offset, limit int
		want          int
		more          bool
	}{
		{0, 0, 3, false},
		{0, 3, 3, false},
		{0, 2, 2, true},
		{2, 5, 1, false},
		{5, 1, 0, false},
		{1, math.MaxInt, 2, false},
		{0, math.MaxInt, 3, false},
	}
	for _, tt := range tests {
		pr := &Request{Offset: tt.offset, Limit: tt.limit}
		page := Paginate(pr, items)
		if len(page.Items) != tt.want || page.HasMore() != tt.more {
			t.Errorf("offset=%d limit=%d: got %d items more=%v", tt.offset, tt.limit, len(page.Items), page.HasMore())
		}
	}
}

func TestPaginateLargestLimit(t *testing.T) {
	pr, err := PrepareRequest(testTable, nil, &types.Sort{Field: "dt"}, &types.Pageable{Offset: 1, Limit: math.MaxInt})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	page := Apply(pr, makePartitions(3))
	if len(page.Items) != 2 || page.HasMore() {
		t.Errorf("expected the last 2 partitions and no token, got %d items, token %q", len(page.Items), page.NextToken)
	}
}

func TestTokenFromOtherFilterRejected(t *testing.T) {
	pr, _ := PrepareRequest(testTable, &types.GetPartitionsRequest{Filter: "dt > 1"}, nil, &types.Pageable{Limit: 1})
	page := Apply(pr, makePartitions(3))
	if !page.HasMore() {
		t.Fatal("expected a continuation token")
	}
	_, err := PrepareRequest(testTable, &types.GetPartitionsRequest{Filter: "dt > 2"}, nil, &types.Pageable{Limit: 1, Token: page.NextToken})
	if errors.GetCode(err) != errors.CodeInvalidPageToken {
		t.Errorf("expected INVALID_PAGE_TOKEN, got %v", err)
	}
}
