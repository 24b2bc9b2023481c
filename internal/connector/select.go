package connector

import (
	"sort"
	"strings"

	"github.com/partcat/partcat/internal/filter/eval"
	"github.com/partcat/partcat/pkg/types"
)

// Select returns the partitions that pass r's name restriction and filter,
// in their original order.
func Select(r *Request, parts []types.PartitionDto) []types.PartitionDto {
	out := make([]types.PartitionDto, 0, len(parts))
	for _, p := range parts {
		if r.Matches(p) {
			out = append(out, p)
		}
	}
	return out
}

// SortPartitions sorts parts in place. Sorting on name, uri or createdAt uses
// that attribute; any other field is a partition key compared with the
// evaluator's coercion rules. Ties are broken by name.
func SortPartitions(parts []types.PartitionDto, s types.Sort) {
	desc := s.Descending()
	field := s.SortField()

	cmp := func(a, b types.PartitionDto) int {
		switch field {
		case types.SortFieldName:
			return strings.Compare(a.Name.PartitionName, b.Name.PartitionName)
		case types.SortFieldURI:
			return strings.Compare(a.Location, b.Location)
		case types.SortFieldCreatedAt:
			return a.CreatedAt.Compare(b.CreatedAt)
		default:
			av, aok := a.KeyValues().Get(field)
			bv, bok := b.KeyValues().Get(field)
			return eval.CompareKeyValues(av, aok, bv, bok)
		}
	}

	sort.SliceStable(parts, func(i, j int) bool {
		c := cmp(parts[i], parts[j])
		if c == 0 {
			c = strings.Compare(parts[i].Name.PartitionName, parts[j].Name.PartitionName)
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}

// Project applies the metadata and location projection of r.
func Project(r *Request, p types.PartitionDto) types.PartitionDto {
	if !r.IncludeMetadata {
		p = p.WithoutMetadata()
	}
	if r.ExcludeLocation {
		p = p.WithoutLocation()
	}
	return p
}

// Apply runs the full in-memory pipeline over every partition of a table:
// select, sort, page and project. Connectors without pushdown use it as is.
func Apply(r *Request, parts []types.PartitionDto) *types.Page[types.PartitionDto] {
	selected := Select(r, parts)
	SortPartitions(selected, r.Sort)
	page := Paginate(r, selected)
	for i := range page.Items {
		page.Items[i] = Project(r, page.Items[i])
	}
	return page
}

// PartitionName returns the partition part of p's name.
func PartitionName(p types.PartitionDto) string {
	return p.Name.PartitionName
}

// PartitionURI returns p's storage location.
func PartitionURI(p types.PartitionDto) string {
	return p.Location
}

// MatchURI reports whether a partition location answers a reverse lookup
// for uri. With prefix, uri may be any leading part of the location.
func MatchURI(location, uri string, prefix bool) bool {
	if location == "" {
		return false
	}
	if prefix {
		return strings.HasPrefix(location, uri)
	}
	return location == uri
}
