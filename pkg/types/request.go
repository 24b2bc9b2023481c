package types

import (
	"strings"

	"github.com/partcat/partcat/internal/filter/parser"
)

// GetPartitionsRequest describes which partitions to return and what to project.
type GetPartitionsRequest struct {
	// Filter is the raw filter expression, e.g. "dt > 20200101 AND region IN ('us','eu')".
	Filter string `json:"filter,omitempty" validate:"max=65536"`

	// Expr is the pre-parsed form of Filter. When set it is used instead of
	// parsing Filter again.
	Expr parser.Expression `json:"-"`

	// PartitionNames restricts the result to the named partitions.
	PartitionNames []string `json:"partitionNames,omitempty" validate:"dive,required"`

	// PartialKeyMatch treats PartitionNames as prefixes on '/' boundaries
	// instead of exact names.
	PartialKeyMatch bool `json:"partialKeyMatch,omitempty"`

	// IncludeMetadata keeps the free-form metadata in the result.
	IncludeMetadata bool `json:"includeMetadata,omitempty"`

	// ExcludeLocation strips storage locations from the result.
	ExcludeLocation bool `json:"excludeLocation,omitempty"`
}

// SortOrder is the direction of a sort.
type SortOrder string

const (
	SortAscending  SortOrder = "ASC"
	SortDescending SortOrder = "DESC"
)

// Sort fields understood by every connector. Any other field is treated as a
// partition key name.
const (
	SortFieldName      = "name"
	SortFieldURI       = "uri"
	SortFieldCreatedAt = "createdAt"
)

// Sort is a passive sort directive.
type Sort struct {
	Field string    `json:"field"`
	Order SortOrder `json:"order,omitempty" validate:"omitempty,oneof=ASC DESC asc desc"`
}

// Descending reports whether the sort is descending.
func (s *Sort) Descending() bool {
	return s != nil && strings.EqualFold(string(s.Order), string(SortDescending))
}

// SortField returns the field to sort on, defaulting to the partition name.
func (s *Sort) SortField() string {
	if s == nil || s.Field == "" {
		return SortFieldName
	}
	return s.Field
}

// Pageable is a passive paging directive: offset/limit, or a continuation
// token returned by a previous page. Limit 0 means no limit.
type Pageable struct {
	Offset int    `json:"offset,omitempty" validate:"gte=0"`
	Limit  int    `json:"limit,omitempty" validate:"gte=0"`
	Token  string `json:"token,omitempty" validate:"max=512"`
}

// Page is one page of results plus a continuation indicator.
type Page[T any] struct {
	Items []T `json:"items"`

	// NextToken is non-empty when more results exist.
	NextToken string `json:"nextToken,omitempty"`
}

// HasMore reports whether another page exists.
func (p *Page[T]) HasMore() bool {
	return p != nil && p.NextToken != ""
}

// PartitionsSaveRequest adds, alters and drops partitions of one table in a
// single logical call.
type PartitionsSaveRequest struct {
	Partitions []PartitionDto `json:"partitions,omitempty"`

	// PartitionIdsForDeletes names partitions to drop before the adds.
	PartitionIdsForDeletes []string `json:"partitionIdsForDeletes,omitempty" validate:"dive,required"`

	// CheckIfExists makes the connector look for existing partitions first.
	// When false, adding an existing partition is an error.
	CheckIfExists bool `json:"checkIfExists,omitempty"`

	// AlterIfExists updates existing partitions instead of skipping them.
	AlterIfExists bool `json:"alterIfExists,omitempty"`
}

// PartitionsSaveResponse reports which partitions were added or updated,
// and which of the requested drops removed an existing partition.
type PartitionsSaveResponse struct {
	Added   []string `json:"added"`
	Updated []string `json:"updated"`
	Dropped []string `json:"dropped,omitempty"`
}
