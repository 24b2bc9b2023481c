// Package connector defines the partition contract every catalog backend
// implements, plus the request, filtering, sorting and paging helpers that
// backends share so results look the same whichever backend served them.
package connector

import (
	"context"
	"strings"

	"github.com/partcat/partcat/internal/errors"
	"github.com/partcat/partcat/pkg/types"
)

// PartitionService is the partition surface of a connector. Implementations
// must be safe for concurrent use; the dispatcher calls them from many
// goroutines and never retries a failed call.
type PartitionService interface {
	// Capabilities declares which operations the connector implements.
	Capabilities() CapabilitySet

	// GetPartitions returns the partitions of table that satisfy req,
	// sorted and paged.
	GetPartitions(ctx context.Context, table types.QualifiedName, req *types.GetPartitionsRequest, sort *types.Sort, page *types.Pageable) (*types.Page[types.PartitionDto], error)

	// SavePartitions drops, adds and alters partitions of table in one
	// logical unit. Drops are applied first.
	SavePartitions(ctx context.Context, table types.QualifiedName, req *types.PartitionsSaveRequest) (*types.PartitionsSaveResponse, error)

	// DeletePartitions removes the named partitions. Failures of individual
	// partitions are reported through *errors.BatchError.
	DeletePartitions(ctx context.Context, partitions []types.QualifiedName) error

	// GetPartitionCount returns the number of partitions of table.
	GetPartitionCount(ctx context.Context, table types.QualifiedName) (int, error)

	// GetPartitionNames maps storage URIs back to the partitions located
	// there. With prefixSearch, every partition whose location starts with
	// a URI is returned for it.
	GetPartitionNames(ctx context.Context, uris []string, prefixSearch bool) (map[string][]types.QualifiedName, error)

	// GetPartitionKeys returns the names of the matching partitions.
	GetPartitionKeys(ctx context.Context, table types.QualifiedName, req *types.GetPartitionsRequest, sort *types.Sort, page *types.Pageable) (*types.Page[string], error)

	// GetPartitionURIs returns the storage locations of the matching partitions.
	GetPartitionURIs(ctx context.Context, table types.QualifiedName, req *types.GetPartitionsRequest, sort *types.Sort, page *types.Pageable) (*types.Page[string], error)
}

// Capability is one operation of the partition contract.
type Capability uint16

const (
	CapGetPartitions Capability = 1 << iota
	CapSavePartitions
	CapDeletePartitions
	CapPartitionCount
	CapPartitionNames
	CapPartitionKeys
	CapPartitionURIs
)

// CapAll is every capability.
const CapAll = CapabilitySet(CapGetPartitions | CapSavePartitions | CapDeletePartitions | CapPartitionCount |
	CapPartitionNames | CapPartitionKeys | CapPartitionURIs)

var capabilityNames = []struct {
	cap  Capability
	name string
}{
	{CapGetPartitions, "getPartitions"},
	{CapSavePartitions, "savePartitions"},
	{CapDeletePartitions, "deletePartitions"},
	{CapPartitionCount, "getPartitionCount"},
	{CapPartitionNames, "getPartitionNames"},
	{CapPartitionKeys, "getPartitionKeys"},
	{CapPartitionURIs, "getPartitionUris"},
}

// String returns the operation name of a single capability.
func (c Capability) String() string {
	for _, n := range capabilityNames {
		if n.cap == c {
			return n.name
		}
	}
	return "unknown"
}

// CapabilitySet is the set of operations a connector implements.
type CapabilitySet Capability

// Capabilities builds a set from individual capabilities.
func Capabilities(caps ...Capability) CapabilitySet {
	var s CapabilitySet
	for _, c := range caps {
		s |= CapabilitySet(c)
	}
	return s
}

// Has reports whether c is in the set.
func (s CapabilitySet) Has(c Capability) bool {
	return s&CapabilitySet(c) != 0
}

// Names returns the operation names in the set.
func (s CapabilitySet) Names() []string {
	var names []string
	for _, n := range capabilityNames {
		if s.Has(n.cap) {
			names = append(names, n.name)
		}
	}
	return names
}

// String renders the set as a comma-separated list of operation names.
func (s CapabilitySet) String() string {
	return "[" + strings.Join(s.Names(), ",") + "]"
}

// Unimplemented provides the default behaviour of every operation. Embed it
// in a connector and override what the backend supports. Mutating
// operations and lookups that must return data fail with an
// unsupported-operation error; reverse lookups and listings return empty
// results.
type Unimplemented struct{}

// Capabilities returns the empty set.
func (Unimplemented) Capabilities() CapabilitySet {
	return 0
}

func (Unimplemented) GetPartitions(context.Context, types.QualifiedName, *types.GetPartitionsRequest, *types.Sort, *types.Pageable) (*types.Page[types.PartitionDto], error) {
	return nil, errors.NewUnsupportedOperation(CapGetPartitions.String())
}

func (Unimplemented) SavePartitions(context.Context, types.QualifiedName, *types.PartitionsSaveRequest) (*types.PartitionsSaveResponse, error) {
	return nil, errors.NewUnsupportedOperation(CapSavePartitions.String())
}

func (Unimplemented) DeletePartitions(context.Context, []types.QualifiedName) error {
	return errors.NewUnsupportedOperation(CapDeletePartitions.String())
}

func (Unimplemented) GetPartitionCount(context.Context, types.QualifiedName) (int, error) {
	return 0, errors.NewUnsupportedOperation(CapPartitionCount.String())
}

func (Unimplemented) GetPartitionNames(context.Context, []string, bool) (map[string][]types.QualifiedName, error) {
	return map[string][]types.QualifiedName{}, nil
}

func (Unimplemented) GetPartitionKeys(context.Context, types.QualifiedName, *types.GetPartitionsRequest, *types.Sort, *types.Pageable) (*types.Page[string], error) {
	return &types.Page[string]{Items: []string{}}, nil
}

func (Unimplemented) GetPartitionURIs(context.Context, types.QualifiedName, *types.GetPartitionsRequest, *types.Sort, *types.Pageable) (*types.Page[string], error) {
	return &types.Page[string]{Items: []string{}}, nil
}

// DefaultResult reproduces the outcome of the Unimplemented default for an
// operation the connector does not declare. The dispatcher uses it to answer
// without calling the connector.
func DefaultResult(c Capability) error {
	switch c {
	case CapPartitionNames, CapPartitionKeys, CapPartitionURIs:
		return nil
	default:
		return errors.NewUnsupportedOperation(c.String())
	}
}

var _ PartitionService = Unimplemented{}
