package connector

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/partcat/partcat/internal/errors"
	"github.com/partcat/partcat/pkg/types"
)

// countOnly overrides a single operation on top of the defaults.
type countOnly struct {
	Unimplemented
}

func (countOnly) Capabilities() CapabilitySet {
	return Capabilities(CapPartitionCount)
}

func (countOnly) GetPartitionCount(context.Context, types.QualifiedName) (int, error) {
	return 42, nil
}

var testTable = types.NewTableName("prod", "db", "events")

func TestUnimplementedDefaults(t *testing.T) {
	ctx := context.Background()
	var svc PartitionService = Unimplemented{}

	if svc.Capabilities() != 0 {
		t.Errorf("expected empty capabilities, got %s", svc.Capabilities())
	}

	if _, err := svc.GetPartitions(ctx, testTable, nil, nil, nil); !errors.IsUnsupported(err) {
		t.Errorf("GetPartitions: expected unsupported, got %v", err)
	}
	if _, err := svc.SavePartitions(ctx, testTable, &types.PartitionsSaveRequest{}); !errors.IsUnsupported(err) {
		t.Errorf("SavePartitions: expected unsupported, got %v", err)
	}
	if err := svc.DeletePartitions(ctx, nil); !errors.IsUnsupported(err) {
		t.Errorf("DeletePartitions: expected unsupported, got %v", err)
	}
	if _, err := svc.GetPartitionCount(ctx, testTable); !errors.IsUnsupported(err) {
		t.Errorf("GetPartitionCount: expected unsupported, got %v", err)
	}

	names, err := svc.GetPartitionNames(ctx, []string{"s3://bucket/x"}, true)
	if err != nil || names == nil || len(names) != 0 {
		t.Errorf("GetPartitionNames: expected empty map, got %v, %v", names, err)
	}
	keys, err := svc.GetPartitionKeys(ctx, testTable, nil, nil, nil)
	if err != nil || keys == nil || len(keys.Items) != 0 || keys.HasMore() {
		t.Errorf("GetPartitionKeys: expected empty page, got %v, %v", keys, err)
	}
	uris, err := svc.GetPartitionURIs(ctx, testTable, nil, nil, nil)
	if err != nil || uris == nil || len(uris.Items) != 0 || uris.HasMore() {
		t.Errorf("GetPartitionURIs: expected empty page, got %v, %v", uris, err)
	}
}

func TestUnsupportedIsNotRetryable(t *testing.T) {
	_, err := Unimplemented{}.GetPartitions(context.Background(), testTable, nil, nil, nil)
	if errors.IsRetryable(err) {
		t.Error("unsupported operations must not be retryable")
	}
	if errors.GetCategory(err) != errors.ErrCategoryConnector {
		t.Errorf("expected CONNECTOR category, got %s", errors.GetCategory(err))
	}
}

func TestEmbeddedOverride(t *testing.T) {
	svc := countOnly{}
	n, err := svc.GetPartitionCount(context.Background(), testTable)
	if err != nil || n != 42 {
		t.Errorf("expected override to answer 42, got %d, %v", n, err)
	}
	if _, err := svc.GetPartitions(context.Background(), testTable, nil, nil, nil); !errors.IsUnsupported(err) {
		t.Errorf("non-overridden operation should keep the default, got %v", err)
	}
	if !svc.Capabilities().Has(CapPartitionCount) || svc.Capabilities().Has(CapGetPartitions) {
		t.Errorf("unexpected capabilities %s", svc.Capabilities())
	}
}

func TestCapabilitySet(t *testing.T) {
	s := Capabilities(CapGetPartitions, CapPartitionURIs)
	if !s.Has(CapGetPartitions) || !s.Has(CapPartitionURIs) || s.Has(CapSavePartitions) {
		t.Errorf("unexpected membership in %s", s)
	}
	if got := s.String(); got != "[getPartitions,getPartitionUris]" {
		t.Errorf("unexpected string %q", got)
	}
	if len(CapAll.Names()) != 7 {
		t.Errorf("expected 7 capabilities in CapAll, got %v", CapAll.Names())
	}
}

// The shortcut the dispatcher takes for undeclared operations must agree
// with what the embedded defaults would have returned.
func TestProperty_DefaultResultMatchesUnimplemented(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	all := []Capability{CapGetPartitions, CapSavePartitions, CapDeletePartitions, CapPartitionCount,
		CapPartitionNames, CapPartitionKeys, CapPartitionURIs}

	properties.Property("DefaultResult agrees with Unimplemented", prop.ForAll(
		func(idx int) bool {
			c := all[idx]
			ctx := context.Background()
			var got error
			u := Unimplemented{}
			switch c {
			case CapGetPartitions:
				_, got = u.GetPartitions(ctx, testTable, nil, nil, nil)
			case CapSavePartitions:
				_, got = u.SavePartitions(ctx, testTable, nil)
			case CapDeletePartitions:
				got = u.DeletePartitions(ctx, nil)
			case CapPartitionCount:
				_, got = u.GetPartitionCount(ctx, testTable)
			case CapPartitionNames:
				_, got = u.GetPartitionNames(ctx, nil, false)
			case CapPartitionKeys:
				_, got = u.GetPartitionKeys(ctx, testTable, nil, nil, nil)
			case CapPartitionURIs:
				_, got = u.GetPartitionURIs(ctx, testTable, nil, nil, nil)
			}
			want := DefaultResult(c)
			if want == nil || got == nil {
				return want == nil && got == nil
			}
			return errors.GetCode(want) == errors.GetCode(got) && want.Error() == got.Error()
		},
		gen.IntRange(0, len(all)-1),
	))

	properties.TestingRun(t)
}
