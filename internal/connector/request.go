package connector

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/partcat/partcat/internal/errors"
	"github.com/partcat/partcat/internal/filter/eval"
	"github.com/partcat/partcat/internal/filter/parser"
	"github.com/partcat/partcat/pkg/types"
)

var validate = validator.New()

// Request is a validated partition request with its filter parsed and its
// continuation token resolved to an offset.
type Request struct {
	Table           types.QualifiedName
	Expr            parser.Expression
	Names           []string
	PartialKeyMatch bool
	IncludeMetadata bool
	ExcludeLocation bool
	Sort            types.Sort

	// Offset is where the page starts, from the token or the explicit offset.
	Offset int
	// Limit is the page size; 0 means unbounded.
	Limit int

	fingerprint uint64
	evaluator   *eval.Evaluator
}

// PrepareRequest validates a request and parses its filter. A pre-parsed
// expression in req is reused. Syntax errors come back as FILTER/SYNTAX_ERROR
// and invalid fields or tokens as VALIDATION errors.
func PrepareRequest(table types.QualifiedName, req *types.GetPartitionsRequest, sort *types.Sort, page *types.Pageable) (*Request, error) {
	if err := ValidateTable(table); err != nil {
		return nil, err
	}
	if req == nil {
		req = &types.GetPartitionsRequest{}
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	if sort != nil {
		if err := validateStruct(sort); err != nil {
			return nil, err
		}
	}

	expr := req.Expr
	if expr == nil {
		parsed, err := parser.Parse(req.Filter)
		if err != nil {
			return nil, errors.NewSyntaxError(req.Filter, err)
		}
		expr = parsed
	}

	pr := &Request{
		Table:           table.Table(),
		Expr:            expr,
		Names:           req.PartitionNames,
		PartialKeyMatch: req.PartialKeyMatch,
		IncludeMetadata: req.IncludeMetadata,
		ExcludeLocation: req.ExcludeLocation,
		Sort:            types.Sort{Field: sort.SortField(), Order: types.SortAscending},
	}
	if sort.Descending() {
		pr.Sort.Order = types.SortDescending
	}
	pr.fingerprint = Fingerprint(pr.Table, expr, pr.Sort)

	if page != nil {
		if err := validateStruct(page); err != nil {
			return nil, err
		}
		pr.Limit = page.Limit
		pr.Offset = page.Offset
		if page.Token != "" {
			offset, err := DefaultTokenCodec.Decode(page.Token, pr.fingerprint)
			if err != nil {
				return nil, err
			}
			pr.Offset = offset
		}
	}
	return pr, nil
}

// Matches reports whether p passes the name restriction and the filter.
// A Request is used by one goroutine at a time.
func (r *Request) Matches(p types.PartitionDto) bool {
	if !MatchesNames(p.Name.PartitionName, r.Names, r.PartialKeyMatch) {
		return false
	}
	if parser.IsMatchAll(r.Expr) {
		return true
	}
	if r.evaluator == nil {
		r.evaluator = eval.New()
	}
	return r.evaluator.Match(r.Expr, p.KeyValues())
}

// EvalStats returns the evaluator statistics gathered by Matches.
func (r *Request) EvalStats() eval.Stats {
	if r.evaluator == nil {
		return eval.Stats{}
	}
	return r.evaluator.Stats()
}

// MatchesNames applies a partition name restriction. Without names every
// partition passes. With partial matching a name also matches partitions
// nested below it on a '/' boundary.
func MatchesNames(name string, names []string, partial bool) bool {
	if len(names) == 0 {
		return true
	}
	for _, n := range names {
		if name == n {
			return true
		}
		if partial && strings.HasPrefix(name, n) && len(name) > len(n) && name[len(n)] == '/' {
			return true
		}
	}
	return false
}

// ValidateTable checks that name identifies a table.
func ValidateTable(name types.QualifiedName) error {
	if name.CatalogName == "" || name.DatabaseName == "" || name.TableName == "" {
		return errors.NewValidationError(errors.CodeInvalidQualifiedName,
			fmt.Sprintf("%q does not name a table", name.String()))
	}
	return nil
}

// ValidatePartition checks that name identifies a partition.
func ValidatePartition(name types.QualifiedName) error {
	if err := ValidateTable(name); err != nil {
		return err
	}
	if _, err := types.ParsePartitionName(name.PartitionName); err != nil {
		return errors.NewValidationError(errors.CodeInvalidQualifiedName,
			fmt.Sprintf("%q does not name a partition", name.String()))
	}
	return nil
}

// PrepareSave validates a save request and returns its partitions with names
// qualified by table and keys derived from the partition names.
func PrepareSave(table types.QualifiedName, req *types.PartitionsSaveRequest) ([]types.PartitionDto, error) {
	if err := ValidateTable(table); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidRequest, "save request is required")
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	for _, name := range req.PartitionIdsForDeletes {
		if _, err := types.ParsePartitionName(name); err != nil {
			return nil, errors.NewValidationError(errors.CodeInvalidRequest, err.Error())
		}
	}

	table = table.Table()
	seen := make(map[string]struct{}, len(req.Partitions))
	out := make([]types.PartitionDto, 0, len(req.Partitions))
	for _, p := range req.Partitions {
		if p.Name.TableName != "" && p.Name.Table() != table {
			return nil, errors.NewValidationError(errors.CodeInvalidRequest,
				fmt.Sprintf("partition %s does not belong to %s", p.Name, table))
		}
		p.Name = types.NewPartitionName(table, p.Name.PartitionName)
		kv, err := types.ParsePartitionName(p.Name.PartitionName)
		if err != nil {
			return nil, errors.NewValidationError(errors.CodeInvalidRequest, err.Error())
		}
		if _, dup := seen[p.Name.PartitionName]; dup {
			return nil, errors.NewValidationError(errors.CodeInvalidRequest,
				fmt.Sprintf("partition %s appears twice", p.Name.PartitionName))
		}
		seen[p.Name.PartitionName] = struct{}{}
		p.Keys = kv
		out = append(out, p)
	}
	return out, nil
}

func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return errors.NewInternalError("validate request", err)
	}
	fields := make([]string, len(verrs))
	for i, fe := range verrs {
		fields[i] = fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag())
	}
	return errors.NewValidationError(errors.CodeInvalidRequest, strings.Join(fields, "; ")).
		WithDetails(map[string]interface{}{"fields": fields})
}
