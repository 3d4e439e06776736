package repository

import (
	"context"
	"fmt"
	"regexp"

	"blog-job-pipeline/internal/domain"
)

// Document is a JSON-compatible set of top-level fields.
type Document map[string]any

type FilterOp string

const (
	OpEq  FilterOp = "eq"
	OpNe  FilterOp = "ne"
	OpLt  FilterOp = "lt"
	OpLte FilterOp = "lte"
	OpGt  FilterOp = "gt"
	OpGte FilterOp = "gte"
	OpIn  FilterOp = "in" // Value is a []any
)

type Filter struct {
	Field string
	Op    FilterOp
	Value any
}

type Query struct {
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int // 0 means unlimited
}

// DocumentStore is the persistence port for schemaless records.
//
// Transport failures are returned wrapping domain.ErrStoreUnavailable and are
// never retried here; callers decide.
type DocumentStore interface {
	// Put creates a document; domain.ErrAlreadyExists when id is taken.
	Put(ctx context.Context, collection, id string, fields Document) error
	// Get returns domain.ErrNotFound when id is absent.
	Get(ctx context.Context, collection, id string) (Document, error)
	// Update merges fields at the top level; domain.ErrNotFound when id is absent.
	Update(ctx context.Context, collection, id string, fields Document) error
	// UpdateIf merges fields only when every condition holds on the stored
	// document; domain.ErrPreconditionFailed otherwise.
	UpdateIf(ctx context.Context, collection, id string, conds []Filter, fields Document) error
	// Delete is idempotent.
	Delete(ctx context.Context, collection, id string) error
	// DeleteIf removes the document only when every condition holds on the
	// stored copy; domain.ErrNotFound when absent, domain.ErrPreconditionFailed
	// when a condition is false.
	DeleteIf(ctx context.Context, collection, id string, conds []Filter) error
	Query(ctx context.Context, collection string, q Query) ([]Document, error)
	Ping(ctx context.Context) error
	Close() error
}

var fieldNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateQuery checks field names and operators before they reach a backend.
func ValidateQuery(q Query) error {
	if q.OrderBy != "" && !fieldNameRe.MatchString(q.OrderBy) {
		return fmt.Errorf("%w: bad order field %q", domain.ErrInvalidArgument, q.OrderBy)
	}
	return ValidateFilters(q.Filters)
}

func ValidateFilters(fs []Filter) error {
	for _, f := range fs {
		if !fieldNameRe.MatchString(f.Field) {
			return fmt.Errorf("%w: bad filter field %q", domain.ErrInvalidArgument, f.Field)
		}
		switch f.Op {
		case OpEq, OpNe, OpLt, OpLte, OpGt, OpGte:
		case OpIn:
			if _, ok := f.Value.([]any); !ok {
				return fmt.Errorf("%w: %q needs a list value", domain.ErrInvalidArgument, f.Field)
			}
		default:
			return fmt.Errorf("%w: unknown operator %q", domain.ErrInvalidArgument, f.Op)
		}
	}
	return nil
}

func ValidateFields(doc Document) error {
	for k := range doc {
		if !fieldNameRe.MatchString(k) {
			return fmt.Errorf("%w: bad field name %q", domain.ErrInvalidArgument, k)
		}
	}
	return nil
}
