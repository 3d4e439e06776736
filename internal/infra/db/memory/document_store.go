// Package memory is a process-local DocumentStore for tests and single-process dev runs.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"blog-job-pipeline/internal/domain"
	"blog-job-pipeline/internal/domain/ports/repository"
)

var _ repository.DocumentStore = (*DocumentStore)(nil)

type DocumentStore struct {
	mu   sync.RWMutex
	data map[string]map[string]repository.Document
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{data: make(map[string]map[string]repository.Document)}
}

// normalize round-trips through JSON so stored values have the same types
// the SQL backends return (float64 numbers, []any, map[string]any).
func normalize(doc repository.Document) (repository.Document, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	var out repository.Document
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = repository.Document{}
	}
	return out, nil
}

func normalizeValue(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if json.Unmarshal(b, &out) != nil {
		return v
	}
	return out
}

func (s *DocumentStore) Put(ctx context.Context, collection, id string, fields repository.Document) error {
	if err := repository.ValidateFields(fields); err != nil {
		return err
	}
	doc, err := normalize(fields)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	coll := s.data[collection]
	if coll == nil {
		coll = make(map[string]repository.Document)
		s.data[collection] = coll
	}
	if _, ok := coll[id]; ok {
		return domain.ErrAlreadyExists
	}
	coll[id] = doc
	return nil
}

func (s *DocumentStore) Get(ctx context.Context, collection, id string) (repository.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.data[collection][id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return normalize(doc)
}

func (s *DocumentStore) Update(ctx context.Context, collection, id string, fields repository.Document) error {
	return s.UpdateIf(ctx, collection, id, nil, fields)
}

func (s *DocumentStore) UpdateIf(ctx context.Context, collection, id string, conds []repository.Filter, fields repository.Document) error {
	if err := repository.ValidateFields(fields); err != nil {
		return err
	}
	if err := repository.ValidateFilters(conds); err != nil {
		return err
	}
	patch, err := normalize(fields)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.data[collection][id]
	if !ok {
		return domain.ErrNotFound
	}
	if !Matches(doc, conds) {
		return domain.ErrPreconditionFailed
	}
	for k, v := range patch {
		doc[k] = v
	}
	return nil
}

func (s *DocumentStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data[collection], id)
	return nil
}

func (s *DocumentStore) DeleteIf(ctx context.Context, collection, id string, conds []repository.Filter) error {
	if err := repository.ValidateFilters(conds); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.data[collection][id]
	if !ok {
		return domain.ErrNotFound
	}
	if !Matches(doc, conds) {
		return domain.ErrPreconditionFailed
	}
	delete(s.data[collection], id)
	return nil
}

func (s *DocumentStore) Query(ctx context.Context, collection string, q repository.Query) ([]repository.Document, error) {
	if err := repository.ValidateQuery(q); err != nil {
		return nil, err
	}
	s.mu.RLock()
	type row struct {
		id  string
		doc repository.Document
	}
	rows := make([]row, 0, len(s.data[collection]))
	for id, doc := range s.data[collection] {
		if Matches(doc, q.Filters) {
			rows = append(rows, row{id: id, doc: doc})
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(rows, func(i, j int) bool {
		if q.OrderBy != "" {
			c, ok := compare(rows[i].doc[q.OrderBy], rows[j].doc[q.OrderBy])
			if ok && c != 0 {
				if q.Desc {
					return c > 0
				}
				return c < 0
			}
		}
		return rows[i].id < rows[j].id
	})
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	out := make([]repository.Document, 0, len(rows))
	for _, r := range rows {
		d, err := normalize(r.doc)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *DocumentStore) Ping(ctx context.Context) error { return nil }

func (s *DocumentStore) Close() error { return nil }

// Matches evaluates filters against a normalized document.
func Matches(doc repository.Document, filters []repository.Filter) bool {
	for _, f := range filters {
		v, present := doc[f.Field]
		want := normalizeValue(f.Value)
		switch f.Op {
		case repository.OpEq:
			if !present || !reflect.DeepEqual(v, want) {
				return false
			}
		case repository.OpNe:
			if present && reflect.DeepEqual(v, want) {
				return false
			}
		case repository.OpIn:
			list, _ := want.([]any)
			found := false
			for _, item := range list {
				if present && reflect.DeepEqual(v, item) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			c, ok := compare(v, want)
			if !present || !ok {
				return false
			}
			switch f.Op {
			case repository.OpLt:
				ok = c < 0
			case repository.OpLte:
				ok = c <= 0
			case repository.OpGt:
				ok = c > 0
			case repository.OpGte:
				ok = c >= 0
			}
			if !ok {
				return false
			}
		}
	}
	return true
}

func compare(a, b any) (int, bool) {
	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	}
	return 0, false
}
