package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"blog-job-pipeline/internal/domain"
	"blog-job-pipeline/internal/domain/ports/repository"
	"blog-job-pipeline/internal/infra/metrics"
)

var _ repository.DocumentStore = (*DocumentStore)(nil)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
  collection TEXT        NOT NULL,
  id         TEXT        NOT NULL,
  data       JSONB       NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_data_gin ON documents USING GIN (data jsonb_path_ops);
CREATE INDEX IF NOT EXISTS documents_status_idx ON documents (collection, (data->>'status'));`

// DocumentStore keeps every collection in one JSONB table.
type DocumentStore struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewDocumentStore(pool *pgxpool.Pool, tm repository.TransactionManager) *DocumentStore {
	return &DocumentStore{pool: pool, tm: tm}
}

// EnsureSchema creates the documents table and indexes if missing.
func (s *DocumentStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaSQL)
	return mapErr(err)
}

func (s *DocumentStore) Put(ctx context.Context, collection, id string, fields repository.Document) error {
	if err := repository.ValidateFields(fields); err != nil {
		return err
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	const q = `INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)`
	_, err = s.pool.Exec(ctx, q, collection, id, string(b))
	return observe("put", mapErr(err))
}

func (s *DocumentStore) Get(ctx context.Context, collection, id string) (repository.Document, error) {
	const q = `SELECT data FROM documents WHERE collection = $1 AND id = $2`
	var raw []byte
	if err := s.pool.QueryRow(ctx, q, collection, id).Scan(&raw); err != nil {
		return nil, observe("get", mapErr(err))
	}
	doc, err := decode(raw)
	return doc, observe("get", err)
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
	patch, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}

	args := []any{collection, id, string(patch)}
	where, args, err := buildWhere(conds, args)
	if err != nil {
		return err
	}
	q := `UPDATE documents SET data = data || $3::jsonb, updated_at = now()
WHERE collection = $1 AND id = $2` + where

	err = s.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ex, err := getExecutor(s.pool, tx)
		if err != nil {
			return err
		}
		tag, err := ex.Exec(ctx, q, args...)
		if err != nil {
			return mapErr(err)
		}
		if tag.RowsAffected() == 1 {
			return nil
		}
		// tell "missing" apart from "condition false"
		var one int
		err = ex.QueryRow(ctx, `SELECT 1 FROM documents WHERE collection = $1 AND id = $2`, collection, id).Scan(&one)
		if err != nil {
			return mapErr(err)
		}
		return domain.ErrPreconditionFailed
	})
	return observe("update", err)
}

func (s *DocumentStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	return observe("delete", mapErr(err))
}

func (s *DocumentStore) DeleteIf(ctx context.Context, collection, id string, conds []repository.Filter) error {
	if err := repository.ValidateFilters(conds); err != nil {
		return err
	}
	where, args, err := buildWhere(conds, []any{collection, id})
	if err != nil {
		return err
	}
	q := `DELETE FROM documents WHERE collection = $1 AND id = $2` + where

	err = s.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ex, err := getExecutor(s.pool, tx)
		if err != nil {
			return err
		}
		tag, err := ex.Exec(ctx, q, args...)
		if err != nil {
			return mapErr(err)
		}
		if tag.RowsAffected() == 1 {
			return nil
		}
		var one int
		if err := ex.QueryRow(ctx, `SELECT 1 FROM documents WHERE collection = $1 AND id = $2`, collection, id).Scan(&one); err != nil {
			return mapErr(err)
		}
		return domain.ErrPreconditionFailed
	})
	return observe("delete", err)
}

func (s *DocumentStore) Query(ctx context.Context, collection string, q repository.Query) ([]repository.Document, error) {
	if err := repository.ValidateQuery(q); err != nil {
		return nil, err
	}
	args := []any{collection}
	where, args, err := buildWhere(q.Filters, args)
	if err != nil {
		return nil, err
	}
	var sb strings.Builder
	sb.WriteString(`SELECT data FROM documents WHERE collection = $1`)
	sb.WriteString(where)
	if q.OrderBy != "" {
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&sb, " ORDER BY data->'%s' %s NULLS LAST, id", q.OrderBy, dir)
	} else {
		sb.WriteString(" ORDER BY id")
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sb.WriteString(" LIMIT $" + strconv.Itoa(len(args)))
	}

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, observe("query", mapErr(err))
	}
	defer rows.Close()

	var out []repository.Document
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, observe("query", mapErr(err))
		}
		doc, err := decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, observe("query", mapErr(rows.Err()))
}

// Ping checks connectivity and refreshes pool gauges.
func (s *DocumentStore) Ping(ctx context.Context) error {
	st := s.pool.Stat()
	metrics.SetDBPoolStats(st.TotalConns(), st.IdleConns(), st.AcquiredConns())
	return mapErr(s.pool.Ping(ctx))
}

func (s *DocumentStore) Close() error {
	s.pool.Close()
	return nil
}

// buildWhere renders filters as jsonb comparisons. Field names are validated
// by the caller, values always travel as parameters.
func buildWhere(filters []repository.Filter, args []any) (string, []any, error) {
	var sb strings.Builder
	next := func(v any) (string, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
		}
		args = append(args, string(b))
		return "$" + strconv.Itoa(len(args)) + "::jsonb", nil
	}
	for _, f := range filters {
		col := fmt.Sprintf("data->'%s'", f.Field)
		switch f.Op {
		case repository.OpIn:
			list := f.Value.([]any)
			if len(list) == 0 {
				sb.WriteString(" AND FALSE")
				continue
			}
			ph := make([]string, 0, len(list))
			for _, v := range list {
				p, err := next(v)
				if err != nil {
					return "", nil, err
				}
				ph = append(ph, p)
			}
			fmt.Fprintf(&sb, " AND %s IN (%s)", col, strings.Join(ph, ", "))
		case repository.OpNe:
			p, err := next(f.Value)
			if err != nil {
				return "", nil, err
			}
			fmt.Fprintf(&sb, " AND (%s IS NULL OR %s <> %s)", col, col, p)
		default:
			p, err := next(f.Value)
			if err != nil {
				return "", nil, err
			}
			fmt.Fprintf(&sb, " AND %s %s %s", col, sqlOp(f.Op), p)
		}
	}
	return sb.String(), args, nil
}

func sqlOp(op repository.FilterOp) string {
	switch op {
	case repository.OpLt:
		return "<"
	case repository.OpLte:
		return "<="
	case repository.OpGt:
		return ">"
	case repository.OpGte:
		return ">="
	}
	return "="
}

func decode(raw []byte) (repository.Document, error) {
	var doc repository.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// mapErr translates driver errors into domain errors. Anything that is not a
// server-side SQL error is treated as a transport failure.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return domain.ErrAlreadyExists
		case strings.HasPrefix(pgErr.Code, "08"), pgErr.Code == "57P01", pgErr.Code == "57P03", pgErr.Code == "53300":
			return fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, pgErr.Message)
		}
		return fmt.Errorf("postgres: %w", err)
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}

func observe(op string, err error) error {
	metrics.IncStoreOp("postgres", op, resultLabel(err))
	return err
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrAlreadyExists):
		return "exists"
	case errors.Is(err, domain.ErrPreconditionFailed):
		return "precondition"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "unavailable"
	}
	return "error"
}
