// Package sqlite is a single-node DocumentStore on the pure-Go SQLite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"blog-job-pipeline/internal/domain"
	"blog-job-pipeline/internal/domain/ports/repository"
	"blog-job-pipeline/internal/infra/metrics"
)

var _ repository.DocumentStore = (*DocumentStore)(nil)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
  collection TEXT NOT NULL,
  id         TEXT NOT NULL,
  data       TEXT NOT NULL,
  created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
  updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
  PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_status_idx ON documents (collection, json_extract(data, '$.status'));`

type DocumentStore struct {
	db *sql.DB
}

// Open opens (or creates) the database file and applies the schema.
// A single connection serializes writers, which SQLite requires anyway.
func Open(ctx context.Context, path string) (*DocumentStore, error) {
	dsn := path
	if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		dsn = "file:" + dsn
	}
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &DocumentStore{db: db}, nil
}

func (s *DocumentStore) Put(ctx context.Context, collection, id string, fields repository.Document) error {
	if err := repository.ValidateFields(fields); err != nil {
		return err
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO documents (collection, id, data) VALUES (?, ?, ?)`, collection, id, string(b))
	return observe("put", mapErr(err))
}

func (s *DocumentStore) Get(ctx context.Context, collection, id string) (repository.Document, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&raw)
	if err != nil {
		return nil, observe("get", mapErr(err))
	}
	doc, err := decode(raw)
	return doc, observe("get", err)
}

func (s *DocumentStore) Update(ctx context.Context, collection, id string, fields repository.Document) error {
	return s.UpdateIf(ctx, collection, id, nil, fields)
}

// UpdateIf reads, checks and rewrites inside one transaction so the merge is
// strictly top-level (json_patch would merge nested objects).
func (s *DocumentStore) UpdateIf(ctx context.Context, collection, id string, conds []repository.Filter, fields repository.Document) error {
	if err := repository.ValidateFields(fields); err != nil {
		return err
	}
	if err := repository.ValidateFilters(conds); err != nil {
		return err
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		where, args := buildWhere(conds, []any{collection, id})
		var raw string
		err := tx.QueryRowContext(ctx, `SELECT data FROM documents WHERE collection = ? AND id = ?`+where, args...).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			var one int
			if err := tx.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&one); err != nil {
				return mapErr(err)
			}
			return domain.ErrPreconditionFailed
		}
		if err != nil {
			return mapErr(err)
		}
		doc, err := decode(raw)
		if err != nil {
			return err
		}
		for k, v := range fields {
			doc[k] = v
		}
		b, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE documents SET data = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now') WHERE collection = ? AND id = ?`,
			string(b), collection, id)
		return mapErr(err)
	})
	return observe("update", err)
}

func (s *DocumentStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	return observe("delete", mapErr(err))
}

func (s *DocumentStore) DeleteIf(ctx context.Context, collection, id string, conds []repository.Filter) error {
	if err := repository.ValidateFilters(conds); err != nil {
		return err
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		where, args := buildWhere(conds, []any{collection, id})
		res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`+where, args...)
		if err != nil {
			return mapErr(err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return nil
		}
		var one int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&one); err != nil {
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
	where, args := buildWhere(q.Filters, []any{collection})
	var sb strings.Builder
	sb.WriteString(`SELECT data FROM documents WHERE collection = ?`)
	sb.WriteString(where)
	if q.OrderBy != "" {
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		// NULLs sort first in SQLite; push them last like the other backends
		fmt.Fprintf(&sb, " ORDER BY json_extract(data, '$.%s') IS NULL, json_extract(data, '$.%s') %s, id", q.OrderBy, q.OrderBy, dir)
	} else {
		sb.WriteString(" ORDER BY id")
	}
	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, observe("query", mapErr(err))
	}
	defer rows.Close()
	var out []repository.Document
	for rows.Next() {
		var raw string
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

func (s *DocumentStore) Ping(ctx context.Context) error { return mapErr(s.db.PingContext(ctx)) }

func (s *DocumentStore) Close() error { return s.db.Close() }

func (s *DocumentStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return mapErr(tx.Commit())
}

func buildWhere(filters []repository.Filter, args []any) (string, []any) {
	var sb strings.Builder
	for _, f := range filters {
		col := fmt.Sprintf("json_extract(data, '$.%s')", f.Field)
		switch f.Op {
		case repository.OpIn:
			list := f.Value.([]any)
			if len(list) == 0 {
				sb.WriteString(" AND 0")
				continue
			}
			fmt.Fprintf(&sb, " AND %s IN (%s)", col, strings.TrimSuffix(strings.Repeat("?, ", len(list)), ", "))
			for _, v := range list {
				args = append(args, sqlValue(v))
			}
		case repository.OpNe:
			fmt.Fprintf(&sb, " AND (%s IS NULL OR %s <> ?)", col, col)
			args = append(args, sqlValue(f.Value))
		default:
			fmt.Fprintf(&sb, " AND %s %s ?", col, sqlOp(f.Op))
			args = append(args, sqlValue(f.Value))
		}
	}
	return sb.String(), args
}

// sqlValue converts a filter value to what json_extract yields for it.
func sqlValue(v any) any {
	switch x := v.(type) {
	case string, float64, float32, int, int32, int64:
		return x
	case bool:
		if x {
			return 1
		}
		return 0
	case nil:
		return nil
	}
	b, _ := json.Marshal(v)
	return string(b)
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

func decode(raw string) (repository.Document, error) {
	var doc repository.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if doc == nil {
		doc = repository.Document{}
	}
	return doc, nil
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return domain.ErrAlreadyExists
		}
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_FULL:
			return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
		return fmt.Errorf("sqlite: %w", err)
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("sqlite: %w", err)
}

func observe(op string, err error) error {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		result = "not_found"
	case errors.Is(err, domain.ErrAlreadyExists):
		result = "exists"
	case errors.Is(err, domain.ErrPreconditionFailed):
		result = "precondition"
	case errors.Is(err, domain.ErrStoreUnavailable):
		result = "unavailable"
	default:
		result = "error"
	}
	metrics.IncStoreOp("sqlite", op, result)
	return err
}
