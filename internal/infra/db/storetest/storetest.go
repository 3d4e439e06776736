// Package storetest holds behaviour checks shared by every DocumentStore backend.
package storetest

import (
	"context"
	"errors"
	"testing"

	"blog-job-pipeline/internal/domain"
	"blog-job-pipeline/internal/domain/ports/repository"
)

// Run exercises the DocumentStore contract. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) repository.DocumentStore) {
	ctx := context.Background()

	t.Run("should put and get a document", func(t *testing.T) {
		s := newStore(t)
		err := s.Put(ctx, "jobs", "a", repository.Document{"status": "init", "progress": 0, "images": []string{"x"}})
		if err != nil {
			t.Fatalf("put: %v", err)
		}
		doc, err := s.Get(ctx, "jobs", "a")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if doc["status"] != "init" {
			t.Errorf("expected status init, got %v", doc["status"])
		}
		if n, ok := doc["progress"].(float64); !ok || n != 0 {
			t.Errorf("expected numeric progress 0, got %T %v", doc["progress"], doc["progress"])
		}
	})

	t.Run("should reject a duplicate id", func(t *testing.T) {
		s := newStore(t)
		_ = s.Put(ctx, "jobs", "a", repository.Document{"status": "init"})
		err := s.Put(ctx, "jobs", "a", repository.Document{"status": "init"})
		if !errors.Is(err, domain.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("should report missing documents", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Get(ctx, "jobs", "nope"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("get: expected ErrNotFound, got %v", err)
		}
		if err := s.Update(ctx, "jobs", "nope", repository.Document{"x": 1}); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("update: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should merge updates at the top level", func(t *testing.T) {
		s := newStore(t)
		_ = s.Put(ctx, "jobs", "a", repository.Document{"status": "init", "topic": "t"})
		if err := s.Update(ctx, "jobs", "a", repository.Document{"status": "drafted", "title": "T"}); err != nil {
			t.Fatalf("update: %v", err)
		}
		doc, _ := s.Get(ctx, "jobs", "a")
		if doc["status"] != "drafted" || doc["title"] != "T" || doc["topic"] != "t" {
			t.Errorf("unexpected merged document %v", doc)
		}
	})

	t.Run("should apply conditional updates only when conditions hold", func(t *testing.T) {
		s := newStore(t)
		_ = s.Put(ctx, "jobs", "a", repository.Document{"status": "drafting"})
		cond := []repository.Filter{{Field: "status", Op: repository.OpIn, Value: []any{"drafting", "drafted"}}}
		if err := s.UpdateIf(ctx, "jobs", "a", cond, repository.Document{"status": "failed"}); err != nil {
			t.Fatalf("first conditional update: %v", err)
		}
		err := s.UpdateIf(ctx, "jobs", "a", cond, repository.Document{"status": "rated"})
		if !errors.Is(err, domain.ErrPreconditionFailed) {
			t.Fatalf("expected ErrPreconditionFailed, got %v", err)
		}
		doc, _ := s.Get(ctx, "jobs", "a")
		if doc["status"] != "failed" {
			t.Errorf("status must stay failed, got %v", doc["status"])
		}
		err = s.UpdateIf(ctx, "jobs", "missing", cond, repository.Document{"status": "rated"})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound for a missing id, got %v", err)
		}
	})

	t.Run("should delete idempotently", func(t *testing.T) {
		s := newStore(t)
		_ = s.Put(ctx, "jobs", "a", repository.Document{"status": "init"})
		if err := s.Delete(ctx, "jobs", "a"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if err := s.Delete(ctx, "jobs", "a"); err != nil {
			t.Fatalf("second delete: %v", err)
		}
		if _, err := s.Get(ctx, "jobs", "a"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
	})

	t.Run("should delete conditionally", func(t *testing.T) {
		s := newStore(t)
		_ = s.Put(ctx, "jobs", "a", repository.Document{"status": "failed", "updatedAt": 100})
		stale := []repository.Filter{
			{Field: "status", Op: repository.OpIn, Value: []any{"completed", "failed"}},
			{Field: "updatedAt", Op: repository.OpLt, Value: 150},
		}
		if err := s.Update(ctx, "jobs", "a", repository.Document{"status": "drafted", "updatedAt": 200}); err != nil {
			t.Fatalf("update: %v", err)
		}
		if err := s.DeleteIf(ctx, "jobs", "a", stale); !errors.Is(err, domain.ErrPreconditionFailed) {
			t.Fatalf("expected ErrPreconditionFailed, got %v", err)
		}
		if _, err := s.Get(ctx, "jobs", "a"); err != nil {
			t.Fatalf("document must survive a failed condition: %v", err)
		}

		_ = s.Put(ctx, "jobs", "b", repository.Document{"status": "completed", "updatedAt": 100})
		if err := s.DeleteIf(ctx, "jobs", "b", stale); err != nil {
			t.Fatalf("delete if: %v", err)
		}
		if err := s.DeleteIf(ctx, "jobs", "b", stale); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound once gone, got %v", err)
		}
	})

	t.Run("should filter, order and limit queries", func(t *testing.T) {
		s := newStore(t)
		docs := []struct {
			id      string
			status  string
			updated int64
		}{
			{"a", "completed", 100},
			{"b", "failed", 300},
			{"c", "drafting", 50},
			{"d", "completed", 200},
		}
		for _, d := range docs {
			_ = s.Put(ctx, "jobs", d.id, repository.Document{"trackingId": d.id, "status": d.status, "updatedAt": d.updated})
		}
		_ = s.Put(ctx, "other", "z", repository.Document{"status": "completed", "updatedAt": 1})

		got, err := s.Query(ctx, "jobs", repository.Query{
			Filters: []repository.Filter{
				{Field: "status", Op: repository.OpIn, Value: []any{"completed", "failed"}},
				{Field: "updatedAt", Op: repository.OpLt, Value: 250},
			},
			OrderBy: "updatedAt",
			Desc:    true,
		})
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(got) != 2 || got[0]["trackingId"] != "d" || got[1]["trackingId"] != "a" {
			t.Fatalf("unexpected result %v", got)
		}

		got, _ = s.Query(ctx, "jobs", repository.Query{OrderBy: "updatedAt", Limit: 1})
		if len(got) != 1 || got[0]["trackingId"] != "c" {
			t.Errorf("expected oldest document c, got %v", got)
		}

		got, _ = s.Query(ctx, "jobs", repository.Query{
			Filters: []repository.Filter{{Field: "status", Op: repository.OpNe, Value: "completed"}},
		})
		if len(got) != 2 {
			t.Errorf("expected 2 non-completed documents, got %d", len(got))
		}
	})

	t.Run("should reject unsafe field names", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Query(ctx, "jobs", repository.Query{
			Filters: []repository.Filter{{Field: "status'; drop table documents; --", Op: repository.OpEq, Value: "x"}},
		})
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}
