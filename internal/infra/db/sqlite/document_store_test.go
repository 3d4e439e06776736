//go:build !integration

package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"blog-job-pipeline/internal/domain/ports/repository"
	"blog-job-pipeline/internal/infra/db/storetest"
)

func TestDocumentStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) repository.DocumentStore {
		s, err := Open(context.Background(), filepath.Join(t.TempDir(), "jobs.db"))
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestUpdateKeepsNestedObjectsWhole(t *testing.T) {
	t.Run("should replace a nested object instead of merging it", func(t *testing.T) {
		ctx := context.Background()
		s, err := Open(ctx, filepath.Join(t.TempDir(), "jobs.db"))
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		defer s.Close()
		_ = s.Put(ctx, "jobs", "a", repository.Document{"error": map[string]any{"stage": "Rater", "message": "x"}})
		if err := s.Update(ctx, "jobs", "a", repository.Document{"error": map[string]any{"stage": "ImageFinder"}}); err != nil {
			t.Fatalf("update: %v", err)
		}
		doc, _ := s.Get(ctx, "jobs", "a")
		nested := doc["error"].(map[string]any)
		if _, ok := nested["message"]; ok || nested["stage"] != "ImageFinder" {
			t.Errorf("expected a full replacement, got %v", nested)
		}
	})
}
