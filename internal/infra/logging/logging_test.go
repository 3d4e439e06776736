//go:build !integration

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"blog-job-pipeline/internal/config"
)

func TestWith(t *testing.T) {
	t.Run("should attach ids carried by the context", func(t *testing.T) {
		var buf bytes.Buffer
		base := newWithWriter(config.LogConfig{Level: "debug", Format: "json"}, false, &buf)

		ctx := WithTraceID(context.Background(), "tr-1")
		ctx = WithTrackingID(ctx, "job-1")
		ctx = WithStage(ctx, "Drafter")
		With(ctx, base).Info().Msg("hello")

		var line map[string]any
		if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
			t.Fatalf("expected json log line, got %q: %v", buf.String(), err)
		}
		if line["trace_id"] != "tr-1" || line["tracking_id"] != "job-1" || line["stage"] != "Drafter" {
			t.Errorf("missing context fields: %v", line)
		}
	})

	t.Run("should respect the configured level", func(t *testing.T) {
		var buf bytes.Buffer
		base := newWithWriter(config.LogConfig{Level: "warn", Format: "json"}, false, &buf)
		base.Info().Msg("dropped")
		if buf.Len() != 0 {
			t.Errorf("info should be filtered at warn level, got %q", buf.String())
		}
	})
}

func TestRedact(t *testing.T) {
	if got := Redact("sk-1234567890", false); got != "sk-1...90" {
		t.Errorf("unexpected redaction %q", got)
	}
	if got := Redact("short", false); got != "***" {
		t.Errorf("unexpected redaction %q", got)
	}
	if got := Redact("visible", true); got != "visible" {
		t.Errorf("dev mode must not redact, got %q", got)
	}
}
