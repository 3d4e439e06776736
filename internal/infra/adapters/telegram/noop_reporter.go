package telegram

import (
	"context"

	"github.com/rs/zerolog"

	"blog-job-pipeline/internal/domain/ports/adapter"
)

var _ adapter.SweepReporter = (*NoopReporter)(nil)

// NoopReporter logs sweep summaries instead of sending them.
type NoopReporter struct {
	logger *zerolog.Logger
}

func NewNoopReporter(logger *zerolog.Logger) *NoopReporter {
	return &NoopReporter{logger: logger}
}

func (n *NoopReporter) ReportSweep(ctx context.Context, rep adapter.SweepReport) error {
	n.logger.Info().
		Bool("dry_run", rep.DryRun).
		Int("removed", rep.Removed).
		Int("remaining", rep.Remaining).
		Int("total", rep.Total).
		Msg("[noop-telegram] sweep report")
	return nil
}
