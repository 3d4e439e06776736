package adapter

import "context"

type SweepReport struct {
	RetentionHours float64
	Statuses       []string
	Removed        int
	Remaining      int
	Total          int
	DryRun         bool
}

// SweepReporter tells operators about janitor activity.
type SweepReporter interface {
	ReportSweep(ctx context.Context, r SweepReport) error
}
