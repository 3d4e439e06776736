package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(janitorRemovedTotal, janitorRunsTotal) }

var (
	janitorRemovedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "janitor_jobs_removed_total",
			Help: "Total number of job records deleted by the janitor.",
		},
	)

	janitorRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "janitor_runs_total",
			Help: "Janitor sweeps by mode and result.",
		},
		[]string{"mode", "result"}, // mode: real|dry_run
	)
)

func IncJanitorRun(dryRun bool, removed int, err error) {
	mode := "real"
	if dryRun {
		mode = "dry_run"
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	janitorRunsTotal.WithLabelValues(mode, result).Inc()
	if !dryRun && removed > 0 {
		janitorRemovedTotal.Add(float64(removed))
	}
}
