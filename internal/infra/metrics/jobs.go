package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		jobsSubmittedTotal,
		jobsFinishedTotal,
		stageOutcomesTotal,
		stageLatencyMs,
		jobsByStatus,
		jobsRecoveredTotal,
	)
}

var (
	jobsSubmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blog_jobs_submitted_total",
			Help: "Total number of blog jobs accepted.",
		},
	)

	jobsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blog_jobs_finished_total",
			Help: "Total number of blog jobs reaching a terminal status.",
		},
		[]string{"status", "reason"}, // status: completed|failed
	)

	stageOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blog_stage_outcomes_total",
			Help: "Stage executions by stage and outcome.",
		},
		[]string{"stage", "outcome"}, // outcome: ok|degraded|failed
	)

	stageLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blog_stage_latency_ms",
			Help:    "Stage execution latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000},
		},
		[]string{"stage"},
	)

	jobsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "blog_jobs_by_status",
			Help: "Current number of stored jobs by status, refreshed on stats reads.",
		},
		[]string{"status"},
	)

	jobsRecoveredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blog_jobs_recovered_total",
			Help: "Stalled jobs resumed by the reconciler.",
		},
	)
)

func IncJobSubmitted() { jobsSubmittedTotal.Inc() }

func IncJobFinished(status, reason string) {
	jobsFinishedTotal.WithLabelValues(norm(status), norm(reason)).Inc()
}

func ObserveStage(stage, outcome string, latencyMs int64) {
	stageOutcomesTotal.WithLabelValues(norm(stage), norm(outcome)).Inc()
	stageLatencyMs.WithLabelValues(norm(stage)).Observe(float64(latencyMs))
}

// SetJobsByStatus sets the gauge for every status in the map.
func SetJobsByStatus(counts map[string]int) {
	for status, n := range counts {
		jobsByStatus.WithLabelValues(norm(status)).Set(float64(n))
	}
}

func IncJobsRecovered(n int) { jobsRecoveredTotal.Add(float64(n)) }
