package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(dbPoolStats, storeOpsTotal, storeRetriesTotal) }

var (
	dbPoolStats = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_pool_stats",
			Help: "Current state of the database connection pool.",
		},
		[]string{"state"}, // 'total', 'idle', 'in_use'
	)

	storeOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "document_store_ops_total",
			Help: "Document store operations by backend, operation and result.",
		},
		[]string{"backend", "op", "result"}, // result: ok|not_found|exists|precondition|unavailable|error
	)

	storeRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "document_store_retries_total",
			Help: "Retried job writes after the store was unavailable, by outcome.",
		},
		[]string{"outcome"}, // 'retry', 'gave_up'
	)
)

func SetDBPoolStats(total, idle, inUse int32) {
	dbPoolStats.WithLabelValues("total").Set(float64(total))
	dbPoolStats.WithLabelValues("idle").Set(float64(idle))
	dbPoolStats.WithLabelValues("in_use").Set(float64(inUse))
}

func IncStoreOp(backend, op, result string) {
	storeOpsTotal.WithLabelValues(norm(backend), norm(op), norm(result)).Inc()
}

func IncStoreRetry(outcome string) {
	storeRetriesTotal.WithLabelValues(norm(outcome)).Inc()
}
