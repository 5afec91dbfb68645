// Package metrics exposes Prometheus counters for planning and execution.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request styles.
const (
	StyleResource = "resource"
	StyleGraph    = "graph"
)

// Executor backends.
const (
	BackendSQL    = "sql"
	BackendMemory = "memory"
)

var (
	plans = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quarry_plans_total",
			Help: "Total number of query plans assembled",
		},
		[]string{"style"},
	)

	rejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quarry_rejections_total",
			Help: "Total number of rejected query requests",
		},
		[]string{"kind"},
	)

	queryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quarry_query_duration_seconds",
			Help:    "Time spent executing query plans",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)
)

// PlanBuilt counts one assembled plan for the given request style.
func PlanBuilt(style string) {
	if style == "" {
		style = "unknown"
	}
	plans.WithLabelValues(style).Inc()
}

// Rejected counts one rejected request by rejection kind.
func Rejected(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	rejections.WithLabelValues(kind).Inc()
}

// ObserveQuery records how long a backend took to execute a plan.
func ObserveQuery(backend string, elapsed time.Duration) {
	queryDuration.WithLabelValues(backend).Observe(elapsed.Seconds())
}

// PlanCount returns the counter for a style. Exposed for tests.
func PlanCount(style string) prometheus.Counter {
	return plans.WithLabelValues(style)
}

// RejectionCount returns the counter for a kind. Exposed for tests.
func RejectionCount(kind string) prometheus.Counter {
	return rejections.WithLabelValues(kind)
}
