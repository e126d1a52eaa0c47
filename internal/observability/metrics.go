package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "appforge_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "appforge_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// RegistrationsTotal counts registration attempts by result.
	RegistrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "appforge_user_registrations_total",
		Help: "Total number of registration attempts by result",
	}, []string{"result"})

	// LoginsTotal counts login attempts by result.
	LoginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "appforge_user_logins_total",
		Help: "Total number of login attempts by result",
	}, []string{"result"})

	// SoftDeletedRows counts rows flagged as deleted by table.
	SoftDeletedRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "appforge_soft_deleted_rows_total",
		Help: "Total number of rows soft deleted by table",
	}, []string{"table"})

	// CacheLookups counts cache-aside lookups by outcome.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "appforge_cache_lookups_total",
		Help: "Total number of cache lookups by outcome",
	}, []string{"outcome"})
)

// DatabaseMetrics records query latency for one table.
type DatabaseMetrics struct {
	table string
}

// NewDatabaseMetrics returns a new DatabaseMetrics instance.
func NewDatabaseMetrics(table string) *DatabaseMetrics {
	return &DatabaseMetrics{table: table}
}

// ObserveQuery records the latency of a database query.
func (m *DatabaseMetrics) ObserveQuery(operation string, start time.Time) {
	DatabaseQueryLatency.WithLabelValues(operation, m.table).Observe(time.Since(start).Seconds())
}

// TrackQuery returns a function that records query latency when called (e.g. defer).
func (m *DatabaseMetrics) TrackQuery(operation string) func() {
	start := time.Now()
	return func() {
		m.ObserveQuery(operation, start)
	}
}

// Outcome labels a counted attempt.
func Outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
