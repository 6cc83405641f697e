// Package telemetry provides application-level observability for the work plan tracker.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http://<host>:<JWP_TELEMETRY_METRICS_PORT>/metrics
//
// Default port: 9090.  The endpoint returns data in the Prometheus text exposition
// format (Content-Type: text/plain; version=0.0.4) and is intended to be scraped by
// a Prometheus server every 15–60 seconds.  It is NOT served by the Gin router and
// is therefore invisible to stakeholders.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Login and save-cycle counters
//   - Record store operation counters and latency histograms (labelled by backend)
//   - Snapshot job duration and error counters
//   - Database connection pool gauge (polled every 30 s, postgres backend only)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/plan) rather than
// the raw request URL.  No metric carries user names, emails, or row contents;
// the highest-cardinality label in the package is the store backend name.
//
// # Usage
//
// Import the package for side effects so metrics are registered before the HTTP server
// starts listening:
//
//	import _ "github.com/yeryani-tests/joint-work-plan-app/internal/telemetry"
//
// Or import it directly and use an exported var:
//
//	telemetry.LoginsTotal.WithLabelValues("stakeholder", "success").Inc()
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
//
// HTTPRequestsTotal is a CounterVec with labels {method, path, status}.
// The path label holds the Gin route template (e.g. /api/v1/admin/import),
// NOT the raw URL, to prevent unbounded cardinality.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//
// HTTPRequestDuration is a HistogramVec with labels {method, path} and exponential-ish
// buckets from 5 ms to 30 s.  Use histogram_quantile to compute latency percentiles.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Workflow metrics — recorded by the login and save handlers.
//
// LoginsTotal is a CounterVec with labels {role, outcome}.  role is "stakeholder"
// or "admin"; outcome is "success" or "failure".  A spike in admin failures is
// worth alerting on.
//
// PlanSavesTotal is a CounterVec with label {outcome}: "applied" (changes were
// written), "no_changes" (submission matched the stored table), or "error".
//
// RowChangesTotal counts individual changed rows across all saves; dividing by
// plan_saves_total{outcome="applied"} gives the average edit batch size.
//
// AuditWriteFailuresTotal counts audit log appends that failed after the master
// table was already updated.  Any increase means the audit trail has a gap and
// the affected entries exist only in the server log.
//
// Example PromQL queries:
//   - Failed admin logins:  increase(logins_total{role="admin",outcome="failure"}[15m])
//   - Audit gap alert:      increase(audit_write_failures_total[1h]) > 0
var (
	LoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logins_total",
			Help: "Total number of login attempts, by role and outcome.",
		},
		[]string{"role", "outcome"},
	)

	PlanSavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plan_saves_total",
			Help: "Total number of save requests, by outcome.",
		},
		[]string{"outcome"},
	)

	RowChangesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "row_changes_total",
			Help: "Total number of changed rows written across all saves.",
		},
	)

	AuditWriteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_write_failures_total",
			Help: "Total number of audit log appends that failed after the master table was updated.",
		},
	)

	AuditMirrorFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_mirror_failures_total",
			Help: "Total number of audit entries a mirror destination failed to accept, by destination type.",
		},
		[]string{"destination"},
	)
)

// CSV import/export metrics — recorded by the admin handlers.
var (
	CSVImportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csv_imports_total",
			Help: "Total number of master CSV imports, by outcome (applied, dry_run, rejected, error).",
		},
		[]string{"outcome"},
	)

	CSVExportsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "csv_exports_total",
			Help: "Total number of master CSV exports served.",
		},
	)
)

// Record store metrics — recorded by the instrumented wrapper around every
// TableStore backend.
//
// StoreOperationsTotal is a CounterVec with labels {backend, operation, outcome}.
// operation is one of fetch, replace, append, ping; outcome is "success" or "error".
//
// StoreOperationDuration is a HistogramVec with labels {backend, operation} using
// the default Prometheus buckets.  Remote backends (s3, gcs, azure) will sit in
// noticeably higher buckets than file or sqlite.
//
// Example PromQL queries:
//   - Store error rate:        sum by (backend) (rate(store_operations_total{outcome="error"}[5m]))
//   - p95 fetch latency:       histogram_quantile(0.95, sum by (backend, le) (rate(store_operation_duration_seconds_bucket{operation="fetch"}[5m])))
var (
	StoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_operations_total",
			Help: "Total number of record store operations, by backend, operation, and outcome.",
		},
		[]string{"backend", "operation", "outcome"},
	)

	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_operation_duration_seconds",
			Help:    "Duration of record store operations, by backend and operation.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)
)

// Snapshot job metrics — recorded by the backup background job.
//
// SnapshotDuration observes one complete snapshot cycle (all tables).
// SnapshotErrorsTotal is a CounterVec with label {table}; an alert on
// increase(snapshot_errors_total[24h]) > 0 catches silently failing backups.
var (
	SnapshotDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "snapshot_duration_seconds",
			Help:    "Duration of a single backup snapshot cycle.",
			Buckets: prometheus.DefBuckets,
		},
	)

	SnapshotErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshot_errors_total",
			Help: "Total number of failed table snapshot attempts, by table.",
		},
		[]string{"table"},
	)
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool.  It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
// Only populated when a SQL backend (postgres or sqlite) is in use.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits cleanly when the database becomes unreachable (db.Ping fails),
// which happens automatically when the application shuts down and defers store.Close().
//
// Call this once, immediately after the SQL store connects:
//
//	telemetry.StartDBStatsCollector(db)
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
