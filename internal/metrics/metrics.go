// Package metrics holds the Prometheus collectors for remote calls, sync
// runs and the scheduler. Collectors register on the default registry and
// are served by the API at /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Remote API
	RemoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mautic_remote_request_duration_seconds",
			Help:    "Duration of requests to Mautic instances in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)

	RemoteRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mautic_remote_retries_total",
			Help: "Retried requests to Mautic instances by cause (status code or transport)",
		},
		[]string{"reason"},
	)

	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mautic_token_refreshes_total",
			Help: "OAuth2 token grants by grant type and outcome",
		},
		[]string{"grant", "outcome"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mautic_circuit_breaker_state",
			Help: "Per-tenant breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"tenant"},
	)

	// Sync engine
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mautic_sync_runs_total",
			Help: "Per-resource sync runs by outcome",
		},
		[]string{"resource", "outcome"},
	)

	SyncRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mautic_sync_records_total",
			Help: "Records upserted by resource type",
		},
		[]string{"resource"},
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mautic_sync_duration_seconds",
			Help:    "Duration of per-resource syncs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"resource"},
	)

	BatchTenants = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mautic_batch_tenants_total",
			Help: "Tenants processed by batch syncs by outcome",
		},
		[]string{"outcome"},
	)

	// Scheduler
	SchedulerLastRun = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mautic_scheduler_last_run_timestamp_seconds",
			Help: "Unix time the last scheduled batch finished",
		},
	)

	SchedulerNextRun = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mautic_scheduler_next_run_timestamp_seconds",
			Help: "Unix time of the next scheduled batch",
		},
	)
)

// Outcome labels.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeSkipped  = "skipped"
	OutcomeRejected = "rejected"
)

// RecordRemoteRequest observes one remote call. status 0 means a transport failure.
func RecordRemoteRequest(method string, status int, started time.Time) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	RemoteRequestDuration.WithLabelValues(method, label).Observe(time.Since(started).Seconds())
}

// RecordSync observes one per-resource sync.
func RecordSync(resource string, synced int, err error, started time.Time) {
	SyncDuration.WithLabelValues(resource).Observe(time.Since(started).Seconds())
	if err != nil {
		SyncRuns.WithLabelValues(resource, OutcomeFailure).Inc()
		return
	}
	SyncRuns.WithLabelValues(resource, OutcomeSuccess).Inc()
	SyncRecords.WithLabelValues(resource).Add(float64(synced))
}
