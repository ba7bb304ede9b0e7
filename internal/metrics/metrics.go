// Package metrics declares the Prometheus collectors of an ensemble node.
// Collectors register with the default registry and are served on the client
// API's /metrics route.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LifecycleTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ensemble_lifecycle_transitions_total",
			Help: "Total number of node lifecycle state transitions",
		},
		[]string{"from", "to"},
	)

	StartupFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ensemble_startup_failures_total",
			Help: "Total number of failed node starts",
		},
		[]string{"mode", "stage"},
	)

	TxnLogOpenAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ensemble_txnlog_open_attempts_total",
			Help: "Total number of transaction log open attempts",
		},
		[]string{"status"},
	)

	SecurePortResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ensemble_secure_port_resolutions_total",
			Help: "Total number of secure client port resolutions by strategy",
		},
		[]string{"strategy"},
	)

	AppliedCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ensemble_applied_commands_total",
			Help: "Total number of data tree commands applied",
		},
		[]string{"node", "op"},
	)

	DataTreeKeys = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ensemble_data_tree_keys",
			Help: "Number of keys held in the data tree",
		},
		[]string{"node"},
	)

	ClientRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ensemble_client_requests_total",
			Help: "Total number of client API requests",
		},
		[]string{"factory", "method", "code"},
	)

	ClientRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ensemble_client_request_duration_seconds",
			Help:    "Duration of client API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"factory", "method"},
	)

	RetentionRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ensemble_retention_runs_total",
			Help: "Total number of snapshot retention passes",
		},
		[]string{"status"},
	)

	SnapshotsPurgedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ensemble_snapshots_purged_total",
			Help: "Total number of snapshot directories removed by retention",
		},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
