// Package metrics holds the Prometheus collectors of the ADMS server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Device protocol

	ProtocolRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adms_protocol_requests_total",
			Help: "Total number of device protocol requests",
		},
		[]string{"endpoint", "method", "outcome"},
	)

	ProtocolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adms_protocol_request_duration_seconds",
			Help:    "Device protocol request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"endpoint"},
	)

	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adms_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
		[]string{"scope"},
	)

	AdminRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adms_admin_requests_total",
			Help: "Total number of admin API requests by status class",
		},
		[]string{"method", "status"},
	)

	// Commands

	CommandsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adms_commands_created_total",
			Help: "Total number of device commands created",
		},
		[]string{"name"},
	)

	CommandTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adms_command_transitions_total",
			Help: "Total number of command status transitions",
		},
		[]string{"status"},
	)

	StoreDivergenceTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adms_command_store_divergence_total",
			Help: "Total number of failed writes to one of the two command stores",
		},
		[]string{"store"},
	)

	// Ingestion

	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adms_uploads_total",
			Help: "Total number of cdata uploads by outcome",
		},
		[]string{"table", "outcome"},
	)

	IngestedRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adms_ingested_records_total",
			Help: "Total number of records written by ingestion",
		},
		[]string{"table"},
	)

	// Jobs

	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adms_jobs_total",
			Help: "Total number of background jobs processed",
		},
		[]string{"queue", "type", "status"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adms_job_duration_seconds",
			Help:    "Background job duration in seconds",
			Buckets: []float64{.005, .01, .05, .1, .5, 1, 5, 10, 30},
		},
		[]string{"queue", "type"},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "adms_queue_depth",
			Help: "Number of queued or running jobs per queue",
		},
		[]string{"queue"},
	)

	// Storage & cache

	DBRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "adms_db_retries_total",
			Help: "Total number of statement retries after lock conflicts",
		},
	)

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adms_cache_lookups_total",
			Help: "Total number of registry cache lookups",
		},
		[]string{"cache", "result"},
	)

	ReencryptedRowsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "adms_reencrypted_rows_total",
			Help: "Total number of rows moved to a new key version",
		},
	)
)
