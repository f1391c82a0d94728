// Package metrics holds the Prometheus collectors shared by every service.
// They register on the default registry, which runtime.NewBaseMuxWithReady
// exposes on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	OutboxPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_published_total",
		Help: "Outbox events written to Kafka, by event type.",
	}, []string{"event_type"})

	OutboxFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_publish_failures_total",
		Help: "Outbox batches that failed to publish.",
	})

	CalendarSyncProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calendar_sync_processed_total",
		Help: "Calendar sync queue rows by action and outcome.",
	}, []string{"action", "outcome"})

	CalendarSyncQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "calendar_sync_queue_depth",
		Help: "Calendar sync queue rows by status.",
	}, []string{"status"})

	ImportRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csv_import_rows_total",
		Help: "CSV import rows by section and result.",
	}, []string{"section", "result"})

	WebhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhooks_received_total",
		Help: "Inbound webhooks by source and signature validity.",
	}, []string{"source", "valid"})

	WorkerActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_control_actions_total",
		Help: "Worker control actions by worker, action and result.",
	}, []string{"worker", "action", "result"})

	PurgedRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "maintenance_purged_rows_total",
		Help: "Rows removed by retention jobs.",
	}, []string{"table"})
)
