package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	IngestEnqueued   = prometheus.NewCounter(prometheus.CounterOpts{Name: "ingest_jobs_enqueued_total", Help: "Ingestion jobs enqueued"})
	IngestCompleted  = prometheus.NewCounter(prometheus.CounterOpts{Name: "ingest_jobs_completed_total", Help: "Ingestion jobs completed successfully"})
	IngestRetries    = prometheus.NewCounter(prometheus.CounterOpts{Name: "ingest_jobs_retried_total", Help: "Ingestion jobs that failed and were scheduled for retry"})
	IngestDeadLetter = prometheus.NewCounter(prometheus.CounterOpts{Name: "ingest_jobs_dead_total", Help: "Ingestion jobs moved to the dead-letter queue"})
	UpstreamFetches  = prometheus.NewCounter(prometheus.CounterOpts{Name: "ingest_upstream_fetches_total", Help: "Upstream feed pages fetched"})
	UpstreamErrors   = prometheus.NewCounter(prometheus.CounterOpts{Name: "ingest_upstream_errors_total", Help: "Upstream feed fetch failures"})
	QueueDepthGauge  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "ingest_queue_depth", Help: "Ready queue depth"})
	InFlightGauge    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "ingest_jobs_inflight", Help: "Jobs currently leased by workers"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			IngestEnqueued,
			IngestCompleted,
			IngestRetries,
			IngestDeadLetter,
			UpstreamFetches,
			UpstreamErrors,
			QueueDepthGauge,
			InFlightGauge,
		)
	})
	return promhttp.Handler()
}
