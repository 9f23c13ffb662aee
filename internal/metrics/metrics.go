package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Sync holds all Prometheus metrics for one synchronizer run.
type Sync struct {
	RecordsFetched prometheus.Counter
	RecordsIndexed prometheus.Counter
	RecordsFailed  *prometheus.CounterVec

	BatchesTotal  prometheus.Counter
	BatchDuration prometheus.Histogram

	APIRequests *prometheus.CounterVec
	APIRetries  prometheus.Counter

	CheckpointTimestamp prometheus.Gauge
}

// API request outcome label values.
const (
	OutcomeOK          = "ok"
	OutcomeRateLimited = "rate_limited"
	OutcomeTimeout     = "timeout"
	OutcomeError       = "error"
)

// NewSync creates and registers the run metrics on the given registry.
func NewSync(reg prometheus.Registerer) *Sync {
	m := &Sync{
		RecordsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "costdex",
			Name:      "records_fetched_total",
			Help:      "Usage records fetched from the metering API",
		}),

		RecordsIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "costdex",
			Name:      "records_indexed_total",
			Help:      "Documents successfully upserted into the cost index",
		}),

		RecordsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "costdex",
			Name:      "records_failed_total",
			Help:      "Documents that failed to index",
		}, []string{"reason"}),

		BatchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "costdex",
			Name:      "batches_total",
			Help:      "Bulk upsert batches sent",
		}),

		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "costdex",
			Name:      "batch_duration_seconds",
			Help:      "Bulk upsert duration",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		APIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "costdex",
			Name:      "api_requests_total",
			Help:      "Metering API requests by outcome",
		}, []string{"outcome"}),

		APIRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "costdex",
			Name:      "api_retries_total",
			Help:      "Metering API request retries",
		}),

		CheckpointTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "costdex",
			Name:      "checkpoint_timestamp_seconds",
			Help:      "Last synced-through timestamp (unix seconds)",
		}),
	}

	reg.MustRegister(
		m.RecordsFetched, m.RecordsIndexed, m.RecordsFailed,
		m.BatchesTotal, m.BatchDuration,
		m.APIRequests, m.APIRetries,
		m.CheckpointTimestamp,
	)

	return m
}
