package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cop_loc_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for LOC ingestion.
type Metrics struct {
	JobsConsumed    prometheus.Counter
	JobsFailed      *prometheus.CounterVec // labels: reason={invalid,ingest,persistence,constraint}
	JobRetries      prometheus.Counter
	PipelineRunning prometheus.Gauge
	BatchSize       prometheus.Histogram

	// Ingestion metrics.
	FilesIngested  *prometheus.CounterVec   // labels: source, outcome={success,error,dry_run}
	Levels         *prometheus.CounterVec   // labels: outcome={stored,existing,omitted}
	RingsDropped   *prometheus.CounterVec   // labels: reason
	IngestDuration *prometheus.HistogramVec // labels: source
}

func newMetrics() *Metrics {
	return &Metrics{
		JobsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_consumed_total",
			Help:      "Total job documents read from the job topic.",
		}),
		JobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_failed_total",
			Help:      "Jobs given up on, by reason.",
		}, []string{"reason"}),
		JobRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_retries_total",
			Help:      "Ingestion attempts retried after a persistence failure.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the worker loop is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of jobs per batch extracted from Kafka.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50},
		}),
		FilesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_ingested_total",
			Help:      "Source files processed, by source and outcome.",
		}, []string{"source", "outcome"}),
		Levels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "levels_total",
			Help:      "Threshold levels processed, by outcome.",
		}, []string{"outcome"}),
		RingsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rings_dropped_total",
			Help:      "Contour rings rejected before assembly, by reason.",
		}, []string{"reason"}),
		IngestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Duration of one file ingestion from open to commit.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"source"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.JobsConsumed,
		m.JobsFailed,
		m.JobRetries,
		m.PipelineRunning,
		m.BatchSize,
		m.FilesIngested,
		m.Levels,
		m.RingsDropped,
		m.IngestDuration,
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid "already
// registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
