package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// refinement pipeline and the availability query paths.
type Metrics struct {
	FacilitiesProcessed *prometheus.CounterVec // labels: outcome={succeeded,failed,skipped}
	StageErrors         *prometheus.CounterVec // labels: stage={fetch,ocr,extract,parse,persist}
	RecordsPersisted    prometheus.Counter
	PassDuration        prometheus.Histogram
	PipelineRunning     prometheus.Gauge

	// Extraction client metrics.
	ModelRequests prometheus.Counter
	ModelRetries  prometheus.Counter

	// OCR metrics.
	OcrRequests *prometheus.CounterVec // labels: outcome={success,error}

	// Query service metrics.
	AvailabilityQueries *prometheus.CounterVec // labels: kind={now,nearby}
}

// NewMetrics creates and registers all metrics with the default Prometheus
// registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FacilitiesProcessed,
		m.StageErrors,
		m.RecordsPersisted,
		m.PassDuration,
		m.PipelineRunning,
		m.ModelRequests,
		m.ModelRetries,
		m.OcrRequests,
		m.AvailabilityQueries,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FacilitiesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "freeswim_etl",
			Name:      "facilities_processed_total",
			Help:      "Facilities handled per refinement pass by outcome.",
		}, []string{"outcome"}),
		StageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "freeswim_etl",
			Name:      "stage_errors_total",
			Help:      "Per-facility stage failures by pipeline stage.",
		}, []string{"stage"}),
		RecordsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "freeswim_etl",
			Name:      "schedule_records_persisted_total",
			Help:      "Schedule records written to the store.",
		}),
		PassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "freeswim_etl",
			Name:      "refine_pass_duration_seconds",
			Help:      "Duration of a full refinement pass over the catalog.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "freeswim_etl",
			Name:      "pipeline_running",
			Help:      "1 while a refinement pass is active, 0 otherwise.",
		}),
		ModelRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "freeswim_etl",
			Name:      "model_requests_total",
			Help:      "Extraction model calls, including retried attempts.",
		}),
		ModelRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "freeswim_etl",
			Name:      "model_retries_total",
			Help:      "Extraction attempts retried after a rate-limit failure.",
		}),
		OcrRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "freeswim_etl",
			Name:      "ocr_requests_total",
			Help:      "Image recognitions by outcome.",
		}, []string{"outcome"}),
		AvailabilityQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "freeswim_etl",
			Name:      "availability_queries_total",
			Help:      "Availability lookups served by query kind.",
		}, []string{"kind"}),
	}
}
