package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion pipeline and the prediction engine.
type Metrics struct {
	DetectionsIngested   prometheus.Counter
	DetectionsDuplicate  prometheus.Counter
	DetectionsOutOfRange prometheus.Counter

	FeedRequests    *prometheus.CounterVec // labels: source, outcome={success,error}
	RefreshDuration prometheus.Histogram

	TrainingRuns         *prometheus.CounterVec // labels: outcome={success,insufficient_data,error}
	PredictionsGenerated prometheus.Counter
	PredictionsDiscarded prometheus.Counter
	GenerationDuration   prometheus.Histogram
	ModelTrained         prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.DetectionsIngested,
		m.DetectionsDuplicate,
		m.DetectionsOutOfRange,
		m.FeedRequests,
		m.RefreshDuration,
		m.TrainingRuns,
		m.PredictionsGenerated,
		m.PredictionsDiscarded,
		m.GenerationDuration,
		m.ModelTrained,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when constructed from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		DetectionsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "firesight",
			Name:      "detections_ingested_total",
			Help:      "Detections accepted and persisted by the ingestion pipeline.",
		}),
		DetectionsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "firesight",
			Name:      "detections_duplicate_total",
			Help:      "Candidate detections dropped as re-reports of a known hotspot.",
		}),
		DetectionsOutOfRange: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "firesight",
			Name:      "detections_out_of_region_total",
			Help:      "Feed records rejected for falling outside the monitored region.",
		}),
		FeedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "firesight",
			Name:      "feed_requests_total",
			Help:      "Upstream FIRMS requests by source and outcome.",
		}, []string{"source", "outcome"}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "firesight",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of a full fetch-dedup-persist refresh cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		TrainingRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "firesight",
			Name:      "training_runs_total",
			Help:      "Model training attempts by outcome.",
		}, []string{"outcome"}),
		PredictionsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "firesight",
			Name:      "predictions_generated_total",
			Help:      "Grid cells persisted at or above the low-risk threshold.",
		}),
		PredictionsDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "firesight",
			Name:      "predictions_discarded_total",
			Help:      "Grid cells evaluated but below the low-risk threshold.",
		}),
		GenerationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "firesight",
			Name:      "generation_duration_seconds",
			Help:      "Duration of a full grid prediction run.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		ModelTrained: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "firesight",
			Name:      "model_trained",
			Help:      "1 when a trained model artifact is published, 0 otherwise.",
		}),
	}
}
