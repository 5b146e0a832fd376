package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "flood_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// derivation stages.
type Metrics struct {
	OutputsCreated      *prometheus.CounterVec   // labels: stage={vd,hazard}
	OutputsSkipped      *prometheus.CounterVec   // labels: stage
	CombinationFailures *prometheus.CounterVec   // labels: stage, kind={not_found,reprojection,shape_mismatch,io,invalid}
	StageDuration       *prometheus.HistogramVec // labels: stage
	HazardCells         *prometheus.CounterVec   // labels: class={H0..H6}
	PipelineRunning     prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.OutputsCreated,
		m.OutputsSkipped,
		m.CombinationFailures,
		m.StageDuration,
		m.HazardCells,
		m.PipelineRunning,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		OutputsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outputs_created_total",
			Help:      "Derived rasters written, by stage.",
		}, []string{"stage"}),
		OutputsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outputs_skipped_total",
			Help:      "Derived rasters left in place because they already existed, by stage.",
		}, []string{"stage"}),
		CombinationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "combination_failures_total",
			Help:      "Area/year combinations that failed, by stage and failure kind.",
		}, []string{"stage", "kind"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of a complete stage run.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"stage"}),
		HazardCells: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hazard_cells_total",
			Help:      "Classified cells written, by hazard class.",
		}, []string{"class"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a stage is running, 0 otherwise.",
		}),
	}
}

// WriteTextfile dumps the default registry in the node_exporter textfile
// format, for batch runs that exit before a scrape.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
