package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ImportMetrics tracks catalog import runs. It satisfies importer.Recorder.
type ImportMetrics struct {
	offers   *prometheus.CounterVec
	runs     *prometheus.CounterVec
	duration prometheus.Histogram
	lastRun  prometheus.Gauge
}

// NewImportMetrics registers the import collectors on reg.
func NewImportMetrics(reg prometheus.Registerer) *ImportMetrics {
	m := &ImportMetrics{
		offers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_import_offers_total",
			Help: "Feed offers processed by outcome.",
		}, []string{"outcome"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_import_runs_total",
			Help: "Import runs by final status.",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "storefront_import_duration_seconds",
			Help:    "Wall time of import runs.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storefront_import_last_run_timestamp_seconds",
			Help: "Unix time the last import run finished.",
		}),
	}
	reg.MustRegister(m.offers, m.runs, m.duration, m.lastRun)
	return m
}

// OfferProcessed counts one offer.
func (m *ImportMetrics) OfferProcessed(outcome string) {
	if m == nil {
		return
	}
	m.offers.WithLabelValues(outcome).Inc()
}

// RunFinished records a completed run.
func (m *ImportMetrics) RunFinished(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
	m.duration.Observe(elapsed.Seconds())
	m.lastRun.SetToCurrentTime()
}
