package pipeflow

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the ambient Prometheus instruments every dispatch engine
// updates, mirroring the teacher's habit of wiring client_golang straight
// into its pipeline/middleware hot paths rather than bolting metrics on
// after the fact.
var (
	itemsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeflow_items_total",
		Help: "Master keys processed by a pipeline, by terminal outcome.",
	}, []string{"pipeline", "outcome"})

	itemDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeflow_item_duration_seconds",
		Help:    "Wall-clock time spent running one master key through a pipeline's exec_order.",
		Buckets: prometheus.DefBuckets,
	}, []string{"pipeline"})

	inflightWorkers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pipeflow_inflight_workers",
		Help: "Size of a pipeline's dispatch worker pool while a run is in progress.",
	}, []string{"pipeline"})

	registerMetricsOnce sync.Once
)

// registerMetrics registers the package's collectors with the default
// registry exactly once; harmless to call from multiple Pipeline.Run
// invocations or concurrent tests.
func registerMetrics() {
	registerMetricsOnce.Do(func() {
		prometheus.MustRegister(itemsTotal, itemDuration, inflightWorkers)
	})
}

func observeOutcome(pipeline string, outcome itemOutcome) {
	var label string
	switch outcome {
	case outcomeDone:
		label = "done"
	case outcomeSkipped:
		label = "skipped"
	case outcomeStopped:
		label = "stopped"
	case outcomeFailed:
		label = "failed"
	default:
		label = "unknown"
	}
	itemsTotal.WithLabelValues(pipeline, label).Inc()
}
