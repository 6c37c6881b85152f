package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		jobsCreatedTotal,
		jobsFinishedTotal,
		pagesProcessedTotal,
		itemsTotal,
		stepDuration,
	)
}

var (
	jobsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulkgen_jobs_created_total",
			Help: "Bulk jobs accepted, labeled by selection mode.",
		},
		[]string{"mode"}, // 'all', 'ids'
	)

	jobsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulkgen_jobs_finished_total",
			Help: "Bulk jobs that reached a terminal status.",
		},
		[]string{"status"}, // 'completed', 'failed', 'cancelled'
	)

	pagesProcessedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bulkgen_pages_processed_total",
			Help: "Catalog pages committed by the job driver.",
		},
	)

	itemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulkgen_items_total",
			Help: "Products sent to generation, labeled by per-item outcome.",
		},
		[]string{"outcome"}, // 'succeeded', 'failed'
	)

	stepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bulkgen_step_duration_seconds",
			Help:    "Duration of one job driver step (one queue delivery).",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"result"}, // 'continued', 'completed', 'failed', 'skipped'
	)
)

func IncJobCreated(mode string) {
	jobsCreatedTotal.WithLabelValues(norm(mode)).Inc()
}

func IncJobFinished(status string) {
	jobsFinishedTotal.WithLabelValues(norm(status)).Inc()
}

// ObservePage records one committed page and its per-item outcomes.
func ObservePage(succeeded, failed int) {
	pagesProcessedTotal.Inc()
	if succeeded > 0 {
		itemsTotal.WithLabelValues("succeeded").Add(float64(succeeded))
	}
	if failed > 0 {
		itemsTotal.WithLabelValues("failed").Add(float64(failed))
	}
}

func ObserveStep(result string, d time.Duration) {
	stepDuration.WithLabelValues(norm(result)).Observe(d.Seconds())
}
