package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(queueDeliveriesTotal, queueEnqueueErrorsTotal, queueReclaimedTotal, dbUp) }

var (
	queueDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulkgen_queue_deliveries_total",
			Help: "Queue deliveries handed to the job driver, labeled by backend and outcome.",
		},
		[]string{"backend", "outcome"}, // outcome: 'acked', 'retried', 'dropped'
	)

	queueEnqueueErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulkgen_queue_enqueue_errors_total",
			Help: "Failed enqueue attempts per backend.",
		},
		[]string{"backend"},
	)

	queueReclaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bulkgen_queue_reclaimed_total",
			Help: "Unacknowledged Redis messages moved back to the pending list.",
		},
	)

	dbUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bulkgen_db_up",
			Help: "1 when the last database ping succeeded, 0 otherwise.",
		},
	)
)

func IncQueueDelivery(backend, outcome string) {
	queueDeliveriesTotal.WithLabelValues(norm(backend), norm(outcome)).Inc()
}

func IncEnqueueError(backend string) {
	queueEnqueueErrorsTotal.WithLabelValues(norm(backend)).Inc()
}

func AddReclaimed(n int) {
	queueReclaimedTotal.Add(float64(n))
}

func SetDBUp(up bool) {
	if up {
		dbUp.Set(1)
		return
	}
	dbUp.Set(0)
}
