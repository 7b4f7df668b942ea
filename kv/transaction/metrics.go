package transaction

import "github.com/prometheus/client_golang/prometheus"

var (
	txnCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tinyds",
			Subsystem: "txn",
			Name:      "total",
			Help:      "Counter of finished transactions.",
		}, []string{"result"})

	droppedActionCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tinyds",
			Subsystem: "txn",
			Name:      "dropped_actions_total",
			Help:      "Counter of transactional actions that could not be delivered.",
		})

	lockWaitHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tinyds",
			Subsystem: "txn",
			Name:      "lock_wait_seconds",
			Help:      "Bucketed histogram of the time spent waiting for the transaction lock.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 20),
		})
)

func init() {
	prometheus.MustRegister(txnCounter)
	prometheus.MustRegister(droppedActionCounter)
	prometheus.MustRegister(lockWaitHistogram)
}
