package cursor

import "github.com/prometheus/client_golang/prometheus"

var (
	liveCursorGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tinyds",
			Subsystem: "cursor",
			Name:      "live",
			Help:      "Number of cursors in the cursor table.",
		})

	evictedCursorCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tinyds",
			Subsystem: "cursor",
			Name:      "evicted_total",
			Help:      "Counter of cursors dropped from a full cursor table.",
		})
)

func init() {
	prometheus.MustRegister(liveCursorGauge)
	prometheus.MustRegister(evictedCursorCounter)
}
