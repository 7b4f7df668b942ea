package idalloc

import "github.com/prometheus/client_golang/prometheus"

var (
	idGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tinyds",
			Subsystem: "idalloc",
			Name:      "counter",
			Help:      "Next unreserved id of each kind.",
		}, []string{"kind"})

	blockCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tinyds",
			Subsystem: "idalloc",
			Name:      "blocks_total",
			Help:      "Counter of id blocks reserved from storage.",
		}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(idGauge)
	prometheus.MustRegister(blockCounter)
}
