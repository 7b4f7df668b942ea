package datastore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	cmdCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tinyds",
			Subsystem: "datastore",
			Name:      "commands_total",
			Help:      "Counter of datastore commands.",
		}, []string{"command", "result"})

	cmdDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tinyds",
			Subsystem: "datastore",
			Name:      "command_duration_seconds",
			Help:      "Bucketed histogram of datastore command duration.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 20),
		}, []string{"command"})

	indexGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tinyds",
			Subsystem: "datastore",
			Name:      "composite_indexes",
			Help:      "Number of registered composite indexes.",
		}, []string{"app"})
)

func init() {
	prometheus.MustRegister(cmdCounter)
	prometheus.MustRegister(cmdDuration)
	prometheus.MustRegister(indexGauge)
}

func observe(cmd string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "err"
	}
	cmdCounter.WithLabelValues(cmd, result).Inc()
	cmdDuration.WithLabelValues(cmd).Observe(time.Since(start).Seconds())
}
