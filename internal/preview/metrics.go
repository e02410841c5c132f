package preview

import "github.com/prometheus/client_golang/prometheus"

var (
	previewsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "masterd",
		Subsystem: "preview",
		Name:      "started_total",
		Help:      "Preview renders scheduled",
	})

	previewFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "masterd",
		Subsystem: "preview",
		Name:      "failures_total",
		Help:      "Preview renders that ended in error",
	})

	previewEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "masterd",
		Subsystem: "preview",
		Name:      "evictions_total",
		Help:      "Entries evicted by TTL, capacity or shutdown",
	})

	previewsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "masterd",
		Subsystem: "preview",
		Name:      "active",
		Help:      "Live preview entries",
	})
)

func init() {
	prometheus.MustRegister(previewsStarted, previewFailures, previewEvictions, previewsActive)
}
