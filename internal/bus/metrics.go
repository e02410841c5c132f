package bus

import "github.com/prometheus/client_golang/prometheus"

var (
	busEventsPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "masterd",
		Subsystem: "bus",
		Name:      "events_published_total",
		Help:      "Total events appended across all runs",
	})

	busDroppedSends = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "masterd",
		Subsystem: "bus",
		Name:      "dropped_sends_total",
		Help:      "Events dropped because a subscriber channel was full",
	})

	busActiveRuns = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "masterd",
		Subsystem: "bus",
		Name:      "active_runs",
		Help:      "Runs currently holding event state",
	})

	busSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "masterd",
		Subsystem: "bus",
		Name:      "subscribers",
		Help:      "Currently registered run subscribers",
	})
)

func init() {
	prometheus.MustRegister(busEventsPublished, busDroppedSends, busActiveRuns, busSubscribers)
}
