package routing

import "github.com/prometheus/client_golang/prometheus"

var (
	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gend",
			Subsystem: "dispatch",
			Name:      "requests_total",
			Help:      "Total dispatches by terminal outcome",
		},
		[]string{"outcome"},
	)

	fallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gend",
			Subsystem: "dispatch",
			Name:      "fallbacks_total",
			Help:      "Total fallback hops by reason code",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(dispatchTotal, fallbacksTotal)
}
