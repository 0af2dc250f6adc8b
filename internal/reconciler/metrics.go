package reconciler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	events = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketmirror_events_total",
			Help: "Total number of reconciled events by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	deferred = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marketmirror_deferred_events",
			Help: "Number of events currently parked awaiting a prerequisite",
		},
	)

	refunds = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketmirror_escrow_refunds_total",
			Help: "Total number of escrows refunded by the deadline pass",
		},
	)
)

func EventsInc(kind, outcome string) {
	events.WithLabelValues(kind, outcome).Inc()
}

func DeferredSet(n int) {
	deferred.Set(float64(n))
}

func RefundsInc() {
	refunds.Inc()
}
