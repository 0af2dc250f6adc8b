package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketmirror_poll_cycles_total",
			Help: "Total number of poll cycles started by contract address",
		},
		[]string{"address"},
	)

	cycleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketmirror_poll_cycle_errors_total",
			Help: "Total number of failed poll cycles by contract address",
		},
		[]string{"address"},
	)

	overlapSkips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketmirror_poll_overlap_skips_total",
			Help: "Total number of ticks skipped because the previous cycle was still running",
		},
		[]string{"address"},
	)

	lastSequence = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marketmirror_cursor_last_sequence",
			Help: "Last ledger sequence the cursor advanced past, by contract address",
		},
		[]string{"address"},
	)
)

func CyclesInc(address string) {
	cycles.WithLabelValues(address).Inc()
}

func CycleErrorsInc(address string) {
	cycleErrors.WithLabelValues(address).Inc()
}

func OverlapSkipsInc(address string) {
	overlapSkips.WithLabelValues(address).Inc()
}

func LastSequenceSet(address string, sequence uint64) {
	lastSequence.WithLabelValues(address).Set(float64(sequence))
}
