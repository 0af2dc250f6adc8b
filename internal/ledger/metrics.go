package ledger

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketmirror_ledger_fetches_total",
			Help: "Total number of successful ledger fetches by contract address",
		},
		[]string{"address"},
	)

	fetchedTransactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketmirror_ledger_transactions_fetched_total",
			Help: "Total number of transactions fetched by contract address",
		},
		[]string{"address"},
	)

	fetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketmirror_ledger_fetch_errors_total",
			Help: "Total number of failed ledger fetches by contract address",
		},
		[]string{"address"},
	)

	fetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketmirror_ledger_fetch_duration_seconds",
			Help:    "Duration of ledger fetch requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"address"},
	)

	retries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketmirror_ledger_retries_total",
			Help: "Total number of ledger request retries by operation",
		},
		[]string{"operation"},
	)
)

func FetchesInc(address string, transactions int) {
	fetches.WithLabelValues(address).Inc()
	fetchedTransactions.WithLabelValues(address).Add(float64(transactions))
}

func FetchErrorsInc(address string) {
	fetchErrors.WithLabelValues(address).Inc()
}

func FetchDuration(address string, duration time.Duration) {
	fetchDuration.WithLabelValues(address).Observe(duration.Seconds())
}

func RetriesInc(operation string) {
	retries.WithLabelValues(operation).Inc()
}
