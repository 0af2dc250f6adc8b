package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	hits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketmirror_cache_hits_total",
			Help: "Total number of cache hits",
		},
	)

	misses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketmirror_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	invalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketmirror_cache_invalidations_total",
			Help: "Total number of cache keys invalidated",
		},
	)
)

func HitsInc() {
	hits.Inc()
}

func MissesInc() {
	misses.Inc()
}

func InvalidationsAdd(n int) {
	invalidations.Add(float64(n))
}
