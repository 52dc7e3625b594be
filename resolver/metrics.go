package resolver

import "github.com/prometheus/client_golang/prometheus"

var (
	resolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evoarc_dns_resolutions_total",
			Help: "Resolution strategy attempts by outcome",
		},
		[]string{"strategy", "outcome"},
	)

	cacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "evoarc_dns_cache_hits_total",
			Help: "Resolutions served from the cache",
		},
	)
)

func init() {
	prometheus.MustRegister(resolutions, cacheHits)
}
