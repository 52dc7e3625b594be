package proxy

import "github.com/prometheus/client_golang/prometheus"

var udpQueries = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "evoarc_dns_proxy_queries_total",
		Help: "Datagrams handled by the local proxy, by outcome",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(udpQueries)
}
