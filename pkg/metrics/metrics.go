package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProxyRequests counts /reverse-proxy requests by outcome.
	ProxyRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopfront_proxy_requests_total",
		Help: "Total number of reverse proxy requests by outcome",
	}, []string{"outcome"})

	// StorefrontQueries counts storefront API queries by outcome (ok, error, cache_hit).
	StorefrontQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopfront_storefront_queries_total",
		Help: "Total number of storefront API queries by outcome",
	}, []string{"outcome"})

	// LoaderDuration observes how long the layout loader takes.
	LoaderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shopfront_layout_loader_duration_seconds",
		Help:    "Duration of the layout loader in seconds",
		Buckets: prometheus.DefBuckets,
	})
)
