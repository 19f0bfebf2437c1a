package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search orchestration Prometheus metrics.
var (
	SearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pricehub",
			Name:      "searches_total",
			Help:      "Total number of searches by terminal status",
		},
		[]string{"status"}, // "completed" / "failed"
	)

	SearchesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pricehub",
			Name:      "searches_active",
			Help:      "Number of searches currently running",
		},
	)

	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pricehub",
			Name:      "search_duration_seconds",
			Help:      "Wall time from dispatch to terminal event",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		},
	)

	VendorRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pricehub",
			Name:      "vendor_requests_total",
			Help:      "Total vendor lookups by vendor and outcome",
		},
		[]string{"vendor", "outcome"},
	)

	VendorRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pricehub",
			Name:      "vendor_request_duration_seconds",
			Help:      "Vendor lookup duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		},
		[]string{"vendor"},
	)

	ProductsFoundTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pricehub",
			Name:      "products_found_total",
			Help:      "Total products discovered, by vendor",
		},
		[]string{"vendor"},
	)

	StreamSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pricehub",
			Name:      "stream_subscribers",
			Help:      "Currently attached event stream subscribers",
		},
	)

	VendorCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pricehub",
			Name:      "vendor_cache_total",
			Help:      "Vendor result cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

var searchMetricsRegistered bool

// RegisterSearchMetrics registers Prometheus search metrics. Must be called once from main.
func RegisterSearchMetrics() {
	if searchMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchesTotal)
	prometheus.MustRegister(SearchesActive)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(VendorRequestsTotal)
	prometheus.MustRegister(VendorRequestDuration)
	prometheus.MustRegister(ProductsFoundTotal)
	prometheus.MustRegister(StreamSubscribers)
	prometheus.MustRegister(VendorCacheTotal)
	searchMetricsRegistered = true
}
