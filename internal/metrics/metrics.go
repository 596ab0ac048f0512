package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pawcare"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status class.",
		},
		[]string{"route", "code"},
	)

	backendRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Calls to the booking backend by domain, operation and outcome.",
		},
		[]string{"domain", "operation", "outcome"},
	)

	backendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Latency of calls to the booking backend.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"domain", "operation"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Booking cache lookups by result.",
		},
		[]string{"result"},
	)

	actions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Booking actions by domain, kind and outcome.",
		},
		[]string{"domain", "action", "outcome"},
	)

	staleResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_fetch_results_total",
			Help:      "Fetch results discarded because a newer request was issued.",
		},
		[]string{"domain"},
	)

	openSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_sessions",
			Help:      "Booking screen sessions currently mounted.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			backendRequests,
			backendDuration,
			cacheLookups,
			actions,
			staleResults,
			openSessions,
		)
	})
}

func IncHTTP(route string, status int) {
	httpRequests.WithLabelValues(route, statusClass(status)).Inc()
}

func ObserveBackend(domain, operation, outcome string, elapsed time.Duration) {
	backendRequests.WithLabelValues(domain, operation, outcome).Inc()
	backendDuration.WithLabelValues(domain, operation).Observe(elapsed.Seconds())
}

func IncCache(hit bool) {
	if hit {
		cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	cacheLookups.WithLabelValues("miss").Inc()
}

func IncAction(domain, action, outcome string) {
	actions.WithLabelValues(domain, action, outcome).Inc()
}

func IncStale(domain string) {
	staleResults.WithLabelValues(domain).Inc()
}

func SetOpenSessions(n int) {
	openSessions.Set(float64(n))
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
