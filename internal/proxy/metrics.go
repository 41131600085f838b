package proxy

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vyrodovalexey/avrproxy/internal/upstream"
)

// proxyMetrics contains Prometheus metrics for routing and forwarding.
type proxyMetrics struct {
	requestsTotal    *prometheus.CounterVec
	upstreamErrors   *prometheus.CounterVec
	passThroughTotal prometheus.Counter
	connectSeconds   prometheus.Histogram
}

var (
	proxyMetricsInstance *proxyMetrics
	proxyMetricsOnce     sync.Once
)

// initProxyMetrics initializes the singleton metrics instance with the
// given registry. A nil registry uses the default registerer.
// Subsequent calls are no-ops.
func initProxyMetrics(registry *prometheus.Registry) {
	proxyMetricsOnce.Do(func() {
		var registerer prometheus.Registerer
		if registry != nil {
			registerer = registry
		} else {
			registerer = prometheus.DefaultRegisterer
		}
		factory := promauto.With(registerer)
		proxyMetricsInstance = &proxyMetrics{
			requestsTotal: factory.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "avrproxy",
					Subsystem: "proxy",
					Name:      "requests_total",
					Help:      "Total number of routed requests by outcome",
				},
				[]string{"outcome"},
			),
			upstreamErrors: factory.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "avrproxy",
					Subsystem: "proxy",
					Name:      "upstream_errors_total",
					Help:      "Total number of upstream connection errors",
				},
				[]string{"error_type"},
			),
			passThroughTotal: factory.NewCounter(
				prometheus.CounterOpts{
					Namespace: "avrproxy",
					Subsystem: "proxy",
					Name:      "pass_through_total",
					Help:      "Total number of response chunks short-circuited to raw pass-through",
				},
			),
			connectSeconds: factory.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: "avrproxy",
					Subsystem: "proxy",
					Name:      "upstream_connect_seconds",
					Help:      "Duration of upstream connection establishment",
					Buckets: []float64{
						.001, .005, .01, .025, .05,
						.1, .25, .5, 1, 2.5,
					},
				},
			),
		}

		outcomes := []string{"routed", "aborted", "no_route", "connect_error"}
		for _, outcome := range outcomes {
			proxyMetricsInstance.requestsTotal.WithLabelValues(outcome)
		}
	})
}

// InitMetrics registers proxy metrics with the given registry. Call
// once at startup before any handler runs.
func InitMetrics(registry *prometheus.Registry) {
	initProxyMetrics(registry)
}

// getProxyMetrics returns the singleton, lazily registering with the
// default registerer if InitMetrics was never called.
func getProxyMetrics() *proxyMetrics {
	initProxyMetrics(nil)
	return proxyMetricsInstance
}

// connectErrorType maps a connection error to its metric label.
func connectErrorType(err error) string {
	switch {
	case errors.Is(err, upstream.ErrConnectionRefused):
		return "connection_refused"
	case errors.Is(err, upstream.ErrTLSHandshake):
		return "tls_handshake"
	case errors.Is(err, upstream.ErrCircuitOpen):
		return "circuit_open"
	default:
		return "other"
	}
}
