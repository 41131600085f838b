package server

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// serverMetrics contains Prometheus metrics for the listener.
type serverMetrics struct {
	activeConnections prometheus.Gauge
	acceptedTotal     prometheus.Counter
	rejectedTotal     prometheus.Counter
}

var (
	serverMetricsInstance *serverMetrics
	serverMetricsOnce     sync.Once
)

func initServerMetrics(registry *prometheus.Registry) {
	serverMetricsOnce.Do(func() {
		var registerer prometheus.Registerer
		if registry != nil {
			registerer = registry
		} else {
			registerer = prometheus.DefaultRegisterer
		}
		factory := promauto.With(registerer)
		serverMetricsInstance = &serverMetrics{
			activeConnections: factory.NewGauge(
				prometheus.GaugeOpts{
					Namespace: "avrproxy",
					Subsystem: "server",
					Name:      "connections_active",
					Help:      "Number of active client connections",
				},
			),
			acceptedTotal: factory.NewCounter(
				prometheus.CounterOpts{
					Namespace: "avrproxy",
					Subsystem: "server",
					Name:      "connections_accepted_total",
					Help:      "Total number of accepted client connections",
				},
			),
			rejectedTotal: factory.NewCounter(
				prometheus.CounterOpts{
					Namespace: "avrproxy",
					Subsystem: "server",
					Name:      "connections_rejected_total",
					Help:      "Total number of client connections rejected at the cap",
				},
			),
		}
	})
}

// InitMetrics registers server metrics with the given registry. Call
// once at startup before the server accepts connections.
func InitMetrics(registry *prometheus.Registry) {
	initServerMetrics(registry)
}

func getServerMetrics() *serverMetrics {
	initServerMetrics(nil)
	return serverMetricsInstance
}
