package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	InboundEvents    *prometheus.CounterVec
	OrderTransitions *prometheus.CounterVec
	GatewaySends     *prometheus.CounterVec
	GatewayLatency   *prometheus.HistogramVec
	PublisherUpdates *prometheus.CounterVec
	Errors           *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			InboundEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "inbound_events_total",
				Help:      "Total inbound gateway events processed by type.",
			}, []string{"type"}),
			OrderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "order_transitions_total",
				Help:      "Total order lifecycle transitions by event and outcome.",
			}, []string{"event", "outcome"}),
			GatewaySends: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_sends_total",
				Help:      "Total outbound gateway deliveries by type and status.",
			}, []string{"type", "status"}),
			GatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "gateway_send_duration_seconds",
				Help:      "Latency distribution for outbound gateway deliveries.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"type", "status"}),
			PublisherUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "publisher_updates_total",
				Help:      "Total channel post publish/update attempts by status.",
			}, []string{"status"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.InboundEvents,
			metricsInstance.OrderTransitions,
			metricsInstance.GatewaySends,
			metricsInstance.GatewayLatency,
			metricsInstance.PublisherUpdates,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
