// internal/metrics/metrics.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ridewallet"

// Metrics holds the engine's collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	Reconciliations *prometheus.CounterVec   // source, outcome
	Topups          *prometheus.CounterVec   // outcome
	RidePayments    *prometheus.CounterVec   // outcome
	Settlements     *prometheus.CounterVec   // outcome
	GatewayLatency  *prometheus.HistogramVec // op
	HTTPRequests    *prometheus.CounterVec   // route, code
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		Reconciliations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_outcomes_total",
			Help:      "Top-up reconciliation attempts by trigger and outcome.",
		}, []string{"source", "outcome"}),
		Topups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "topups_total",
			Help:      "Top-up initiations by outcome.",
		}, []string{"outcome"}),
		RidePayments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ride_payments_total",
			Help:      "Ride payments by outcome.",
		}, []string{"outcome"}),
		Settlements: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_drivers_total",
			Help:      "Drivers processed by settlement runs, by outcome.",
		}, []string{"outcome"}),
		GatewayLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "Latency of calls to the payment gateway.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"route", "code"}),
	}
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
