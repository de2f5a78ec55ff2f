package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ServerMetrics struct {
	registry     *prometheus.Registry
	Requests     *prometheus.CounterVec
	LatencyMS    *prometheus.HistogramVec
	InFlight     prometheus.Gauge
	Transitions  *prometheus.CounterVec
	Transactions *prometheus.CounterVec
}

func NewServerMetrics(service string) *ServerMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "olatx",
		Subsystem: service,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "olatx",
		Subsystem: service,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})
	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "olatx",
		Subsystem: service,
		Name:      "http_requests_in_flight",
		Help:      "Current number of HTTP requests in flight.",
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "olatx",
		Subsystem: service,
		Name:      "participant_callbacks_total",
		Help:      "Coordinator callbacks by requested status and outcome.",
	}, []string{"status", "outcome"})
	transactions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "olatx",
		Subsystem: service,
		Name:      "chained_transactions_total",
		Help:      "Chained calls by outcome.",
	}, []string{"outcome"})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		requests, latency, inFlight, transitions, transactions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &ServerMetrics{
		registry:     registry,
		Requests:     requests,
		LatencyMS:    latency,
		InFlight:     inFlight,
		Transitions:  transitions,
		Transactions: transactions,
	}
}

func (m *ServerMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *ServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
