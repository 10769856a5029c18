package proxy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the proxy's Prometheus collectors. Each proxy owns its own
// registry so several proxies can live in one process.
type metrics struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	streamsInFlight  prometheus.Gauge
	tokensTotal      *prometheus.CounterVec
	rateLimitedTotal prometheus.Counter
	turnsStored      prometheus.Counter
	turnsDropped     prometheus.Counter
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)
	return &metrics{
		registry: reg,

		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "veneer_proxy_requests_total",
				Help: "Total number of proxy requests by route and status code",
			},
			[]string{"route", "status"},
		),

		upstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "veneer_proxy_upstream_duration_seconds",
				Help:    "Time until the upstream response headers arrive",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"route"},
		),

		streamsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "veneer_proxy_streams_in_flight",
				Help: "Number of chat streams currently being relayed",
			},
		),

		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "veneer_proxy_tokens_total",
				Help: "Tokens relayed by model and kind (prompt or completion)",
			},
			[]string{"model", "kind"},
		),

		rateLimitedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "veneer_proxy_rate_limited_total",
				Help: "Requests rejected by the upstream rate limiter",
			},
		),

		turnsStored: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "veneer_proxy_turns_stored_total",
				Help: "Chat turns newly written to storage",
			},
		),

		turnsDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "veneer_proxy_turns_dropped_total",
				Help: "Chat turns dropped because the worker queue was full",
			},
		),
	}
}
