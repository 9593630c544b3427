package devserver

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for mirrorpair_pairing_requests_total.
const (
	outcomeOK       = "ok"
	outcomeRejected = "rejected"
	outcomeInvalid  = "invalid"
	outcomeError    = "error"
)

type metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	expired  prometheus.Counter
}

func newMetrics(live func() int) *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mirrorpair",
			Subsystem: "pairing",
			Name:      "requests_total",
			Help:      "Pairing API requests by operation and outcome.",
		}, []string{"op", "outcome"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mirrorpair",
			Subsystem: "pairing",
			Name:      "expired_total",
			Help:      "Pairings removed because their TTL elapsed.",
		}),
	}
	m.registry.MustRegister(
		m.requests,
		m.expired,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "mirrorpair",
			Subsystem: "pairing",
			Name:      "live",
			Help:      "Pairings currently held in memory.",
		}, func() float64 { return float64(live()) }),
		collectors.NewGoCollector(),
	)
	return m
}

func (m *metrics) observe(op, outcome string) {
	m.requests.WithLabelValues(op, outcome).Inc()
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
