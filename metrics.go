package rosweb

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	requests            *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	retries             *prometheus.CounterVec
	activeSubscriptions *prometheus.GaugeVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rosweb",
				Subsystem: "client",
				Name:      "requests_total",
				Help:      "Bridge requests by endpoint and outcome",
			},
			[]string{"op", "outcome"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "rosweb",
				Subsystem: "client",
				Name:      "request_duration_seconds",
				Help:      "Duration of bridge requests including retries",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"op"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rosweb",
				Subsystem: "client",
				Name:      "retries_total",
				Help:      "Retried bridge request attempts by endpoint",
			},
			[]string{"op"},
		),
		activeSubscriptions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "rosweb",
				Subsystem: "client",
				Name:      "active_subscriptions",
				Help:      "Subscriptions with a running poll loop",
			},
			[]string{"kind"},
		),
	}

	if reg != nil {
		m.requests = register(reg, m.requests)
		m.requestDuration = register(reg, m.requestDuration)
		m.retries = register(reg, m.retries)
		m.activeSubscriptions = register(reg, m.activeSubscriptions)
	}

	return m
}

// register adds c to reg, reusing the collector already registered by another
// bridge sharing the same registry.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

func (m *metrics) observeRequest(op Op, res Result, elapsed time.Duration) {
	m.requests.WithLabelValues(string(op), res.Kind().String()).Inc()
	m.requestDuration.WithLabelValues(string(op)).Observe(elapsed.Seconds())
}

func (m *metrics) observeRetry(op Op) {
	m.retries.WithLabelValues(string(op)).Inc()
}

func (m *metrics) subscriptionStarted(kind string) {
	m.activeSubscriptions.WithLabelValues(kind).Inc()
}

func (m *metrics) subscriptionStopped(kind string) {
	m.activeSubscriptions.WithLabelValues(kind).Dec()
}
