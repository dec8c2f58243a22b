// Package metrics exposes the Prometheus instruments shared by the catalog
// engine and the HTTP layer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "brucewnd"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	unitRetries  *prometheus.CounterVec
	unitFailures *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		unitRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unit_of_work_retries_total",
			Help:      "Units of work re-run after a retryable conflict.",
		}, []string{"op"}),
		unitFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unit_of_work_failures_total",
			Help:      "Units of work that ended in an error, by error kind.",
		}, []string{"op", "kind"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served.",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) UnitRetry(op string) {
	if m == nil {
		return
	}
	m.unitRetries.WithLabelValues(op).Inc()
}

func (m *Metrics) UnitFailure(op, kind string) {
	if m == nil {
		return
	}
	m.unitFailures.WithLabelValues(op, kind).Inc()
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
