// Package metrics provides Prometheus metrics for the task queue.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	perrors "github.com/p-blackswan/taskqueue/internal/errors"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	StatusWritesTotal *prometheus.CounterVec
	RequestsTotal     *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskqueue_operations_total",
				Help: "Total registry operations by operation and result kind.",
			},
			[]string{"operation", "result"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taskqueue_operation_duration_seconds",
				Help:    "Registry operation duration, including the reload and save round trip.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		StatusWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskqueue_status_writes_total",
				Help: "Status document writes by result.",
			},
			[]string{"result"},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskqueue_http_requests_total",
				Help: "HTTP API requests by method, route and status code.",
			},
			[]string{"method", "route", "code"},
		),
		registry: reg,
	}

	reg.MustRegister(m.OperationsTotal)
	reg.MustRegister(m.OperationDuration)
	reg.MustRegister(m.StatusWritesTotal)
	reg.MustRegister(m.RequestsTotal)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveOperation records the outcome and latency of a registry operation.
// Failures are labelled with their error kind, or "error" when untyped.
func (m *Metrics) ObserveOperation(op string, d time.Duration, err error) {
	m.OperationsTotal.WithLabelValues(op, resultLabel(err)).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(d.Seconds())
}

// RecordStatusWrite counts a status document write.
func (m *Metrics) RecordStatusWrite(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.StatusWritesTotal.WithLabelValues(result).Inc()
}

// RecordRequest counts an HTTP API request.
func (m *Metrics) RecordRequest(method, route string, code int) {
	m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := perrors.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}
