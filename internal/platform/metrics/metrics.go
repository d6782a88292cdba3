// Package metrics holds the Prometheus collectors for store calls,
// federation lookups and HTTP requests.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/healthfed/healthfed/internal/platform/apperror"
)

const namespace = "healthfed"

// Metrics groups all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	StoreCalls         *prometheus.CounterVec
	StoreDuration      *prometheus.HistogramVec
	FederationFailures *prometheus.CounterVec
	HTTPRequests       *prometheus.CounterVec
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		StoreCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "calls_total",
				Help:      "Store calls by store, operation and outcome",
			},
			[]string{"store", "operation", "outcome"},
		),

		StoreDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "call_duration_seconds",
				Help:      "Store call latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"store", "operation"},
		),

		FederationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "federation",
				Name:      "failures_total",
				Help:      "Composite lookups aborted, by view, stage and failure kind",
			},
			[]string{"view", "stage", "kind"},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
	}

	m.registry.MustRegister(
		m.StoreCalls,
		m.StoreDuration,
		m.FederationFailures,
		m.HTTPRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveStoreCall records the outcome and latency of one adapter call.
func (m *Metrics) ObserveStoreCall(store, operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	switch {
	case errors.Is(err, context.Canceled):
		outcome = "canceled"
	case err != nil:
		outcome = apperror.KindOf(err).String()
	}
	m.StoreCalls.WithLabelValues(store, operation, outcome).Inc()
	m.StoreDuration.WithLabelValues(store, operation).Observe(time.Since(start).Seconds())
}

// ObserveFederationFailure counts an aborted composite lookup.
func (m *Metrics) ObserveFederationFailure(view, stage string, err error) {
	if m == nil {
		return
	}
	m.FederationFailures.WithLabelValues(view, stage, apperror.KindOf(err).String()).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
