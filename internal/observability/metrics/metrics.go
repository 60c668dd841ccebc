// Package metrics exposes the service's prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
)

// Metrics bundles the collectors the billing core reports to.
type Metrics struct {
	registry *prometheus.Registry

	SourceNotifications *prometheus.CounterVec
	FetchFailures       *prometheus.CounterVec
	AutomationFlips     *prometheus.CounterVec
	LedgerRecords       *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New builds the collectors against a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SourceNotifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "carelink_source_notifications_total",
			Help: "Reconciliation notifications emitted per upstream source.",
		}, []string{"source"}),
		FetchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "carelink_fetch_failures_total",
			Help: "Upstream fetch failures resolved to empty result sets.",
		}, []string{"source"}),
		AutomationFlips: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "carelink_ledger_automation_flips_total",
			Help: "Billing record status transitions applied by automations.",
		}, []string{"transition"}),
		LedgerRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "carelink_ledger_records_total",
			Help: "Billing records added to the ledger by type.",
		}, []string{"type"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "carelink_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "carelink_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Registry exposes the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// GinMiddleware records request counts and latency per route.
func GinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// Module wires the metrics collectors for the application.
var Module = fx.Module("metrics",
	fx.Provide(New),
)
