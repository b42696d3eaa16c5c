// Package metrics exposes the bridge's Prometheus collectors.
//
// A nil *Collector is a valid no-op receiver, so callers never need to
// nil-check.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"watsoniot-bridge/go-backend/internal/status"
)

const namespace = "wiotp_bridge"

type Collector struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	connects        *prometheus.CounterVec
	connectFailures *prometheus.CounterVec
	statusChanges   *prometheus.CounterVec
	adminRequests   *prometheus.CounterVec
	rateLimited     prometheus.Counter
}

// New registers every collector on a fresh registry. withRuntime adds the
// Go and process collectors.
func New(withRuntime bool) *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Inbound node messages by family, operation and outcome.",
		}, []string{"family", "operation", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time from message receipt to completion.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"family", "outcome"}),
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_connects_total",
			Help:      "Session replacements by family and credential source.",
		}, []string{"family", "source"}),
		connectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_connect_failures_total",
			Help:      "Failed session connection attempts by family.",
		}, []string{"family"}),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_changes_total",
			Help:      "Node status transitions by resulting state.",
		}, []string{"state"}),
		adminRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_requests_total",
			Help:      "Admin API requests by route and status code.",
		}, []string{"route", "code"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_rate_limited_total",
			Help:      "Admin API requests rejected by the rate limiter.",
		}),
	}
	reg.MustRegister(c.requests, c.requestDuration, c.connects, c.connectFailures, c.statusChanges, c.adminRequests, c.rateLimited)
	if withRuntime {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return c
}

// ObserveRequest records one handled message.
func (c *Collector) ObserveRequest(family, operation, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(family, operation, outcome).Inc()
	c.requestDuration.WithLabelValues(family, outcome).Observe(elapsed.Seconds())
}

func (c *Collector) SessionConnected(family, source string) {
	if c == nil {
		return
	}
	c.connects.WithLabelValues(family, source).Inc()
}

func (c *Collector) SessionConnectFailed(family string) {
	if c == nil {
		return
	}
	c.connectFailures.WithLabelValues(family).Inc()
}

// Publish counts status transitions; it satisfies status.Publisher.
func (c *Collector) Publish(_ string, s status.Status) {
	if c == nil {
		return
	}
	c.statusChanges.WithLabelValues(string(s.State)).Inc()
}

func (c *Collector) AdminRequest(route string, code int) {
	if c == nil {
		return
	}
	c.adminRequests.WithLabelValues(route, http.StatusText(code)).Inc()
}

func (c *Collector) RateLimited() {
	if c == nil {
		return
	}
	c.rateLimited.Inc()
}

// Registry returns the underlying registry; nil for a nil Collector.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
