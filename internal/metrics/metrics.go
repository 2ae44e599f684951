// Package metrics exposes Prometheus collectors for probes, recorded
// notifications and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jpalmerr/conflux"
)

const namespace = "conflux"

// Collector owns a private registry so tests and embedding applications
// never collide on the global one.
type Collector struct {
	registry *prometheus.Registry

	probes          *prometheus.CounterVec
	probeLatency    *prometheus.HistogramVec
	notifications   *prometheus.CounterVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New creates a Collector. activeChecks is sampled on every scrape; pass
// nil to omit the gauge.
func New(activeChecks func() int) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		probes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probes_total",
				Help:      "Total number of health check probes by outcome",
			},
			[]string{"outcome"},
		),
		probeLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "probe_duration_seconds",
				Help:      "Health check probe latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_recorded_total",
				Help:      "Total number of events folded into the notification ledger by source",
			},
			[]string{"source"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}

	c.registry.MustRegister(
		c.probes,
		c.probeLatency,
		c.notifications,
		c.requests,
		c.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if activeChecks != nil {
		c.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_health_checks",
				Help:      "Number of registered health checks",
			},
			func() float64 { return float64(activeChecks()) },
		))
	}

	return c
}

// ObserveProbe is a conflux probe callback.
func (c *Collector) ObserveProbe(r conflux.ProbeResult) {
	outcome := string(r.Outcome)
	c.probes.WithLabelValues(outcome).Inc()
	c.probeLatency.WithLabelValues(outcome).Observe(r.Latency.Seconds())
}

// ObserveNotification is a conflux notification callback.
func (c *Collector) ObserveNotification(n conflux.Notification) {
	c.notifications.WithLabelValues(n.Source).Inc()
}

// Middleware counts and times requests. The path label is the chi route
// pattern, not the raw URL, so IDs do not explode cardinality.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		labels := prometheus.Labels{
			"method": r.Method,
			"path":   path,
			"status": strconv.Itoa(status),
		}
		c.requests.With(labels).Inc()
		c.requestDuration.With(labels).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
