// Package telemetry exposes Prometheus metrics for the clinic API: HTTP
// traffic, committed clinic changes, audited record access, and gauges for
// the database pool and websocket clients.
package telemetry

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clinicdash/clinic/internal/domain/clinic"
	"github.com/clinicdash/clinic/internal/platform/middleware"
)

const namespace = "clinic"

// Config holds telemetry settings.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// RuntimeMetrics adds the Go runtime and process collectors.
	RuntimeMetrics bool
}

func (c *Config) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "clinic-server"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "0.0.0"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
}

// Provider owns a private registry so tests and multiple servers do not
// collide on the global one.
type Provider struct {
	cfg      Config
	registry *prometheus.Registry

	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	activeRequests prometheus.Gauge
	changes        *prometheus.CounterVec
	recordAccess   *prometheus.CounterVec
}

func NewProvider(cfg Config) *Provider {
	cfg.applyDefaults()
	reg := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": cfg.ServiceName, "env": cfg.Environment}

	p := &Provider{
		cfg:      cfg,
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "http_requests_total",
			Help:        "Total HTTP requests by method, route and status.",
			ConstLabels: constLabels,
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "http_request_duration_seconds",
			Help:        "Duration of HTTP requests in seconds.",
			ConstLabels: constLabels,
			Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "route"}),
		activeRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "http_active_requests",
			Help:        "Requests currently being served.",
			ConstLabels: constLabels,
		}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "changes_total",
			Help:        "Committed mutations by topic and action.",
			ConstLabels: constLabels,
		}, []string{"topic", "action"}),
		recordAccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "record_access_total",
			Help:        "Audited API accesses by resource, action and status class.",
			ConstLabels: constLabels,
		}, []string{"resource", "action", "status_class"}),
	}

	reg.MustRegister(p.requests, p.duration, p.activeRequests, p.changes, p.recordAccess)
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "build_info",
		Help:        "Always 1; labelled with the running version.",
		ConstLabels: prometheus.Labels{"service": cfg.ServiceName, "env": cfg.Environment, "version": cfg.ServiceVersion},
	}, func() float64 { return 1 }))
	if cfg.RuntimeMetrics {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return p
}

func (p *Provider) Registry() *prometheus.Registry { return p.registry }

// MetricsMiddleware records request counts and latency labelled by the
// route pattern rather than the raw path, keeping label cardinality bounded.
func (p *Provider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p.activeRequests.Inc()
			defer p.activeRequests.Dec()

			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			p.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			p.duration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Notify implements clinic.Notifier.
func (p *Provider) Notify(_ context.Context, ch clinic.Change) {
	p.changes.WithLabelValues(ch.Topic, ch.Action).Inc()
}

// RecordAccess implements middleware.AuditRecorder.
func (p *Provider) RecordAccess(e middleware.AuditEntry) error {
	p.recordAccess.WithLabelValues(e.Resource, e.Action, statusClass(e.StatusCode)).Inc()
	return nil
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}

// ObservePool exports pgxpool statistics, read at scrape time.
func (p *Provider) ObservePool(pool *pgxpool.Pool) {
	gauge := func(name, help string, fn func(s *pgxpool.Stat) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db_pool",
			Name:      name,
			Help:      help,
		}, func() float64 { return fn(pool.Stat()) })
	}
	p.registry.MustRegister(
		gauge("total_connections", "Open connections.", func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) }),
		gauge("idle_connections", "Idle connections.", func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) }),
		gauge("acquired_connections", "Connections in use.", func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) }),
		gauge("max_connections", "Pool size limit.", func(s *pgxpool.Stat) float64 { return float64(s.MaxConns()) }),
	)
}

// ObserveGauge registers a gauge read from fn at scrape time.
func (p *Provider) ObserveGauge(name, help string, fn func() float64) {
	p.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Provider) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{
		Registry:          p.registry,
		EnableOpenMetrics: false,
	}))
}
