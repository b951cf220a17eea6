package api

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics exposed on /metrics.
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	validationsTotal *prometheus.CounterVec
	reloadsTotal     *prometheus.CounterVec
	cachedDocuments  *prometheus.GaugeVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics instance backed by its own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cxv_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status_code"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cxv_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		validationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cxv_policy_validations_total",
				Help: "Total number of policy definition validations by result",
			},
			[]string{"result"},
		),

		reloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cxv_rule_reloads_total",
				Help: "Total number of vocabulary and rule reload attempts by status",
			},
			[]string{"status"},
		),

		cachedDocuments: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cxv_jsonld_cached_documents",
				Help: "Number of JSON-LD documents registered in the cache by status",
			},
			[]string{"status"},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.validationsTotal,
		m.reloadsTotal,
		m.cachedDocuments,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route, statusCode string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordValidation records the result of one validation request.
func (m *Metrics) RecordValidation(result string) {
	m.validationsTotal.WithLabelValues(result).Inc()
}

// RecordReload records a vocabulary and rule reload attempt.
func (m *Metrics) RecordReload(status string) {
	m.reloadsTotal.WithLabelValues(status).Inc()
}

// SetCachedDocuments publishes how many cached documents registered and failed.
func (m *Metrics) SetCachedDocuments(registered, failed int) {
	m.cachedDocuments.WithLabelValues("registered").Set(float64(registered))
	m.cachedDocuments.WithLabelValues("failed").Set(float64(failed))
}

// Handler returns the Prometheus metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware records request metrics labelled with the matched route template.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		m.RecordHTTPRequest(r.Method, routeName(r), strconv.Itoa(wrapped.statusCode), time.Since(start))
	})
}

// routeName returns the path template of the matched route so labels stay bounded.
func routeName(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return "unknown"
	}
	tpl, err := route.GetPathTemplate()
	if err != nil {
		return "unknown"
	}
	return tpl
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("underlying ResponseWriter does not support http.Hijacker")
}
