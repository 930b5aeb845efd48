// Package metrics exposes prometheus counters for session activity.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a dedicated registry. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	sessionsStarted *prometheus.CounterVec
	sessionUpdates  *prometheus.CounterVec
	durableFailures *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omnichannel_sessions_started_total",
			Help: "Session starts by outcome (cache_merge, durable_restore, created).",
		}, []string{"outcome"}),
		sessionUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omnichannel_session_updates_total",
			Help: "Session mutations by action and status.",
		}, []string{"action", "status"}),
		durableFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omnichannel_durable_failures_total",
			Help: "Best-effort durable backend calls that failed, by operation.",
		}, []string{"op"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "omnichannel_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		m.sessionsStarted,
		m.sessionUpdates,
		m.durableFailures,
		m.httpDuration,
		collectors.NewGoCollector(),
	)
	return m
}

// SessionStarted counts a start by outcome
func (m *Metrics) SessionStarted(outcome string) {
	if m == nil {
		return
	}
	m.sessionsStarted.WithLabelValues(outcome).Inc()
}

// SessionUpdated counts a mutation
func (m *Metrics) SessionUpdated(action string, ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.sessionUpdates.WithLabelValues(action, status).Inc()
}

// DurableFailure counts a swallowed durable backend failure
func (m *Metrics) DurableFailure(op string) {
	if m == nil {
		return
	}
	m.durableFailures.WithLabelValues(op).Inc()
}

// ObserveHTTP records request latency
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
