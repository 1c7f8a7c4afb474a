// Package obs holds the bridge's Prometheus metrics and OpenTelemetry setup.
package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "guildbot"

// Metrics owns a dedicated Prometheus registry so that several instances
// (tests, for one) never collide on the default registerer.
type Metrics struct {
	registry *prometheus.Registry

	decisions       *prometheus.CounterVec
	accessChecks    *prometheus.CounterVec
	telegramCalls   *prometheus.CounterVec
	backendCalls    *prometheus.CounterVec
	updates         *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	httpInFlight    prometheus.Gauge
	handlerInFlight prometheus.Gauge
}

// NewMetrics creates and registers every collector.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_decisions_total",
			Help:      "Admission decisions by event kind and outcome.",
		}, []string{"event", "decision"}),
		accessChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_checks_total",
			Help:      "Access checks against the Guild backend by outcome.",
		}, []string{"outcome"}),
		telegramCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telegram_requests_total",
			Help:      "Telegram Bot API calls by method and result.",
		}, []string{"method", "result"}),
		backendCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Guild backend calls by operation and result.",
		}, []string{"operation", "result"}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telegram_updates_total",
			Help:      "Telegram updates received by kind.",
		}, []string{"kind"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Control API requests.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Control API latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "Control API requests being served.",
		}),
		handlerInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "update_handlers_in_flight",
			Help:      "Telegram update handlers currently running.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.decisions,
		m.accessChecks,
		m.telegramCalls,
		m.backendCalls,
		m.updates,
		m.httpRequests,
		m.httpDuration,
		m.httpInFlight,
		m.handlerInFlight,
	)
	return m
}

// Registry exposes the underlying registry for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordDecision counts one admission decision.
func (m *Metrics) RecordDecision(event, decision string) {
	m.decisions.WithLabelValues(event, decision).Inc()
}

// RecordAccessCheck counts one access check. outcome is one of
// "granted", "denied", "guild_not_found", "user_not_found" or "error".
func (m *Metrics) RecordAccessCheck(outcome string) {
	m.accessChecks.WithLabelValues(outcome).Inc()
}

// RecordTelegramCall counts one Bot API call.
func (m *Metrics) RecordTelegramCall(method string, err error) {
	m.telegramCalls.WithLabelValues(method, resultLabel(err)).Inc()
}

// RecordBackendCall counts one Guild backend call.
func (m *Metrics) RecordBackendCall(operation string, err error) {
	m.backendCalls.WithLabelValues(operation, resultLabel(err)).Inc()
}

// RecordUpdate counts one received Telegram update.
func (m *Metrics) RecordUpdate(kind string) {
	m.updates.WithLabelValues(kind).Inc()
}

// HandlerStarted and HandlerDone bracket a running update handler.
func (m *Metrics) HandlerStarted() { m.handlerInFlight.Inc() }

// HandlerDone marks an update handler as finished.
func (m *Metrics) HandlerDone() { m.handlerInFlight.Dec() }

// ObserveHTTP records one served control API request.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// HTTPInFlight returns the in-flight gauge used by the gateway middleware.
func (m *Metrics) HTTPInFlight() prometheus.Gauge { return m.httpInFlight }

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
