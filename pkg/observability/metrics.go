package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Webhook metrics
	WebhookEventsTotal         *prometheus.CounterVec
	WebhookVerifyFailuresTotal prometheus.Counter

	// Provisioning metrics
	MaterializationsTotal *prometheus.CounterVec
	SyncRequestsTotal     *prometheus.CounterVec

	// Invitation metrics
	InvitationSendsTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollcall_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rollcall_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		WebhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollcall_webhook_events_total",
				Help: "Total number of identity provider webhook events by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		WebhookVerifyFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rollcall_webhook_verify_failures_total",
				Help: "Total number of webhook deliveries rejected by signature verification",
			},
		),
		MaterializationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollcall_materializations_total",
				Help: "Total number of account materialization attempts by outcome",
			},
			[]string{"outcome"},
		),
		SyncRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollcall_sync_requests_total",
				Help: "Total number of client sync reconciliation requests by outcome",
			},
			[]string{"outcome"},
		),
		InvitationSendsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollcall_invitation_sends_total",
				Help: "Total number of invitation API calls by outcome",
			},
			[]string{"outcome"},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "rollcall_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "rollcall_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.WebhookEventsTotal,
		m.WebhookVerifyFailuresTotal,
		m.MaterializationsTotal,
		m.SyncRequestsTotal,
		m.InvitationSendsTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest records a completed HTTP request
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
