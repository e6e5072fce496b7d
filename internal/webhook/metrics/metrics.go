package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the webhook service.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	AuthFailures     *prometheus.CounterVec
	ReplaysDetected  prometheus.Counter
	RateLimited      prometheus.Counter
	RoutingDecisions *prometheus.CounterVec
	ApplyErrors      prometheus.Counter
	AlertsSent       prometheus.Counter
}

// AuthFailure counts one signature verification failure.
func (m *Metrics) AuthFailure(reason string) {
	m.AuthFailures.WithLabelValues(reason).Inc()
}

// RateLimitRejected counts one 429.
func (m *Metrics) RateLimitRejected() {
	m.RateLimited.Inc()
}

// ReplayDetected counts one 409.
func (m *Metrics) ReplayDetected() {
	m.ReplaysDetected.Inc()
}

// RoutingDecision counts one decision by its CX routing source.
func (m *Metrics) RoutingDecision(cxSource string) {
	m.RoutingDecisions.WithLabelValues(cxSource).Inc()
}

// ObserveRequest counts one completed request by status code.
func (m *Metrics) ObserveRequest(status int) {
	m.RequestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
}

// ApplyError counts one failed tracker write-back.
func (m *Metrics) ApplyError() {
	m.ApplyErrors.Inc()
}

// AlertSent counts one emitted security alert.
func (m *Metrics) AlertSent() {
	m.AlertsSent.Inc()
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketrouter_webhook_requests_total",
			Help: "Total webhook requests by response status",
		}, []string{"status"}),
		AuthFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketrouter_auth_failures_total",
			Help: "Total signature verification failures by reason",
		}, []string{"reason"}),
		ReplaysDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ticketrouter_replays_detected_total",
			Help: "Total events rejected as replays",
		}),
		RateLimited: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ticketrouter_rate_limited_total",
			Help: "Total requests rejected by the rate limiter",
		}),
		RoutingDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketrouter_routing_decisions_total",
			Help: "Total routing decisions by CX routing source",
		}, []string{"cx_source"}),
		ApplyErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ticketrouter_apply_errors_total",
			Help: "Total failed write-back operations against the tracker",
		}),
		AlertsSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ticketrouter_security_alerts_sent_total",
			Help: "Total security anomaly alerts emitted",
		}),
	}
}
