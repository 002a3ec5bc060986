package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics records the outcome of inbound provider webhooks.
type WebhookMetrics struct {
	received    *prometheus.CounterVec
	duplicates  *prometheus.CounterVec
	transitions *prometheus.CounterVec
	noops       *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewWebhookMetrics registers the webhook metrics on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_received_total",
		Help: "Provider webhook deliveries received.",
	}, []string{"provider"})
	duplicates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_duplicate_total",
		Help: "Webhook deliveries already present in the event log.",
	}, []string{"provider"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_transitions_applied_total",
		Help: "Status transitions applied by the reconciler.",
	}, []string{"provider", "status"})
	noops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_transitions_noop_total",
		Help: "Webhook deliveries that produced no status change.",
	}, []string{"provider"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_processing_failures_total",
		Help: "Webhook deliveries that failed processing and were parked for retry.",
	}, []string{"provider"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_processing_duration_seconds",
		Help:    "Duration of webhook processing in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})
	reg.MustRegister(received, duplicates, transitions, noops, failures, duration)
	return &WebhookMetrics{
		received:    received,
		duplicates:  duplicates,
		transitions: transitions,
		noops:       noops,
		failures:    failures,
		duration:    duration,
	}
}

// IncReceived counts a delivery for the provider.
func (m *WebhookMetrics) IncReceived(provider string) {
	if m == nil || m.received == nil {
		return
	}
	m.received.WithLabelValues(normalizeLabel(provider)).Inc()
}

// IncDuplicate counts a delivery already present in the event log.
func (m *WebhookMetrics) IncDuplicate(provider string) {
	if m == nil || m.duplicates == nil {
		return
	}
	m.duplicates.WithLabelValues(normalizeLabel(provider)).Inc()
}

// IncTransition counts an applied status transition.
func (m *WebhookMetrics) IncTransition(provider, status string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(provider), normalizeLabel(status)).Inc()
}

// IncNoop counts a delivery that changed nothing.
func (m *WebhookMetrics) IncNoop(provider string) {
	if m == nil || m.noops == nil {
		return
	}
	m.noops.WithLabelValues(normalizeLabel(provider)).Inc()
}

// IncFailure counts a delivery parked for retry.
func (m *WebhookMetrics) IncFailure(provider string) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.WithLabelValues(normalizeLabel(provider)).Inc()
}

// ObserveDuration records how long processing a delivery took.
func (m *WebhookMetrics) ObserveDuration(provider string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(provider)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
