package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebhookMetrics counts provider notifications by reconciliation outcome.
type WebhookMetrics struct {
	events *prometheus.CounterVec
}

// NewWebhookMetrics registers webhook_events_total on reg. A nil registerer yields a no-op recorder.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_events_total",
		Help:      "Payment provider webhook deliveries by outcome.",
	}, []string{"provider", "outcome"})
	reg.MustRegister(events)
	return &WebhookMetrics{events: events}
}

// Observe counts one delivery.
func (m *WebhookMetrics) Observe(provider, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(label(provider), label(outcome)).Inc()
}
