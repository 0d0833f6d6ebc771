package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics tracks inbound provider notification processing.
type WebhookMetrics struct {
	events   *prometheus.CounterVec
	orphans  prometheus.Counter
	duration prometheus.Histogram
}

// NewWebhookMetrics registers webhook counters on the provided registerer.
// Result labels: accepted, duplicate, rejected, failed.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Provider webhook deliveries by outcome.",
	}, []string{"result", "kind"})
	orphans := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webhook_orphan_events_total",
		Help: "Events referencing a subscription unknown to the ledger.",
	})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "webhook_processing_seconds",
		Help:    "Webhook processing time in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(events, orphans, duration)
	return &WebhookMetrics{events: events, orphans: orphans, duration: duration}
}

// IncEvent counts a delivery outcome for the given event kind.
func (w *WebhookMetrics) IncEvent(result, kind string) {
	if w == nil || w.events == nil {
		return
	}
	w.events.WithLabelValues(normalizeLabel(result), normalizeLabel(kind)).Inc()
}

// IncOrphan counts an event that matched no ledger row.
func (w *WebhookMetrics) IncOrphan() {
	if w == nil || w.orphans == nil {
		return
	}
	w.orphans.Inc()
}

// ObserveDuration records end-to-end webhook handling time.
func (w *WebhookMetrics) ObserveDuration(d time.Duration) {
	if w == nil || w.duration == nil {
		return
	}
	w.duration.Observe(d.Seconds())
}
