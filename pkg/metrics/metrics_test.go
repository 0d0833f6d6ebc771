package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestJobMetricsNilSafe(t *testing.T) {
	var m *JobMetrics
	m.IncSuccess("x")
	m.IncFailure("x")
	m.ObserveDuration("x", time.Second)

	unregistered := NewJobMetrics(nil)
	unregistered.IncSuccess("x")
}

func TestWebhookMetricsCountsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWebhookMetrics(reg)

	m.IncEvent("accepted", "payment_succeeded")
	m.IncEvent("accepted", "payment_succeeded")
	m.IncEvent("duplicate", "payment_succeeded")
	m.IncOrphan()
	m.ObserveDuration(50 * time.Millisecond)

	if got := testutil.ToFloat64(m.events.WithLabelValues("accepted", "payment_succeeded")); got != 2 {
		t.Fatalf("expected 2 accepted, got %v", got)
	}
	if got := testutil.ToFloat64(m.orphans); got != 1 {
		t.Fatalf("expected 1 orphan, got %v", got)
	}
}

func TestNormalizeLabel(t *testing.T) {
	if normalizeLabel("") != "unknown" {
		t.Fatal("empty label must normalize to unknown")
	}
	if normalizeLabel("ok") != "ok" {
		t.Fatal("labels pass through")
	}
}
