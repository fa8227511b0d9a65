package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordWebhook(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.RecordWebhook("message", "success", 0.05)
	m.RecordWebhook("message", "success", 0.1)
	m.RecordWebhook("postback", "error", 0.01)

	got := testutil.ToFloat64(m.WebhookRequestsTotal.WithLabelValues("message", "success"))
	if got != 2 {
		t.Errorf("message/success count = %v, want 2", got)
	}
	got = testutil.ToFloat64(m.WebhookRequestsTotal.WithLabelValues("postback", "error"))
	if got != 1 {
		t.Errorf("postback/error count = %v, want 1", got)
	}
}

func TestRecordFlowOutcome(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.RecordFlowOutcome("create_group", "advance")
	m.RecordFlowOutcome("create_group", "reject")
	m.RecordFlowOutcome("create_group", "reject")

	if got := testutil.ToFloat64(m.FlowOutcomeTotal.WithLabelValues("create_group", "reject")); got != 2 {
		t.Errorf("create_group/reject count = %v, want 2", got)
	}
}

func TestRecordExternal_ZeroDuration(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	// Zero duration records the counter but skips the histogram
	m.RecordExternal("openweather", "error", 0)

	if got := testutil.ToFloat64(m.ExternalRequestsTotal.WithLabelValues("openweather", "error")); got != 1 {
		t.Errorf("external counter = %v, want 1", got)
	}
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	registry := prometheus.NewRegistry()
	New(registry)

	defer func() {
		if r := recover(); r == nil {
			t.Error("registering metrics twice on the same registry should panic")
		}
	}()
	New(registry)
}
