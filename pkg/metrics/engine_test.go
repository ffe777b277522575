package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestEngineExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEngine(reg)

	m.ObserveTransition("pending", "accepted", "ok")
	m.ObserveTransition("pending", "on_the_way", "INVALID_TRANSITION")
	m.ObservePayout("pending", 30000)
	m.ObservePayout("pending", 2000)
	m.ObserveCashCollection("accepted")
	m.IncSettlementCreated()
	m.ObserveAggregation("settlement", 120*time.Millisecond)
	m.ObserveRequest("POST", "/api/v1/payouts", 201, 30*time.Millisecond)
	m.ObserveJob("outbox-retention", time.Second, nil)
	m.ObserveJob("outbox-retention", time.Second, fmt.Errorf("db down"))
	m.ObserveOutboxPublish("published")
	m.ObserveOutboxPublish("published")
	m.ObserveOutboxPublish("dead_letter")
	m.SetOutboxPending(7)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "marketplace_order_transitions_total", "result", "INVALID_TRANSITION"); err != nil || got != 1 {
		t.Fatalf("expected one rejected transition, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "marketplace_payouts_total", "status", "pending"); err != nil || got != 2 {
		t.Fatalf("expected two pending payouts, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "marketplace_payout_amount_cents_total", "status", "pending"); err != nil || got != 32000 {
		t.Fatalf("expected 32000 cents, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "marketplace_cash_collections_total", "result", "accepted"); err != nil || got != 1 {
		t.Fatalf("expected one cash collection, got %f (%v)", got, err)
	}
	if mf := findMetricFamily(mfs, "marketplace_settlements_created_total"); mf == nil || mf.GetMetric()[0].GetCounter().GetValue() != 1 {
		t.Fatalf("expected settlement counter of 1")
	}
	if got, err := fetchHistogramSum(mfs, "marketplace_aggregation_duration_seconds", "kind", "settlement"); err != nil || got <= 0 {
		t.Fatalf("expected aggregation sum > 0, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "marketplace_http_requests_total", "status", "201"); err != nil || got != 1 {
		t.Fatalf("expected one request sample, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "marketplace_maintenance_job_runs_total", "result", "failure"); err != nil || got != 1 {
		t.Fatalf("expected one failed job run, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "marketplace_outbox_publish_total", "result", "published"); err != nil || got != 2 {
		t.Fatalf("expected two published events, got %f (%v)", got, err)
	}
	if mf := findMetricFamily(mfs, "marketplace_outbox_pending_events"); mf == nil || mf.GetMetric()[0].GetGauge().GetValue() != 7 {
		t.Fatalf("expected pending gauge of 7")
	}
}

func TestTransitionWithoutSourceStatusIsLabelledUnknown(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEngine(reg)

	// A failed lookup never learns the order's current status.
	m.ObserveTransition("", "accepted", "NOT_FOUND")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "marketplace_order_transitions_total", "from", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected one transition from unknown, got %f (%v)", got, err)
	}
	if _, err := fetchCounterValue(mfs, "marketplace_order_transitions_total", "from", ""); err == nil {
		t.Fatalf("expected no sample with an empty from label")
	}
}

func TestNilEngineIsNoop(t *testing.T) {
	var m *Engine
	m.ObserveTransition("a", "b", "ok")
	m.ObservePayout("pending", 10)
	m.ObserveCashCollection("rejected")
	m.IncSettlementCreated()
	m.ObserveAggregation("balance", time.Second)
	m.ObserveRequest("GET", "", 200, time.Millisecond)
	m.ObserveJob("x", time.Second, nil)
	m.ObserveOutboxPublish("retry")
	m.SetOutboxPending(3)

	if NewEngine(nil) != nil {
		t.Fatalf("expected nil engine without a registerer")
	}
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
