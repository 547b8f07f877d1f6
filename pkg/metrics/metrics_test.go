package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCronJobMetrics(reg)
	job := "test-job"
	metrics.ObserveDuration(job, 250*time.Millisecond)
	metrics.IncSuccess(job)
	metrics.IncFailure(job)
	metrics.AddSwept(job, 3)
	metrics.AddSwept(job, 0)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "voicecommerce_cron_job_success", "job", job); err != nil {
		t.Fatalf("fetch success: %v", err)
	} else if got != 1 {
		t.Fatalf("expected success=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "voicecommerce_cron_job_failure", "job", job); err != nil {
		t.Fatalf("fetch failure: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failure=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "voicecommerce_cron_swept_items_total", "job", job); err != nil {
		t.Fatalf("fetch swept: %v", err)
	} else if got != 3 {
		t.Fatalf("expected swept=3, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "voicecommerce_cron_job_duration_seconds", "job", job); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestOrchestratorMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrchestratorMetrics(reg)
	m.ObserveModelCall("ok", 120*time.Millisecond)
	m.IncLLMError("rate_limit")
	m.IncLLMError("rate_limit")
	m.IncRetry("rate_limit")
	m.ObserveDispatch("add_to_cart", true, 5*time.Millisecond)
	m.IncTransition("cart_review", false)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "voicecommerce_orchestrator_llm_errors_total", "category", "rate_limit"); err != nil || got != 2 {
		t.Fatalf("expected 2 rate limit errors, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "voicecommerce_session_state_transitions_total", "result", "rejected"); err != nil || got != 1 {
		t.Fatalf("expected 1 rejected transition, got %f (%v)", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "voicecommerce_orchestrator_function_dispatch_seconds", "function", "add_to_cart"); err != nil || got <= 0 {
		t.Fatalf("expected dispatch latency, got %f (%v)", got, err)
	}
}

func TestCommerceMetricsNilSafe(t *testing.T) {
	var m *CommerceMetrics
	m.IncOrder("pickup")
	m.IncPaymentOutcome("completed")
	m.AddCaptured("KRW", 9900)

	reg := prometheus.NewRegistry()
	m = NewCommerceMetrics(reg)
	m.AddCaptured("KRW", 9900)
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "voicecommerce_payments_captured_minor_units_total", "currency", "KRW"); err != nil || got != 9900 {
		t.Fatalf("expected 9900 captured, got %f (%v)", got, err)
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
