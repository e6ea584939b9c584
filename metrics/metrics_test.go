package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	return m.Counter.GetValue()
}

func TestRecordRequest(t *testing.T) {
	tests := []struct {
		name       string
		tool       string
		duration   float64
		success    bool
		wantStatus string
	}{
		{
			name:       "successful request",
			tool:       "test_tool",
			duration:   0.5,
			success:    true,
			wantStatus: "success",
		},
		{
			name:       "failed request",
			tool:       "test_tool",
			duration:   1.0,
			success:    false,
			wantStatus: "error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RecordRequest(tt.tool, tt.duration, tt.success)

			counter, err := RequestsTotal.GetMetricWithLabelValues(tt.tool, tt.wantStatus)
			if err != nil {
				t.Fatalf("failed to get metric: %v", err)
			}
			if counterValue(t, counter) < 1 {
				t.Error("expected counter to be incremented")
			}
		})
	}
}

func TestRecordTransport(t *testing.T) {
	before := counterValue(t, WikiHTTPRequests.WithLabelValues("GET", "timeout"))
	RecordTransport("GET", "timeout", 0.2)
	after := counterValue(t, WikiHTTPRequests.WithLabelValues("GET", "timeout"))

	if after-before != 1 {
		t.Errorf("counter delta = %v, want 1", after-before)
	}
}

func TestRecordDiscovery(t *testing.T) {
	before := counterValue(t, DiscoveryTotal.WithLabelValues("html", "error"))
	RecordDiscovery("html", false)
	if got := counterValue(t, DiscoveryTotal.WithLabelValues("html", "error")); got-before != 1 {
		t.Errorf("counter delta = %v, want 1", got-before)
	}
}

func TestRecordCSRF(t *testing.T) {
	for _, result := range []string{"hit", "miss", "fetch_error"} {
		before := counterValue(t, CSRFTokens.WithLabelValues(result))
		RecordCSRF(result)
		if got := counterValue(t, CSRFTokens.WithLabelValues(result)); got-before != 1 {
			t.Errorf("%s: counter delta = %v, want 1", result, got-before)
		}
	}
}

func TestRecordWrite(t *testing.T) {
	before := counterValue(t, WritesTotal.WithLabelValues("update-page", "legacy", "success"))
	RecordWrite("update-page", "legacy", true)
	if got := counterValue(t, WritesTotal.WithLabelValues("update-page", "legacy", "success")); got-before != 1 {
		t.Errorf("counter delta = %v, want 1", got-before)
	}
}

func TestRequestInFlight(t *testing.T) {
	gauge := RequestInFlight.WithLabelValues("inflight_tool")
	gauge.Inc()
	gauge.Inc()
	gauge.Dec()

	var m dto.Metric
	if err := gauge.Write(&m); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if m.Gauge.GetValue() != 1 {
		t.Errorf("gauge = %v, want 1", m.Gauge.GetValue())
	}
}
