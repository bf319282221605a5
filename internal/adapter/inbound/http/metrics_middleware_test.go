package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func statusHandler(code int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	})
}

func TestMetricsMiddleware_RecordsDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	handler := MetricsMiddleware(metrics)(statusHandler(http.StatusOK))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/guides/", nil))

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}

	var found bool
	for _, mf := range metricFamilies {
		if mf.GetName() != "docgate_request_duration_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "method" && lp.GetValue() == "GET" {
					if m.GetHistogram().GetSampleCount() != 1 {
						t.Errorf("expected 1 observation, got %d", m.GetHistogram().GetSampleCount())
					}
					found = true
				}
			}
		}
	}
	if !found {
		t.Error("expected to find request_duration_seconds metric with method=GET")
	}
}

func TestMetricsMiddleware_StatusLabels(t *testing.T) {
	tests := []struct {
		code  int
		label string
	}{
		{http.StatusOK, "ok"},
		{http.StatusFound, "ok"},
		{http.StatusSeeOther, "ok"},
		{http.StatusForbidden, "error"},
		{http.StatusBadGateway, "error"},
	}
	for _, tt := range tests {
		reg := prometheus.NewRegistry()
		metrics := NewMetrics(reg)

		handler := MetricsMiddleware(metrics)(statusHandler(tt.code))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/reference/schema", nil))

		var m dto.Metric
		if err := metrics.RequestsTotal.WithLabelValues("GET", tt.label).Write(&m); err != nil {
			t.Fatal(err)
		}
		if m.Counter.GetValue() != 1 {
			t.Errorf("status %d: %s count = %f, want 1", tt.code, tt.label, m.Counter.GetValue())
		}
	}
}

func TestMetricsMiddleware_FirstStatusWins(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	handler := MetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("body"))
		w.WriteHeader(http.StatusInternalServerError)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got := testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("GET", "ok")); got != 1 {
		t.Errorf("ok count = %v, want 1 (status after body is ignored)", got)
	}
}

func TestMetricsMiddleware_SkipsOperationalEndpoints(t *testing.T) {
	for _, path := range []string{"/metrics", "/health"} {
		reg := prometheus.NewRegistry()
		metrics := NewMetrics(reg)

		handler := MetricsMiddleware(metrics)(statusHandler(http.StatusOK))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))

		if n := testutil.CollectAndCount(metrics.RequestsTotal); n != 0 {
			t.Errorf("%s: recorded %d request series, want 0", path, n)
		}
	}
}
