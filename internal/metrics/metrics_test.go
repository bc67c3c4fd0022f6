package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// --- Helpers ---

// findMetric returns the metric in family name whose labels match want, or nil.
func findMetric(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if v, ok := want[lp.GetName()]; ok && v != lp.GetValue() {
					continue metrics
				}
			}
			return m
		}
	}
	return nil
}

// --- Counters ---

func TestCollectorCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.AuthStarted("twitter", "popup")
	c.AuthStarted("twitter", "popup")
	c.AuthStarted("twitter", "redirect")
	c.AuthCompleted("twitter")
	c.AuthFailed("invalid_session")

	t.Run("started by provider and transport", func(t *testing.T) {
		m := findMetric(t, reg, "tether_auth_started_total", map[string]string{"provider": "twitter", "transport": "popup"})
		if m == nil {
			t.Fatal("tether_auth_started_total{popup} not found")
		}
		if got := m.GetCounter().GetValue(); got != 2 {
			t.Errorf("started popup = %v, want 2", got)
		}
	})

	t.Run("completed", func(t *testing.T) {
		m := findMetric(t, reg, "tether_auth_completed_total", map[string]string{"provider": "twitter"})
		if m == nil || m.GetCounter().GetValue() != 1 {
			t.Errorf("completed = %v, want 1", m)
		}
	})

	t.Run("failed by reason", func(t *testing.T) {
		m := findMetric(t, reg, "tether_auth_failed_total", map[string]string{"reason": "invalid_session"})
		if m == nil || m.GetCounter().GetValue() != 1 {
			t.Errorf("failed = %v, want 1", m)
		}
	})
}

// --- Histogram ---

func TestCollectorProviderRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ProviderRequest("twitter", "exchange", 120*time.Millisecond)

	m := findMetric(t, reg, "tether_provider_request_seconds", map[string]string{"provider": "twitter", "stage": "exchange"})
	if m == nil {
		t.Fatal("tether_provider_request_seconds not found")
	}
	if got := m.GetHistogram().GetSampleCount(); got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

// --- Handler ---

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.AuthCompleted("twitter")

	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body, _ := io.ReadAll(w.Result().Body)
	if !strings.Contains(string(body), `tether_auth_completed_total{provider="twitter"} 1`) {
		t.Errorf("response missing completed counter:\n%s", body)
	}
}

// --- Nop ---

func TestNopDoesNotPanic(t *testing.T) {
	var r Recorder = Nop{}
	r.AuthStarted("p", "t")
	r.AuthCompleted("p")
	r.AuthFailed("x")
	r.ProviderRequest("p", "s", time.Second)
}
