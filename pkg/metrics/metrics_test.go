package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != 200 {
		t.Fatalf("GET /metrics status = %d", w.Code)
	}
	return w.Body.String()
}

func TestMetrics_Refreshed(t *testing.T) {
	m := New()
	m.Refreshed("auth", StatusOK, 12)
	m.Refreshed("auth", StatusFallback, 4)
	m.Refreshed("auth", StatusStale, 99)

	body := scrape(t, m)
	for _, want := range []string{
		`logdeck_refresh_total{domain="auth",status="ok"} 1`,
		`logdeck_refresh_total{domain="auth",status="stale"} 1`,
		// stale results never replace the record count
		`logdeck_records{domain="auth"} 4`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveFetch("system", 150*time.Millisecond)
	m.Exported("system", nil)
	m.Exported("system", errors.New("boom"))
	m.ClientConnected("system", 1)
	m.Ingested("system", 4)

	body := scrape(t, m)
	for _, want := range []string{
		`logdeck_fetch_duration_seconds_count{domain="system"} 1`,
		`logdeck_exports_total{domain="system",status="error"} 1`,
		`logdeck_websocket_clients{domain="system"} 1`,
		`logdeck_ingested_events_total{domain="system"} 4`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.Refreshed("auth", StatusOK, 1)
	m.ObserveFetch("auth", time.Second)
	m.Exported("auth", nil)
	m.ClientConnected("auth", 1)
	m.Ingested("auth", 3)
	if m.Registry() != nil {
		t.Error("nil Metrics returned a registry")
	}
}
