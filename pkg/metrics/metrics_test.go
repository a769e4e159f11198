package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandler_NilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveHTTPRequest(http.MethodGet, "/health", http.StatusOK, time.Millisecond)
	m.ObserveSearch(SearchOK, time.Second)
	m.IncStyleToggle("satellite")
	m.IncPanelToggle()
	m.SetSessions(3)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "metrics unavailable") {
		t.Errorf("body = %q", rr.Body.String())
	}
}

func TestHandler_ExposesRegisteredMetrics(t *testing.T) {
	m := New()
	m.ObserveHTTPRequest(http.MethodPost, "/api/session", http.StatusCreated, 5*time.Millisecond)
	m.ObserveSearch(SearchOK, 200*time.Millisecond)
	m.ObserveSearch(SearchStale, 300*time.Millisecond)
	m.IncStyleToggle("satellite")
	m.IncPanelToggle()
	m.IncPanelToggle()
	m.SetSessions(2)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}

	body := rr.Body.String()
	for _, want := range []string{
		`inatmap_http_requests_total{method="POST",path="/api/session",status="201"} 1`,
		`inatmap_geocode_searches_total{outcome="ok"} 1`,
		`inatmap_geocode_searches_total{outcome="stale"} 1`,
		`inatmap_geocode_search_duration_seconds_count 2`,
		`inatmap_style_toggles_total{mode="satellite"} 1`,
		`inatmap_panel_toggles_total 2`,
		`inatmap_sessions_active 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %s", want)
		}
	}
}
