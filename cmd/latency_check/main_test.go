package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestEndpoints(t *testing.T) {
	plain := endpoints("")
	if !slices.Contains(plain, "/health") {
		t.Errorf("endpoints without a session = %v, want /health", plain)
	}
	for _, ep := range plain {
		if strings.Contains(ep, "/api/session") {
			t.Errorf("session route %s listed without a session", ep)
		}
	}

	withSession := endpoints("abc")
	if !slices.Contains(withSession, "/api/session/abc/map/style") {
		t.Errorf("endpoints(abc) = %v", withSession)
	}
	if len(withSession) <= len(plain) {
		t.Error("a session should add routes")
	}
}

func TestAverage(t *testing.T) {
	if got := average(nil); got != 0 {
		t.Errorf("average(nil) = %v", got)
	}
	if got := average([]time.Duration{time.Millisecond, 3 * time.Millisecond}); got != 2*time.Millisecond {
		t.Errorf("average = %v, want 2ms", got)
	}
}

func TestCreateSessionAndMeasure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/session":
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "s1"})
		case r.URL.Path == "/health":
			_, _ = w.Write([]byte("OK"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	id, err := createSession(srv.URL)
	if err != nil || id != "s1" {
		t.Fatalf("createSession() = %q, %v", id, err)
	}

	ok := measureLatency(srv.URL + "/health")
	if ok.Error != nil || ok.StatusCode != http.StatusOK {
		t.Errorf("health = %d, %v", ok.StatusCode, ok.Error)
	}

	if missing := measureLatency(srv.URL + "/nope"); missing.Error == nil {
		t.Error("404 should be reported as an error")
	}
}
