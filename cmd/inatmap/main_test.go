package main

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"inatmap/pkg/metrics"
)

func TestRun(t *testing.T) {
	dir := t.TempDir()
	tempConfig := `
server:
    address: localhost:0  # 0 lets OS choose free port
log:
    server:
        path: "` + filepath.ToSlash(filepath.Join(dir, "server.log")) + `"
        level: "debug"
    requests:
        path: "` + filepath.ToSlash(filepath.Join(dir, "requests.log")) + `"
        level: "info"
db:
    path: ":memory:"
`
	cfgPath := filepath.Join(dir, "inatmap.yaml")
	if err := os.WriteFile(cfgPath, []byte(tempConfig), 0o644); err != nil {
		t.Fatal(err)
	}

	// Cancels quickly to verify the startup sequence
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		t.Fatalf("run() error = %v", err)
	}
}

func TestRun_BadConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "inatmap.yaml")
	if err := os.WriteFile(cfgPath, []byte("map:\n    max_zoom: 25\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := run(context.Background(), cfgPath)
	if err == nil || !strings.Contains(err.Error(), "max_zoom") {
		t.Errorf("run() error = %v, want a max_zoom complaint", err)
	}
}

func TestLoggingMiddleware_RecordsStatus(t *testing.T) {
	m := metrics.New()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/session/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	h := loggingMiddleware(mux, m)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/session/abc", http.NoBody))
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}

	body := httptest.NewRecorder()
	m.Handler().ServeHTTP(body, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	out := body.Body.String()
	if !strings.Contains(out, `path="GET /api/session/{id}"`) {
		t.Error("request should be labelled by its route pattern")
	}
	if strings.Contains(out, "abc") {
		t.Error("session ids must not leak into metric labels")
	}
}

type hijackable struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackable) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

func TestStatusRecorder_Hijack(t *testing.T) {
	inner := &hijackable{ResponseRecorder: httptest.NewRecorder()}
	rec := &statusRecorder{ResponseWriter: inner, status: http.StatusOK}

	if _, _, err := rec.Hijack(); err != nil {
		t.Fatalf("Hijack() error = %v", err)
	}
	if !inner.hijacked {
		t.Error("Hijack was not passed through")
	}
	if rec.status != http.StatusSwitchingProtocols {
		t.Errorf("status = %d, want 101", rec.status)
	}

	plain := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := plain.Hijack(); err == nil {
		t.Error("Hijack on a plain writer should fail")
	}
}
