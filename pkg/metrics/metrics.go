// Package metrics exposes the viewer's Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Search outcomes.
const (
	SearchOK    = "ok"
	SearchEmpty = "empty"
	SearchStale = "stale"
)

// Metrics holds the registry and every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry            *prometheus.Registry
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	searches            *prometheus.CounterVec
	searchDuration      prometheus.Histogram
	styleToggles        *prometheus.CounterVec
	panelToggles        prometheus.Counter
	sessionsActive      prometheus.Gauge
}

// New creates a fresh registry with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inatmap",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests served",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "inatmap",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	searches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inatmap",
		Name:      "geocode_searches_total",
		Help:      "Forward geocoding searches by outcome",
	}, []string{"outcome"})

	searchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "inatmap",
		Name:      "geocode_search_duration_seconds",
		Help:      "Time spent waiting for the geocoding service",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	styleToggles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inatmap",
		Name:      "style_toggles_total",
		Help:      "Tile source switches by resulting mode",
	}, []string{"mode"})

	panelToggles := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "inatmap",
		Name:      "panel_toggles_total",
		Help:      "Side panel visibility flips",
	})

	sessionsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "inatmap",
		Name:      "sessions_active",
		Help:      "Open page sessions",
	})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		searches,
		searchDuration,
		styleToggles,
		panelToggles,
		sessionsActive,
	)

	return &Metrics{
		registry:            registry,
		httpRequests:        httpRequests,
		httpRequestDuration: httpRequestDuration,
		searches:            searches,
		searchDuration:      searchDuration,
		styleToggles:        styleToggles,
		panelToggles:        panelToggles,
		sessionsActive:      sessionsActive,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// ObserveSearch records one geocoding search.
func (m *Metrics) ObserveSearch(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(outcome).Inc()
	m.searchDuration.Observe(duration.Seconds())
}

// IncStyleToggle counts a tile source switch to mode.
func (m *Metrics) IncStyleToggle(mode string) {
	if m == nil {
		return
	}
	m.styleToggles.WithLabelValues(mode).Inc()
}

// IncPanelToggle counts a panel visibility flip.
func (m *Metrics) IncPanelToggle() {
	if m == nil {
		return
	}
	m.panelToggles.Inc()
}

// SetSessions sets the open session gauge.
func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(n))
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
