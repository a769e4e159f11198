package api

import (
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"inatmap/internal/ui"
	"inatmap/pkg/metrics"
	"inatmap/pkg/version"
)

// NewServer creates and configures the HTTP server.
// shutdown is called from the shutdown endpoint after the response is flushed.
func NewServer(addr string, sessions *SessionHandler, tilesH *TilesHandler, cfg *ConfigHandler, stats *StatsHandler, m *metrics.Metrics, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	// 1. Health and version
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /api/version", handleVersion)

	// 2. Diagnostics
	mux.Handle("GET /api/stats", stats)
	mux.HandleFunc("GET /api/log/latest", handleLatestLog)
	mux.Handle("GET /metrics", m.Handler())
	mux.Handle("GET /api/config", cfg)

	// 3. Page sessions
	mux.HandleFunc("POST /api/session", sessions.HandleCreate)
	mux.HandleFunc("GET /api/session/{id}", sessions.HandleGet)
	mux.HandleFunc("DELETE /api/session/{id}", sessions.HandleDelete)
	mux.HandleFunc("POST /api/session/{id}/panel/toggle", sessions.HandlePanelToggle)
	mux.HandleFunc("POST /api/session/{id}/panel/field", sessions.HandlePanelField)
	mux.HandleFunc("POST /api/session/{id}/map/dashboard", sessions.HandleMapDashboard)
	mux.HandleFunc("POST /api/session/{id}/map/style", sessions.HandleStyleToggle)
	mux.HandleFunc("GET /api/session/{id}/map/style", sessions.HandleStyle)
	mux.HandleFunc("GET /api/session/{id}/map/controls", sessions.HandleControls)
	mux.HandleFunc("POST /api/session/{id}/map/camera", sessions.HandleCamera)
	mux.HandleFunc("POST /api/session/{id}/prompt/click", sessions.HandlePromptClick)
	mux.HandleFunc("POST /api/session/{id}/prompt/login", sessions.HandlePromptLogin)
	mux.HandleFunc("GET /api/session/{id}/layout", sessions.HandleLayout)
	mux.HandleFunc("GET /api/session/{id}/geocode", sessions.HandleGeocode)
	mux.HandleFunc("POST /api/session/{id}/geocode/select", sessions.HandleGeocodeSelect)
	mux.HandleFunc("POST /api/session/{id}/geocode/clear", sessions.HandleGeocodeClear)
	mux.HandleFunc("GET /api/session/{id}/events", sessions.HandleEvents)

	// 4. Tiles
	mux.Handle("GET /api/tiles", tilesH)

	// 5. Shutdown (used by the desktop shell)
	mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		slog.Info("Graceful shutdown initiated via API")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("Shutting down...")); err != nil {
			slog.Error("Failed to write shutdown response", "error", err)
		}
		// Call shutdown in a goroutine to allow response to flush
		go func() {
			time.Sleep(100 * time.Millisecond)
			shutdown()
		}()
	})

	// 6. Static frontend (SPA) from the "dist" subdirectory of the embedded FS
	distFS, err := fs.Sub(ui.DistFS, "dist")
	if err != nil {
		panic(fmt.Sprintf("Failed to subtree dist from embedded assets: %v", err))
	}
	mux.Handle("/", http.FileServer(&spaFileSystem{root: http.FS(distFS)}))

	return &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		// The event stream sets its own write deadlines
		IdleTimeout: 60 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": version.Version})
}
