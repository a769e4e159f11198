package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"inatmap/internal/api"
	"inatmap/pkg/cache"
	"inatmap/pkg/config"
	"inatmap/pkg/db"
	"inatmap/pkg/db/maintenance"
	"inatmap/pkg/geocode"
	"inatmap/pkg/logging"
	"inatmap/pkg/metrics"
	"inatmap/pkg/request"
	"inatmap/pkg/session"
	"inatmap/pkg/tiles"
	"inatmap/pkg/tracker"
	"inatmap/pkg/version"
)

const defaultConfigPath = "configs/inatmap.yaml"

var (
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
	configPath = flag.String("config", defaultConfigPath, "Path to the config file")
)

func main() {
	flag.Parse()

	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Config file generated: %s\n", *configPath)
		return
	}

	if err := run(context.Background(), *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	appCfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("My iNat Map Started", "version", version.Version)

	dbConn, err := db.Init(appCfg.DB.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbConn.Close()

	ttl := time.Duration(appCfg.Geocoder.CacheTTL)
	go maintenance.Loop(ctx, dbConn, ttl, time.Duration(appCfg.DB.PruneInterval))

	tr := tracker.New()
	m := metrics.New()
	reqClient := initRequestClient(appCfg, dbConn, tr)
	mgr := session.NewManager(geocode.NewClient(reqClient, appCfg.Geocoder), appCfg, session.Deps{Tracker: tr, Metrics: m})
	go mgr.Run(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	shutdownFunc := func() {
		slog.Info("Shutdown requested via API")
		cancel()
	}

	srv := api.NewServer(appCfg.Server.Address,
		api.NewSessionHandler(mgr, time.Duration(appCfg.Request.Timeout)),
		api.NewTilesHandler(tiles.NewSet(appCfg.Tiles), int(appCfg.Map.MaxZoom)),
		api.NewConfigHandler(appCfg),
		api.NewStatsHandler(tr, mgr, reqClient),
		m,
		shutdownFunc,
	)
	srv.Handler = loggingMiddleware(srv.Handler, m)
	return runServerLifecycle(ctx, srv, quit)
}

// initRequestClient builds the outbound client, cached in SQLite unless the cache TTL is zero.
func initRequestClient(cfg *config.Config, d *db.DB, tr *tracker.Tracker) *request.Client {
	var c cache.Cacher = cache.Nop{}
	if ttl := time.Duration(cfg.Geocoder.CacheTTL); ttl > 0 {
		c = cache.NewSQLiteCache(d, ttl)
	}

	return request.New(c, tr, request.ClientConfig{
		Retries:   cfg.Request.Retries,
		Timeout:   time.Duration(cfg.Request.Timeout),
		Gap:       time.Duration(cfg.Request.Gap),
		BaseDelay: time.Duration(cfg.Request.Backoff.BaseDelay),
		MaxDelay:  time.Duration(cfg.Request.Backoff.MaxDelay),
	})
}

func runServerLifecycle(ctx context.Context, srv *http.Server, quit chan os.Signal) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
	}
	slog.Info("Starting server", "addr", ln.Addr().String())

	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// statusRecorder captures the response code. It passes Hijack through so the
// event stream can upgrade to a websocket.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func loggingMiddleware(next http.Handler, m *metrics.Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		// The route pattern keeps session ids out of the metric labels
		pattern := r.Pattern
		if pattern == "" {
			pattern = "unmatched"
		}
		m.ObserveHTTPRequest(r.Method, pattern, rec.status, elapsed)
		logging.RequestLogger.Info("Request Processed", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", elapsed)
	})
}
