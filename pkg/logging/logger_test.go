package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"inatmap/pkg/config"
)

func TestInit(t *testing.T) {
	tempDir := t.TempDir()
	serverLog := filepath.Join(tempDir, "server.log")
	requestLog := filepath.Join(tempDir, "requests.log")

	cfg := &config.LogConfig{
		Server: config.LogSettings{
			Path:  serverLog,
			Level: "DEBUG",
		},
		Requests: config.LogSettings{
			Path:  requestLog,
			Level: "INFO",
		},
	}

	prev := slog.Default()
	defer slog.SetDefault(prev)

	cleanup, err := Init(cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer cleanup()

	if _, err := os.Stat(serverLog); os.IsNotExist(err) {
		t.Error("Server log file not created")
	}
	if _, err := os.Stat(requestLog); os.IsNotExist(err) {
		t.Error("Request log file not created")
	}
	if RequestLogger == nil {
		t.Error("RequestLogger was not initialized")
	}

	slog.Info("Map mounted", "zoom", 2)
	if got := GlobalLogCapture.GetLastLine(); !strings.Contains(got, `msg="Map mounted"`) {
		t.Errorf("capture did not record last line, got %q", got)
	}
}

func TestRotatePaths(t *testing.T) {
	tempDir := t.TempDir()
	p := filepath.Join(tempDir, "server.log")
	if err := os.WriteFile(p, []byte("previous run"), 0o644); err != nil {
		t.Fatal(err)
	}

	rotatePaths(p, "")

	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Error("expected current log to be moved away")
	}
	old, err := os.ReadFile(p + ".old")
	if err != nil {
		t.Fatalf("expected .old file: %v", err)
	}
	if string(old) != "previous run" {
		t.Errorf("unexpected .old content %q", old)
	}
}

func TestSetupHandler_Levels(t *testing.T) {
	tests := []struct {
		level string
		debug bool
		warn  bool
	}{
		{"DEBUG", true, true},
		{"info", false, true},
		{"ERROR", false, false},
		{"bogus", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			h, f, err := setupHandler(filepath.Join(t.TempDir(), "x.log"), tt.level, false)
			if err != nil {
				t.Fatalf("setupHandler failed: %v", err)
			}
			defer f.Close()

			if got := h.Enabled(t.Context(), slog.LevelDebug); got != tt.debug {
				t.Errorf("debug enabled = %v, want %v", got, tt.debug)
			}
			if got := h.Enabled(t.Context(), slog.LevelWarn); got != tt.warn {
				t.Errorf("warn enabled = %v, want %v", got, tt.warn)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"TRACE": LevelTrace,
		"DEBUG": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"WARN":  slog.LevelWarn,
		"ERROR": slog.LevelError,
		"LOUD":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestTrace_OnlyAtTraceLevel(t *testing.T) {
	var buf strings.Builder
	debug := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	Trace(debug, "Network Request", "attempt", 1)
	if buf.Len() != 0 {
		t.Errorf("trace leaked at DEBUG: %q", buf.String())
	}

	trace := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: LevelTrace}))
	Trace(trace, "Network Request", "attempt", 1)
	if !strings.Contains(buf.String(), `msg="Network Request"`) {
		t.Errorf("trace missing at TRACE: %q", buf.String())
	}
}
