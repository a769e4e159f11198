package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	DB       DBConfig       `yaml:"db"`
	Request  RequestConfig  `yaml:"request"`
	Geocoder GeocoderConfig `yaml:"geocoder"`
	Map      MapConfig      `yaml:"map"`
	Tiles    TilesConfig    `yaml:"tiles"`
	Layout   LayoutConfig   `yaml:"layout"`
	Session  SessionConfig  `yaml:"session"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// DBConfig holds database settings. The database only backs the geocoder response cache.
type DBConfig struct {
	Path          string   `yaml:"path"`
	PruneInterval Duration `yaml:"prune_interval"`
}

// RequestConfig holds outbound HTTP request settings.
type RequestConfig struct {
	Retries int           `yaml:"retries"`
	Timeout Duration      `yaml:"timeout"`
	Gap     Duration      `yaml:"gap"` // minimum spacing between requests to the same host
	Backoff BackoffConfig `yaml:"backoff"`
}

// BackoffConfig holds exponential backoff settings.
type BackoffConfig struct {
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`
}

// GeocoderConfig holds forward geocoding settings.
type GeocoderConfig struct {
	Endpoint    string   `yaml:"endpoint"`
	UserAgent   string   `yaml:"user_agent"`
	Email       string   `yaml:"email"`
	Limit       int      `yaml:"limit"`
	MinLength   int      `yaml:"min_length"` // characters typed before live search kicks in
	Placeholder string   `yaml:"placeholder"`
	FlyToZoom   float64  `yaml:"fly_to_zoom"`
	CacheTTL    Duration `yaml:"cache_ttl"` // 0 disables the response cache
}

// MapConfig holds the initial camera and zoom bounds.
type MapConfig struct {
	CenterLon float64 `yaml:"center_lon"`
	CenterLat float64 `yaml:"center_lat"`
	Zoom      float64 `yaml:"zoom"`
	MinZoom   float64 `yaml:"min_zoom"`
	MaxZoom   float64 `yaml:"max_zoom"`
}

// TilesConfig holds the raster tile sources.
type TilesConfig struct {
	TileSize  int          `yaml:"tile_size"`
	Street    SourceConfig `yaml:"street"`
	Satellite SourceConfig `yaml:"satellite"`
}

// SourceConfig is a set of URL templates plus attribution.
type SourceConfig struct {
	Templates   []string `yaml:"templates"`
	Attribution string   `yaml:"attribution"`
}

// LayoutConfig holds the responsive layout settings, in CSS pixels.
type LayoutConfig struct {
	Breakpoint    int `yaml:"breakpoint"`
	PanelWidth    int `yaml:"panel_width"`
	OverlayMargin int `yaml:"overlay_margin"`
}

// SessionConfig holds page session settings.
type SessionConfig struct {
	IdleTTL      Duration `yaml:"idle_ttl"`
	ReapInterval Duration `yaml:"reap_interval"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address: "localhost:5173",
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "./logs/requests.log",
				Level: "INFO",
			},
		},
		DB: DBConfig{
			Path:          "./data/inatmap.db",
			PruneInterval: Duration(6 * time.Hour),
		},
		Request: RequestConfig{
			Retries: 0,
			Timeout: Duration(30 * time.Second),
			Gap:     Duration(1 * time.Second),
			Backoff: BackoffConfig{
				BaseDelay: Duration(500 * time.Millisecond),
				MaxDelay:  Duration(10 * time.Second),
			},
		},
		Geocoder: GeocoderConfig{
			Endpoint:    "https://nominatim.openstreetmap.org",
			UserAgent:   "MyiNatMap/1.0",
			Limit:       6,
			MinLength:   3,
			Placeholder: "Search...",
			FlyToZoom:   12,
			CacheTTL:    Duration(Day),
		},
		Map: MapConfig{
			CenterLon: 0,
			CenterLat: 0,
			Zoom:      2,
			MinZoom:   2,
			MaxZoom:   18,
		},
		Tiles: TilesConfig{
			TileSize: 256,
			Street: SourceConfig{
				Templates: []string{
					"https://a.tile.openstreetmap.org/{z}/{x}/{y}.png",
					"https://b.tile.openstreetmap.org/{z}/{x}/{y}.png",
					"https://c.tile.openstreetmap.org/{z}/{x}/{y}.png",
				},
				Attribution: "© OpenStreetMap",
			},
			Satellite: SourceConfig{
				Templates: []string{
					"https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}",
				},
				Attribution: "© Esri, Maxar, Earthstar",
			},
		},
		Layout: LayoutConfig{
			Breakpoint:    640,
			PanelWidth:    320,
			OverlayMargin: 10,
		},
		Session: SessionConfig{
			IdleTTL:      Duration(30 * time.Minute),
			ReapInterval: Duration(1 * time.Minute),
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// If the file exists, it merges defaults with existing values but does NOT save back to disk.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	// .env next to the working directory is optional
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv fills empty values from the environment. Values are never written back to disk.
func applyEnv(cfg *Config) {
	if cfg.Geocoder.Email == "" {
		if v := os.Getenv("INATMAP_GEOCODER_EMAIL"); v != "" {
			cfg.Geocoder.Email = v
		}
	}
	if v := os.Getenv("INATMAP_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}

	// Paths may reference $VAR or %VAR%
	cfg.DB.Path = expandPath(cfg.DB.Path)
	cfg.Log.Server.Path = expandPath(cfg.Log.Server.Path)
	cfg.Log.Requests.Path = expandPath(cfg.Log.Requests.Path)
}

var windowsVarRe = regexp.MustCompile(`%([A-Za-z_][A-Za-z0-9_]*)%`)

func expandPath(p string) string {
	p = windowsVarRe.ReplaceAllString(p, "$${$1}")
	return os.ExpandEnv(p)
}

// Validate checks the house rules the viewer relies on.
func (c *Config) Validate() error {
	if c.Map.MinZoom < 2 {
		return fmt.Errorf("invalid map.min_zoom %.1f: must be at least 2", c.Map.MinZoom)
	}
	if c.Map.MaxZoom < 18 || c.Map.MaxZoom > 19 {
		return fmt.Errorf("invalid map.max_zoom %.1f: must be between 18 and 19", c.Map.MaxZoom)
	}
	if c.Map.Zoom < c.Map.MinZoom || c.Map.Zoom > c.Map.MaxZoom {
		return fmt.Errorf("invalid map.zoom %.1f: outside [%.1f, %.1f]", c.Map.Zoom, c.Map.MinZoom, c.Map.MaxZoom)
	}
	if len(c.Tiles.Street.Templates) == 0 || len(c.Tiles.Satellite.Templates) == 0 {
		return fmt.Errorf("tiles: street and satellite need at least one template each")
	}
	for _, tmpl := range append(append([]string{}, c.Tiles.Street.Templates...), c.Tiles.Satellite.Templates...) {
		if !validTemplate(tmpl) {
			return fmt.Errorf("invalid tile template '%s': must contain {z}, {x} and {y}", tmpl)
		}
	}
	if c.Layout.Breakpoint <= 0 || c.Layout.PanelWidth <= 0 {
		return fmt.Errorf("layout: breakpoint and panel_width must be positive")
	}
	if !strings.HasPrefix(c.Geocoder.Endpoint, "http://") && !strings.HasPrefix(c.Geocoder.Endpoint, "https://") {
		return fmt.Errorf("invalid geocoder.endpoint '%s': must be an http(s) URL", c.Geocoder.Endpoint)
	}
	return nil
}

func validTemplate(s string) bool {
	return strings.Contains(s, "{z}") && strings.Contains(s, "{x}") && strings.Contains(s, "{y}")
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# My iNat Map Configuration
# -------------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)

`)
	data = append(header, data...)

	reMaxZoom := regexp.MustCompile(`(?m)^(\s+)max_zoom:`)
	data = reMaxZoom.ReplaceAll(data, []byte("${1}# Range: 18 - 19\n${1}max_zoom:"))

	reTTL := regexp.MustCompile(`(?m)^(\s+)cache_ttl:`)
	data = reTTL.ReplaceAll(data, []byte("${1}# 0s disables the geocoder response cache\n${1}cache_ttl:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
