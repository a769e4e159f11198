package api

import (
	"net/http"

	"inatmap/pkg/config"
	"inatmap/pkg/panel"
	"inatmap/pkg/tiles"
)

// ConfigHandler exposes the read-only settings the page needs before it
// creates a session.
type ConfigHandler struct {
	resp ConfigResponse
}

// ConfigResponse represents the config API response.
type ConfigResponse struct {
	Map struct {
		Center  [2]float64 `json:"center"`
		Zoom    float64    `json:"zoom"`
		MinZoom float64    `json:"minZoom"`
		MaxZoom float64    `json:"maxZoom"`
	} `json:"map"`
	Geocoder struct {
		Placeholder string  `json:"placeholder"`
		MinLength   int     `json:"minLength"`
		Limit       int     `json:"limit"`
		FlyToZoom   float64 `json:"flyToZoom"`
	} `json:"geocoder"`
	Layout struct {
		Breakpoint    int `json:"breakpoint"`
		PanelWidth    int `json:"panelWidth"`
		OverlayMargin int `json:"overlayMargin"`
	} `json:"layout"`
	Tiles  map[tiles.Mode]tiles.Source `json:"tiles"`
	Fields []panel.Field               `json:"fields"`
}

// NewConfigHandler snapshots cfg. Changes need a restart.
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	var r ConfigResponse
	r.Map.Center = [2]float64{cfg.Map.CenterLon, cfg.Map.CenterLat}
	r.Map.Zoom = cfg.Map.Zoom
	r.Map.MinZoom = cfg.Map.MinZoom
	r.Map.MaxZoom = cfg.Map.MaxZoom
	r.Geocoder.Placeholder = cfg.Geocoder.Placeholder
	r.Geocoder.MinLength = cfg.Geocoder.MinLength
	r.Geocoder.Limit = cfg.Geocoder.Limit
	r.Geocoder.FlyToZoom = cfg.Geocoder.FlyToZoom
	r.Layout.Breakpoint = cfg.Layout.Breakpoint
	r.Layout.PanelWidth = cfg.Layout.PanelWidth
	r.Layout.OverlayMargin = cfg.Layout.OverlayMargin

	set := tiles.NewSet(cfg.Tiles)
	r.Tiles = map[tiles.Mode]tiles.Source{
		tiles.Street:    set.For(tiles.Street),
		tiles.Satellite: set.For(tiles.Satellite),
	}
	r.Fields = panel.Fields()
	return &ConfigHandler{resp: r}
}

func (h *ConfigHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.resp)
}
