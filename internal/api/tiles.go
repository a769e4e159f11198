package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"inatmap/pkg/tiles"
)

// TilesHandler resolves the concrete tile URLs around a location, so the page
// can warm the browser cache before flying somewhere.
type TilesHandler struct {
	set     *tiles.Set
	maxZoom int
}

// NewTilesHandler creates a handler over set.
func NewTilesHandler(set *tiles.Set, maxZoom int) *TilesHandler {
	return &TilesHandler{set: set, maxZoom: maxZoom}
}

type tilesResponse struct {
	Mode        tiles.Mode      `json:"mode"`
	Attribution string          `json:"attribution"`
	Center      tiles.TileURL   `json:"center"`
	Tiles       []tiles.TileURL `json:"tiles"`
}

func (h *TilesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
	lon, err2 := strconv.ParseFloat(q.Get("lon"), 64)
	z, err3 := strconv.Atoi(q.Get("z"))
	if err1 != nil || err2 != nil || err3 != nil {
		writeError(w, fmt.Errorf("lat, lon and z are required numbers: %w", errBadRequest))
		return
	}
	if lat < -85.0511 || lat > 85.0511 || lon < -180 || lon > 180 {
		writeError(w, fmt.Errorf("location out of range: %w", errBadRequest))
		return
	}
	if z < 0 || z > h.maxZoom {
		writeError(w, fmt.Errorf("z must be within [0, %d]: %w", h.maxZoom, errBadRequest))
		return
	}

	mode := tiles.Street
	if m := q.Get("mode"); m != "" {
		parsed, err := tiles.ParseMode(m)
		if err != nil {
			writeError(w, fmt.Errorf("%w: %w", errBadRequest, err))
			return
		}
		mode = parsed
	}

	p := orb.Point{lon, lat}
	zoom := maptile.Zoom(z)
	writeJSON(w, http.StatusOK, tilesResponse{
		Mode:        mode,
		Attribution: h.set.For(mode).Attribution,
		Center:      h.set.URLFor(mode, p, zoom),
		Tiles:       h.set.Neighbourhood(mode, p, zoom),
	})
}
