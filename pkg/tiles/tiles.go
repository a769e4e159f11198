// Package tiles holds the raster imagery sources behind the map and expands
// their URL templates for a given tile.
package tiles

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"inatmap/pkg/config"
)

// Mode selects the active base imagery.
type Mode string

const (
	Street    Mode = "street"
	Satellite Mode = "satellite"
)

// Toggle returns the other mode. Toggling twice yields the original mode.
func (m Mode) Toggle() Mode {
	if m == Satellite {
		return Street
	}
	return Satellite
}

// Glyph is the style button icon shown while m is active.
func (m Mode) Glyph() string {
	if m == Satellite {
		return "🗻"
	}
	return "🛣️"
}

// ParseMode accepts "street" or "satellite".
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case Street:
		return Street, nil
	case Satellite:
		return Satellite, nil
	}
	return "", fmt.Errorf("unknown tile mode %q", s)
}

// Source is a raster tile source: URL templates plus metadata.
type Source struct {
	Tiles       []string `json:"tiles"`
	TileSize    int      `json:"tileSize"`
	Attribution string   `json:"attribution"`
}

// Set holds the street and satellite sources.
type Set struct {
	street    Source
	satellite Source
}

// NewSet builds the sources from configuration.
func NewSet(cfg config.TilesConfig) *Set {
	size := cfg.TileSize
	if size <= 0 {
		size = 256
	}
	return &Set{
		street: Source{
			Tiles:       slices.Clone(cfg.Street.Templates),
			TileSize:    size,
			Attribution: cfg.Street.Attribution,
		},
		satellite: Source{
			Tiles:       slices.Clone(cfg.Satellite.Templates),
			TileSize:    size,
			Attribution: cfg.Satellite.Attribution,
		},
	}
}

// DefaultSet returns the built-in OpenStreetMap / Esri sources.
func DefaultSet() *Set {
	return NewSet(config.DefaultConfig().Tiles)
}

// For returns a copy of the source for mode; callers may not mutate the set through it.
func (s *Set) For(m Mode) Source {
	src := s.street
	if m == Satellite {
		src = s.satellite
	}
	src.Tiles = slices.Clone(src.Tiles)
	return src
}

// Expand fills a {z}/{x}/{y} template for one tile.
func Expand(template string, t maptile.Tile) string {
	return strings.NewReplacer(
		"{z}", strconv.FormatUint(uint64(t.Z), 10),
		"{x}", strconv.FormatUint(uint64(t.X), 10),
		"{y}", strconv.FormatUint(uint64(t.Y), 10),
	).Replace(template)
}

// TileURL is a concrete tile address.
type TileURL struct {
	Z   uint32 `json:"z"`
	X   uint32 `json:"x"`
	Y   uint32 `json:"y"`
	URL string `json:"url"`
}

// URLFor resolves the tile covering p at zoom for mode. Mirrors are picked
// round-robin by tile coordinates so neighbouring tiles spread over subdomains.
func (s *Set) URLFor(m Mode, p orb.Point, zoom maptile.Zoom) TileURL {
	t := maptile.At(p, zoom)
	src := s.For(m)
	tmpl := src.Tiles[int((t.X+t.Y)%uint32(len(src.Tiles)))]
	return TileURL{Z: uint32(t.Z), X: t.X, Y: t.Y, URL: Expand(tmpl, t)}
}

// Neighbourhood returns the tile at p plus its eight neighbours, clipped at the
// world edge vertically and wrapped horizontally.
func (s *Set) Neighbourhood(m Mode, p orb.Point, zoom maptile.Zoom) []TileURL {
	center := maptile.At(p, zoom)
	src := s.For(m)
	n := uint32(1) << uint32(zoom)

	var out []TileURL
	seen := make(map[maptile.Tile]bool)
	for dy := -1; dy <= 1; dy++ {
		y := int64(center.Y) + int64(dy)
		if y < 0 || y >= int64(n) {
			continue
		}
		for dx := -1; dx <= 1; dx++ {
			x := (int64(center.X) + int64(dx) + int64(n)) % int64(n)
			t := maptile.New(uint32(x), uint32(y), zoom)
			if seen[t] {
				continue
			}
			seen[t] = true
			tmpl := src.Tiles[int((t.X+t.Y)%uint32(len(src.Tiles)))]
			out = append(out, TileURL{Z: uint32(zoom), X: t.X, Y: t.Y, URL: Expand(tmpl, t)})
		}
	}
	return out
}
