// Package mapsurface owns the map engine for one page: it mounts the engine
// with its controls, switches tile imagery and drives the search box.
package mapsurface

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/paulmach/orb"

	"inatmap/pkg/bus"
	"inatmap/pkg/config"
	"inatmap/pkg/engine"
	"inatmap/pkg/geocode"
	"inatmap/pkg/metrics"
	"inatmap/pkg/tiles"
)

const (
	sourceID = "osm"
	layerID  = "osm"

	layerMinZoom = 0
	layerMaxZoom = 19
	scaleWidth   = 100
)

var (
	ErrNotMounted    = errors.New("map surface is not mounted")
	ErrUnknownResult = errors.New("unknown search result")
	ErrBadCamera     = errors.New("camera outside the world")
)

// Config configures a Surface.
type Config struct {
	Map      config.MapConfig
	Geocoder config.GeocoderConfig
	Tiles    config.TilesConfig
	Metrics  *metrics.Metrics
}

// Surface is the map region of a page. It talks to the rest of the page only
// through the bus.
type Surface struct {
	bus      *bus.Bus
	searcher *geocode.Searcher
	tiles    *tiles.Set
	cfg      Config
	logger   *slog.Logger

	mu     sync.Mutex
	engine *engine.Map
	mode   tiles.Mode
	unsub  []func()
	search *geocoderControl
	dash   *buttonControl
	style  *buttonControl
	scale  *scaleControl

	// swap replaces the osm source and layer; tests substitute failing steps
	swap func(engine.Source, engine.Layer) error
}

// New creates an unmounted surface.
func New(b *bus.Bus, s *geocode.Searcher, cfg Config) *Surface {
	sf := &Surface{
		bus:      b,
		searcher: s,
		tiles:    tiles.NewSet(cfg.Tiles),
		cfg:      cfg,
		logger:   slog.With("component", "mapsurface"),
		mode:     tiles.Street,
	}
	sf.swap = sf.swapRaster
	return sf
}

// Mount creates the engine in container and registers every control.
// An empty container or an already mounted surface is a no-op.
func (s *Surface) Mount(container string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if container == "" || s.engine != nil {
		return nil
	}

	s.mode = tiles.Street
	m, err := engine.New(engine.Options{
		Container: container,
		Style: engine.Style{
			Version: 8,
			Sources: map[string]engine.Source{sourceID: s.rasterSource(s.mode)},
			Layers:  []engine.Layer{rasterLayer()},
		},
		Center:  orb.Point{s.cfg.Map.CenterLon, s.cfg.Map.CenterLat},
		Zoom:    s.cfg.Map.Zoom,
		MinZoom: s.cfg.Map.MinZoom,
		MaxZoom: s.cfg.Map.MaxZoom,
	})
	if err != nil {
		return fmt.Errorf("mount map: %w", err)
	}

	s.search = &geocoderControl{
		placeholder: s.cfg.Geocoder.Placeholder,
		minLength:   s.cfg.Geocoder.MinLength,
		limit:       s.cfg.Geocoder.Limit,
	}
	s.dash = newDashboardToggle()
	s.style = newStyleToggle(s.mode)
	s.scale = &scaleControl{maxWidth: scaleWidth}

	// The dashboard toggle goes first so it owns the first top-right slot
	controls := []struct {
		ctl engine.Control
		pos engine.Position
	}{
		{s.search, engine.TopLeft},
		{s.dash, engine.TopRight},
		{newGeolocate(), engine.TopRight},
		{s.style, engine.TopRight},
		{s.scale, engine.BottomLeft},
		{&navigationControl{}, engine.BottomRight},
	}
	for _, c := range controls {
		if err := m.AddControl(c.ctl, c.pos); err != nil {
			m.Remove()
			return fmt.Errorf("add control: %w", err)
		}
	}

	s.engine = m
	s.unsub = append(s.unsub, s.bus.Subscribe(bus.DashboardStateChange, s.onDashboardState))
	s.logger.Debug("Map mounted", "container", container)
	return nil
}

// Unmount releases the engine, its controls and bus listeners. Safe to call twice.
func (s *Surface) Unmount() {
	s.mu.Lock()
	m := s.engine
	unsub := s.unsub
	s.engine = nil
	s.unsub = nil
	s.mu.Unlock()

	for _, u := range unsub {
		u()
	}
	if m != nil {
		m.Remove()
		s.logger.Debug("Map unmounted")
	}
}

// Mounted reports whether the engine exists.
func (s *Surface) Mounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine != nil
}

func (s *Surface) rasterSource(m tiles.Mode) engine.Source {
	src := s.tiles.For(m)
	return engine.Source{Type: "raster", Tiles: src.Tiles, TileSize: src.TileSize, Attribution: src.Attribution}
}

func rasterLayer() engine.Layer {
	minZ, maxZ := float64(layerMinZoom), float64(layerMaxZoom)
	return engine.Layer{ID: layerID, Type: "raster", Source: sourceID, MinZoom: &minZ, MaxZoom: &maxZ}
}

// ToggleStyle swaps the base imagery. The osm layer and source are replaced as
// one unit; if any step fails the previous pair is restored.
func (s *Surface) ToggleStyle() (tiles.Mode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine == nil {
		return s.mode, ErrNotMounted
	}

	next := s.mode.Toggle()
	prevSrc, _ := s.engine.Source(sourceID)
	prevLayer, hadLayer := s.engine.Layer(layerID)
	if !hadLayer {
		prevLayer = rasterLayer()
	}

	if err := s.swap(s.rasterSource(next), rasterLayer()); err != nil {
		s.logger.Error("Style toggle failed, restoring previous source", "error", err)
		if rerr := s.swap(prevSrc, prevLayer); rerr != nil {
			return s.mode, errors.Join(err, rerr)
		}
		return s.mode, err
	}

	s.mode = next
	s.style.set(next.Glyph(), "Toggle map style")
	s.cfg.Metrics.IncStyleToggle(string(next))
	s.logger.Info("Tile source switched", "mode", next)
	return next, nil
}

func (s *Surface) swapRaster(src engine.Source, layer engine.Layer) error {
	if _, ok := s.engine.Layer(layerID); ok {
		if err := s.engine.RemoveLayer(layerID); err != nil {
			return err
		}
	}
	if _, ok := s.engine.Source(sourceID); ok {
		if err := s.engine.RemoveSource(sourceID); err != nil {
			return err
		}
	}
	if err := s.engine.AddSource(sourceID, src); err != nil {
		return err
	}
	return s.engine.AddLayer(layer)
}

// ToggleDashboard is the map-side dashboard button: it asks the shell to flip the panel.
func (s *Surface) ToggleDashboard() {
	s.bus.Publish(bus.Event{Name: bus.DashboardToggle})
}

func (s *Surface) onDashboardState(e bus.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dash == nil {
		return
	}
	if e.IsVisible {
		s.dash.set(glyphPanelVisible, labelHide)
	} else {
		s.dash.set(glyphPanelHidden, labelShow)
	}
}

// Search runs a forward geocode for query. The bool is false when a newer
// search superseded this one and its results were dropped.
func (s *Surface) Search(ctx context.Context, query string) (geocode.FeatureCollection, bool) {
	s.mu.Lock()
	if s.search != nil {
		s.search.setQuery(query)
	}
	s.mu.Unlock()

	// Results land in the box inside the searcher's sequence check
	return s.searcher.Search(ctx, query, func(fc geocode.FeatureCollection) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.search != nil {
			s.search.setResults(fc.Features)
		}
	})
}

// SelectResult flies to r, drops a marker on it and blurs the search input.
func (s *Surface) SelectResult(r geocode.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine == nil {
		return ErrNotMounted
	}
	if err := s.engine.FlyTo(r.Center, s.cfg.Geocoder.FlyToZoom); err != nil {
		return err
	}
	if err := s.engine.SetMarker(engine.Marker{ID: r.ID, Point: r.Center, Label: r.PlaceName}); err != nil {
		return err
	}
	s.search.choose(r)
	s.scale.update(s.engine.Camera())
	return nil
}

// SetCamera records where the user panned or zoomed to and refreshes the
// scale bar. Zoom is clamped to the map bounds.
func (s *Surface) SetCamera(center orb.Point, zoom float64) (engine.Camera, error) {
	if center.Lon() < -180 || center.Lon() > 180 || center.Lat() < -90 || center.Lat() > 90 {
		return engine.Camera{}, fmt.Errorf("%v: %w", center, ErrBadCamera)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine == nil {
		return engine.Camera{}, ErrNotMounted
	}
	if err := s.engine.FlyTo(center, zoom); err != nil {
		return engine.Camera{}, err
	}
	cam := s.engine.Camera()
	s.scale.update(cam)
	return cam, nil
}

// SelectByID selects a result from the current result list.
func (s *Surface) SelectByID(id string) (geocode.Result, error) {
	r, ok := s.searcher.Lookup(id)
	if !ok {
		return geocode.Result{}, fmt.Errorf("result %q: %w", id, ErrUnknownResult)
	}
	return r, s.SelectResult(r)
}

// ClearInput empties and blurs the search box and drops pending results.
func (s *Surface) ClearInput() {
	s.searcher.Reset()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.search != nil {
		s.search.clear()
	}
}

// Style returns the engine's style document.
func (s *Surface) Style() (engine.Style, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine == nil {
		return engine.Style{}, ErrNotMounted
	}
	return s.engine.Style(), nil
}

// RenderControls returns the HTML of every non-empty control corner.
func (s *Surface) RenderControls() (map[engine.Position]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine == nil {
		return nil, ErrNotMounted
	}
	return s.engine.RenderControls()
}

// SearchState is the search box as the page shows it.
type SearchState struct {
	Value       string           `json:"value"`
	Focused     bool             `json:"focused"`
	Placeholder string           `json:"placeholder"`
	MinLength   int              `json:"minLength"`
	Results     []geocode.Result `json:"results"`
}

// State is a snapshot of the surface.
type State struct {
	Mounted        bool            `json:"mounted"`
	Mode           tiles.Mode      `json:"mode"`
	Style          *engine.Style   `json:"style,omitempty"`
	Camera         *engine.Camera  `json:"camera,omitempty"`
	Markers        []engine.Marker `json:"markers"`
	Search         SearchState     `json:"search"`
	DashboardGlyph string          `json:"dashboardGlyph"`
	DashboardLabel string          `json:"dashboardLabel"`
	StyleGlyph     string          `json:"styleGlyph"`
	Scale          ScaleState      `json:"scale"`
}

// ScaleState is the scale bar text and its width in pixels.
type ScaleState struct {
	Label string `json:"label"`
	Width int    `json:"width"`
}

// State returns a snapshot for the page.
func (s *Surface) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		Mode:       s.mode,
		Markers:    []engine.Marker{},
		StyleGlyph: s.mode.Glyph(),
		Search: SearchState{
			Placeholder: s.cfg.Geocoder.Placeholder,
			MinLength:   s.cfg.Geocoder.MinLength,
			Results:     []geocode.Result{},
		},
	}
	if s.engine == nil {
		return st
	}

	style := s.engine.Style()
	cam := s.engine.Camera()
	st.Mounted = true
	st.Style = &style
	st.Camera = &cam
	st.Markers = append(st.Markers, s.engine.Markers()...)
	st.DashboardGlyph = s.dash.glyph
	st.DashboardLabel = s.dash.ariaLabel
	st.Search.Value = s.search.value
	st.Search.Focused = s.search.focused
	st.Search.Results = append(st.Search.Results, s.search.results...)
	st.Scale = ScaleState{Label: s.scale.label, Width: s.scale.width}
	return st
}
