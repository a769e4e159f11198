// Package engine models the browser map engine the viewer drives: a version 8
// style document (sources and layers), the camera, markers and the four control
// corners. The browser renders whatever this model holds.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"inatmap/pkg/logging"
)

var (
	ErrRemoved       = errors.New("map has been removed")
	ErrNoContainer   = errors.New("map container is required")
	ErrDuplicateID   = errors.New("duplicate id")
	ErrSourceMissing = errors.New("source does not exist")
	ErrSourceInUse   = errors.New("source is used by a layer")
	ErrLayerMissing  = errors.New("layer does not exist")
	ErrControlAdded  = errors.New("control already added")
	ErrNoControl     = errors.New("control not on map")
)

// Position is a control corner.
type Position string

const (
	TopLeft     Position = "top-left"
	TopRight    Position = "top-right"
	BottomLeft  Position = "bottom-left"
	BottomRight Position = "bottom-right"
)

// Positions lists the corners in render order.
var Positions = []Position{TopLeft, TopRight, BottomLeft, BottomRight}

// Source is a raster source specification.
type Source struct {
	Type        string   `json:"type"`
	Tiles       []string `json:"tiles"`
	TileSize    int      `json:"tileSize"`
	Attribution string   `json:"attribution,omitempty"`
}

// Layer is a style layer bound to a source.
type Layer struct {
	ID      string   `json:"id"`
	Type    string   `json:"type"`
	Source  string   `json:"source"`
	MinZoom *float64 `json:"minzoom,omitempty"`
	MaxZoom *float64 `json:"maxzoom,omitempty"`
}

// Style is the style document handed to the map engine.
type Style struct {
	Version int               `json:"version"`
	Sources map[string]Source `json:"sources"`
	Layers  []Layer           `json:"layers"`
}

// Camera is the current view.
type Camera struct {
	Center  orb.Point `json:"center"`
	Zoom    float64   `json:"zoom"`
	MinZoom float64   `json:"minZoom"`
	MaxZoom float64   `json:"maxZoom"`
}

// Marker is a pin dropped on the map.
type Marker struct {
	ID    string    `json:"id"`
	Point orb.Point `json:"point"`
	Label string    `json:"label,omitempty"`
}

// Control is a widget plugged into a map corner. OnAdd builds and returns the
// control's own DOM subtree; OnRemove tears it down again.
type Control interface {
	OnAdd(m *Map) *html.Node
	OnRemove(m *Map)
}

// Options configures a new Map.
type Options struct {
	Container string
	Style     Style
	Center    orb.Point
	Zoom      float64
	MinZoom   float64
	MaxZoom   float64
}

type mountedControl struct {
	ctl  Control
	pos  Position
	node *html.Node
}

// Map is one engine instance. It is released with Remove.
type Map struct {
	mu       sync.RWMutex
	sources  map[string]Source
	layers   []Layer
	camera   Camera
	markers  []Marker
	corners  map[Position]*html.Node
	controls []mountedControl
	removed  bool
	logger   *slog.Logger
}

// New creates a map bound to container with the given initial style.
func New(opts Options) (*Map, error) {
	if opts.Container == "" {
		return nil, ErrNoContainer
	}

	m := &Map{
		sources: make(map[string]Source),
		corners: make(map[Position]*html.Node),
		logger:  slog.With("component", "engine", "container", opts.Container),
	}
	for _, p := range Positions {
		m.corners[p] = Element(atom.Div, "class", "maplibregl-ctrl-"+string(p))
	}

	m.camera = Camera{MinZoom: opts.MinZoom, MaxZoom: opts.MaxZoom}
	m.camera.Center = opts.Center
	m.camera.Zoom = m.clampZoom(opts.Zoom)

	// Sources first so layers can resolve them
	names := make([]string, 0, len(opts.Style.Sources))
	for id := range opts.Style.Sources {
		names = append(names, id)
	}
	slices.Sort(names)
	for _, id := range names {
		if err := m.AddSource(id, opts.Style.Sources[id]); err != nil {
			return nil, fmt.Errorf("initial style: %w", err)
		}
	}
	for _, l := range opts.Style.Layers {
		if err := m.AddLayer(l); err != nil {
			return nil, fmt.Errorf("initial style: %w", err)
		}
	}

	m.logger.Debug("Map created", "sources", len(m.sources), "layers", len(m.layers))
	return m, nil
}

// AddSource registers a source under id.
func (m *Map) AddSource(id string, src Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.removed {
		return ErrRemoved
	}
	if _, ok := m.sources[id]; ok {
		return fmt.Errorf("source %q: %w", id, ErrDuplicateID)
	}
	src.Tiles = slices.Clone(src.Tiles)
	m.sources[id] = src
	logging.Trace(m.logger, "Source added", "id", id)
	return nil
}

// RemoveSource drops a source. It fails while any layer still references it.
func (m *Map) RemoveSource(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.removed {
		return ErrRemoved
	}
	if _, ok := m.sources[id]; !ok {
		return fmt.Errorf("source %q: %w", id, ErrSourceMissing)
	}
	for _, l := range m.layers {
		if l.Source == id {
			return fmt.Errorf("source %q used by layer %q: %w", id, l.ID, ErrSourceInUse)
		}
	}
	delete(m.sources, id)
	logging.Trace(m.logger, "Source removed", "id", id)
	return nil
}

// Source returns the source registered under id.
func (m *Map) Source(id string) (Source, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src, ok := m.sources[id]
	if ok {
		src.Tiles = slices.Clone(src.Tiles)
	}
	return src, ok
}

// AddLayer appends a layer on top. Its source must already exist.
func (m *Map) AddLayer(l Layer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.removed {
		return ErrRemoved
	}
	if m.layerIndex(l.ID) >= 0 {
		return fmt.Errorf("layer %q: %w", l.ID, ErrDuplicateID)
	}
	if _, ok := m.sources[l.Source]; !ok {
		return fmt.Errorf("layer %q needs source %q: %w", l.ID, l.Source, ErrSourceMissing)
	}
	m.layers = append(m.layers, l)
	logging.Trace(m.logger, "Layer added", "id", l.ID, "source", l.Source)
	return nil
}

// RemoveLayer drops a layer.
func (m *Map) RemoveLayer(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.removed {
		return ErrRemoved
	}
	i := m.layerIndex(id)
	if i < 0 {
		return fmt.Errorf("layer %q: %w", id, ErrLayerMissing)
	}
	m.layers = slices.Delete(m.layers, i, i+1)
	logging.Trace(m.logger, "Layer removed", "id", id)
	return nil
}

// Layer returns the layer with id.
func (m *Map) Layer(id string) (Layer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if i := m.layerIndex(id); i >= 0 {
		return m.layers[i], true
	}
	return Layer{}, false
}

func (m *Map) layerIndex(id string) int {
	return slices.IndexFunc(m.layers, func(l Layer) bool { return l.ID == id })
}

// Style returns a snapshot of the current style document.
func (m *Map) Style() Style {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Style{Version: 8, Sources: make(map[string]Source, len(m.sources)), Layers: slices.Clone(m.layers)}
	for id, src := range m.sources {
		src.Tiles = slices.Clone(src.Tiles)
		st.Sources[id] = src
	}
	return st
}

// Camera returns the current view.
func (m *Map) Camera() Camera {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.camera
}

// FlyTo moves the camera. zoom is clamped to the map's zoom bounds.
func (m *Map) FlyTo(center orb.Point, zoom float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.removed {
		return ErrRemoved
	}
	m.camera.Center = center
	m.camera.Zoom = m.clampZoom(zoom)
	return nil
}

func (m *Map) clampZoom(z float64) float64 {
	lo, hi := m.camera.MinZoom, m.camera.MaxZoom
	if hi <= 0 {
		hi = math.Inf(1)
	}
	return math.Min(math.Max(z, lo), hi)
}

// SetMarker replaces any existing marker with mk.
func (m *Map) SetMarker(mk Marker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.removed {
		return ErrRemoved
	}
	m.markers = []Marker{mk}
	return nil
}

// Markers returns the current markers.
func (m *Map) Markers() []Marker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.markers)
}

// AddControl mounts ctl in a corner. Controls keep registration order within a corner.
// OnAdd runs without the map lock held, so controls may query the map.
func (m *Map) AddControl(ctl Control, pos Position) error {
	m.mu.RLock()
	removed := m.removed
	_, ok := m.corners[pos]
	dup := slices.ContainsFunc(m.controls, func(mc mountedControl) bool { return mc.ctl == ctl })
	m.mu.RUnlock()

	switch {
	case removed:
		return ErrRemoved
	case !ok:
		return fmt.Errorf("unknown control position %q", pos)
	case dup:
		return ErrControlAdded
	}

	node := ctl.OnAdd(m)

	m.mu.Lock()
	defer m.mu.Unlock()
	if node != nil {
		m.corners[pos].AppendChild(node)
	}
	m.controls = append(m.controls, mountedControl{ctl: ctl, pos: pos, node: node})
	return nil
}

// RemoveControl unmounts ctl.
func (m *Map) RemoveControl(ctl Control) error {
	m.mu.Lock()
	i := slices.IndexFunc(m.controls, func(mc mountedControl) bool { return mc.ctl == ctl })
	if i < 0 {
		m.mu.Unlock()
		return ErrNoControl
	}
	mc := m.controls[i]
	m.controls = slices.Delete(m.controls, i, i+1)
	m.mu.Unlock()

	m.unmount(mc)
	return nil
}

func (m *Map) unmount(mc mountedControl) {
	mc.ctl.OnRemove(m)
	if mc.node != nil && mc.node.Parent != nil {
		m.logger.Warn("Control left its DOM attached after OnRemove", "position", mc.pos)
		Detach(mc.node)
	}
}

// Controls returns the controls in pos, in registration order.
func (m *Map) Controls(pos Position) []Control {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Control
	for _, mc := range m.controls {
		if mc.pos == pos {
			out = append(out, mc.ctl)
		}
	}
	return out
}

// ControlCount returns the number of mounted controls.
func (m *Map) ControlCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.controls)
}

// RenderControls serializes the controls of each non-empty corner to HTML.
// The corner element itself is left out; the page already has one.
func (m *Map) RenderControls() (map[Position]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.removed {
		return nil, ErrRemoved
	}
	out := make(map[Position]string, len(m.corners))
	for _, p := range Positions {
		corner := m.corners[p]
		if corner.FirstChild == nil {
			continue
		}
		var sb strings.Builder
		for c := corner.FirstChild; c != nil; c = c.NextSibling {
			s, err := Render(c)
			if err != nil {
				return nil, fmt.Errorf("render %s: %w", p, err)
			}
			sb.WriteString(s)
		}
		out[p] = sb.String()
	}
	return out, nil
}

// Remove releases the map: every control is unmounted, the style is cleared,
// and all later calls fail with ErrRemoved. Calling Remove twice is a no-op.
func (m *Map) Remove() {
	m.mu.Lock()
	if m.removed {
		m.mu.Unlock()
		return
	}
	m.removed = true
	controls := m.controls
	m.controls = nil
	m.mu.Unlock()

	for i := len(controls) - 1; i >= 0; i-- {
		m.unmount(controls[i])
	}

	m.mu.Lock()
	m.sources = map[string]Source{}
	m.layers = nil
	m.markers = nil
	m.mu.Unlock()

	m.logger.Debug("Map removed", "controls", len(controls))
}

