// Package shell is the page's top-level layout: it owns panel visibility and
// decides how the map and the side panel share the viewport.
package shell

import (
	"log/slog"
	"sync"

	"inatmap/pkg/bus"
	"inatmap/pkg/config"
	"inatmap/pkg/metrics"
)

// Mode is the layout variant chosen from the viewport width.
type Mode string

const (
	Mobile  Mode = "mobile"
	Desktop Mode = "desktop"
)

// Search box widths for the desktop breakpoints.
const (
	searchWide   = 400
	searchMedium = 300
	searchNarrow = 250

	// Mobile top-right controls sit below the full-width search bar
	mobileControlsTop = 65

	overlayZ = 10
)

// Rect is a box in CSS pixels.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Overlaps reports whether r and o share any area.
func (r Rect) Overlaps(o Rect) bool {
	return r.X < o.X+o.W && o.X < r.X+r.W && r.Y < o.Y+o.H && o.Y < r.Y+r.H
}

// Layout is the geometry of the page for one viewport size.
type Layout struct {
	Mode         Mode  `json:"mode"`
	PanelVisible bool  `json:"panelVisible"`
	Map          Rect  `json:"map"`
	Panel        *Rect `json:"panel,omitempty"`
	// PanelOverlay is set when the panel floats above the map.
	PanelOverlay bool `json:"panelOverlay"`
	PanelZ       int  `json:"panelZ"`
	// SearchWidth is the search box width; zero with SearchFullWidth set means it spans the viewport.
	SearchWidth     int  `json:"searchWidth"`
	SearchFullWidth bool `json:"searchFullWidth"`
	ControlsTop     int  `json:"controlsTop"`
	// PanelCloseInline is set when the panel draws its own close button.
	PanelCloseInline bool `json:"panelCloseInline"`
}

// Shell coordinates the regions of one page.
type Shell struct {
	bus     *bus.Bus
	cfg     config.LayoutConfig
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	visible bool
	unsub   func()
}

// New creates a shell with the panel visible and starts listening for
// dashboard toggle requests. m may be nil.
func New(b *bus.Bus, cfg config.LayoutConfig, m *metrics.Metrics) *Shell {
	s := &Shell{
		bus:     b,
		cfg:     cfg,
		metrics: m,
		logger:  slog.With("component", "shell"),
		visible: true,
	}
	s.unsub = b.Subscribe(bus.DashboardToggle, func(bus.Event) { s.TogglePanel() })
	return s
}

// PanelVisible reports whether the side panel is shown.
func (s *Shell) PanelVisible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

// TogglePanel flips panel visibility and announces the new state.
func (s *Shell) TogglePanel() {
	s.mu.Lock()
	s.visible = !s.visible
	visible := s.visible
	s.mu.Unlock()

	s.metrics.IncPanelToggle()
	s.logger.Debug("Panel toggled", "visible", visible)
	s.bus.Publish(bus.Event{Name: bus.DashboardStateChange, IsVisible: visible})
}

// Close stops listening on the bus. Safe to call twice.
func (s *Shell) Close() {
	s.mu.Lock()
	unsub := s.unsub
	s.unsub = nil
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// Layout computes the page geometry for a viewport of w by h pixels.
func (s *Shell) Layout(w, h int) Layout {
	visible := s.PanelVisible()
	w, h = max(w, 0), max(h, 0)
	viewport := Rect{W: w, H: h}

	if w < s.cfg.Breakpoint {
		l := Layout{
			Mode:            Mobile,
			PanelVisible:    visible,
			Map:             viewport,
			SearchFullWidth: true,
			ControlsTop:     mobileControlsTop,
		}
		if visible {
			m := s.cfg.OverlayMargin
			l.Panel = &Rect{X: m, Y: m, W: max(w-2*m, 0), H: max(h-2*m, 0)}
			l.PanelOverlay = true
			l.PanelZ = overlayZ
		}
		return l
	}

	l := Layout{
		Mode:             Desktop,
		PanelVisible:     visible,
		Map:              viewport,
		SearchWidth:      SearchWidth(w),
		PanelCloseInline: true,
	}
	if visible {
		pw := min(s.cfg.PanelWidth, w)
		l.Panel = &Rect{W: pw, H: h}
		l.Map = Rect{X: pw, W: w - pw, H: h}
	}
	return l
}

// SearchWidth is the desktop search box width for a viewport w pixels wide.
func SearchWidth(w int) int {
	switch {
	case w <= 700:
		return searchNarrow
	case w < 800:
		return searchMedium
	default:
		return searchWide
	}
}
