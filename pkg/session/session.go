// Package session composes the regions of one page load. Every mutation goes
// through a Session method and runs under the session lock, so event handlers
// run to completion one at a time.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"inatmap/pkg/bus"
	"inatmap/pkg/config"
	"inatmap/pkg/engine"
	"inatmap/pkg/geocode"
	"inatmap/pkg/mapsurface"
	"inatmap/pkg/panel"
	"inatmap/pkg/prompt"
	"inatmap/pkg/shell"
	"inatmap/pkg/tiles"
)

// Container is the element id the map mounts into.
const Container = "map"

// Session is one page.
type Session struct {
	ID      string
	Created time.Time

	mu       sync.Mutex
	bus      *bus.Bus
	shell    *shell.Shell
	surface  *mapsurface.Surface
	panel    *panel.Panel
	prompt   *prompt.Prompt
	viewport *[2]int
	logger   *slog.Logger
}

func newSession(id string, fwd geocode.Forwarder, cfg *config.Config, deps Deps) *Session {
	b := bus.New()
	return &Session{
		ID:      id,
		Created: time.Now(),
		bus:     b,
		shell:   shell.New(b, cfg.Layout, deps.Metrics),
		surface: mapsurface.New(b, geocode.NewSearcher(fwd, deps.Tracker, deps.Metrics), mapsurface.Config{
			Map:      cfg.Map,
			Geocoder: cfg.Geocoder,
			Tiles:    cfg.Tiles,
			Metrics:  deps.Metrics,
		}),
		panel:  panel.New(),
		prompt: prompt.New(),
		logger: slog.With("component", "session", "session_id", id),
	}
}

func (s *Session) mount() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.surface.Mount(Container); err != nil {
		return err
	}
	s.logger.Debug("Session mounted")
	return nil
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surface.Unmount()
	s.shell.Close()
	s.logger.Debug("Session closed", "age", time.Since(s.Created).Round(time.Second))
}

// TogglePanel is the panel's own close button or any shell-side toggle.
func (s *Session) TogglePanel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shell.TogglePanel()
	return s.shell.PanelVisible()
}

// ToggleDashboard is the map-side dashboard button.
func (s *Session) ToggleDashboard() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surface.ToggleDashboard()
	return s.shell.PanelVisible()
}

// ToggleStyle switches the tile source.
func (s *Session) ToggleStyle() (tiles.Mode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mode, err := s.surface.ToggleStyle()
	if err != nil {
		return mode, err
	}
	s.logger.Debug("Map style switched", "mode", mode)
	return mode, nil
}

// Style returns the map's style document.
func (s *Session) Style() (engine.Style, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surface.Style()
}

// Controls returns the rendered control corners.
func (s *Session) Controls() (map[engine.Position]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surface.RenderControls()
}

// SelectOption sets a select field on the panel.
func (s *Session) SelectOption(field, option string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.panel.Select(field, option)
}

// SetChecked sets a checkbox on the panel.
func (s *Session) SetChecked(field string, checked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.panel.SetChecked(field, checked)
}

// ClickPrompt delivers a click to the entry prompt.
func (s *Session) ClickPrompt(t prompt.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompt.Click(t)
}

// Login is the prompt's login button.
func (s *Session) Login() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompt.Login()
}

// Layout computes and remembers the page layout for a w by h viewport.
func (s *Session) Layout(w, h int) shell.Layout {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewport = &[2]int{w, h}
	return s.shell.Layout(w, h)
}

// Search geocodes query. The network call runs without the session lock so
// the page stays responsive; stale responses are dropped by the surface.
func (s *Session) Search(ctx context.Context, query string) (geocode.FeatureCollection, bool) {
	return s.surface.Search(ctx, query)
}

// SetCamera records the view the user moved the map to.
func (s *Session) SetCamera(center orb.Point, zoom float64) (engine.Camera, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surface.SetCamera(center, zoom)
}

// SelectResult picks a result from the current list by id.
func (s *Session) SelectResult(id string) (geocode.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surface.SelectByID(id)
}

// ClearSearch empties the search box.
func (s *Session) ClearSearch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surface.ClearInput()
}

// Watch forwards every bus event to h until the returned func is called.
// h runs under the session lock and must not call back into the session.
func (s *Session) Watch(h func(bus.Event)) func() {
	return s.bus.Tap(h)
}

// Snapshot is the whole page in one document.
type Snapshot struct {
	ID           string           `json:"id"`
	Created      time.Time        `json:"created"`
	PanelVisible bool             `json:"panelVisible"`
	Panel        panel.View       `json:"panel"`
	Prompt       prompt.View      `json:"prompt"`
	Map          mapsurface.State `json:"map"`
	Layout       *shell.Layout    `json:"layout,omitempty"`
}

// Snapshot returns the current page state.
func (s *Session) Snapshot(now time.Time) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:           s.ID,
		Created:      s.Created,
		PanelVisible: s.shell.PanelVisible(),
		Prompt:       s.prompt.View(),
		Map:          s.surface.State(),
	}
	mobile := false
	if s.viewport != nil {
		l := s.shell.Layout(s.viewport[0], s.viewport[1])
		snap.Layout = &l
		mobile = l.Mode == shell.Mobile
	}
	snap.Panel = s.panel.View(mobile, now)
	return snap
}
