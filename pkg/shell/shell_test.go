package shell

import (
	"reflect"
	"testing"

	"inatmap/pkg/bus"
	"inatmap/pkg/config"
)

func newTestShell(t *testing.T) (*Shell, *bus.Bus) {
	t.Helper()
	b := bus.New()
	s := New(b, config.DefaultConfig().Layout, nil)
	t.Cleanup(s.Close)
	return s, b
}

func TestTogglePanel_TwiceRestores(t *testing.T) {
	s, b := newTestShell(t)
	var states []bool
	b.Subscribe(bus.DashboardStateChange, func(e bus.Event) { states = append(states, e.IsVisible) })

	if !s.PanelVisible() {
		t.Fatal("panel should start visible")
	}
	s.TogglePanel()
	if s.PanelVisible() {
		t.Error("first toggle should hide the panel")
	}
	s.TogglePanel()
	if !s.PanelVisible() {
		t.Error("second toggle should show the panel again")
	}

	if want := []bool{false, true}; !reflect.DeepEqual(states, want) {
		t.Errorf("announced states = %v, want %v", states, want)
	}
}

func TestDashboardToggleEvent_FlipsOnce(t *testing.T) {
	s, b := newTestShell(t)
	var changes int
	b.Subscribe(bus.DashboardStateChange, func(bus.Event) { changes++ })

	b.Publish(bus.Event{Name: bus.DashboardToggle})
	if s.PanelVisible() || changes != 1 {
		t.Errorf("after one toggle: visible=%v changes=%d", s.PanelVisible(), changes)
	}

	b.Publish(bus.Event{Name: bus.DashboardToggle})
	if !s.PanelVisible() || changes != 2 {
		t.Errorf("after two toggles: visible=%v changes=%d", s.PanelVisible(), changes)
	}
}

func TestClose_StopsListening(t *testing.T) {
	s, b := newTestShell(t)
	s.Close()
	s.Close()

	b.Publish(bus.Event{Name: bus.DashboardToggle})
	if !s.PanelVisible() {
		t.Error("closed shell reacted to a toggle")
	}
	if b.Len() != 0 {
		t.Errorf("bus still has %d subscribers", b.Len())
	}
}

func TestLayout_MobileOverlay(t *testing.T) {
	s, _ := newTestShell(t)

	l := s.Layout(375, 667)
	if l.Mode != Mobile {
		t.Errorf("Mode = %v, want mobile", l.Mode)
	}
	if l.Map != (Rect{W: 375, H: 667}) {
		t.Errorf("Map = %+v, map keeps the full viewport", l.Map)
	}
	if l.Panel == nil {
		t.Fatal("visible panel has no rect")
	}
	if *l.Panel != (Rect{X: 10, Y: 10, W: 355, H: 647}) {
		t.Errorf("Panel = %+v", *l.Panel)
	}
	if !l.PanelOverlay || !l.Panel.Overlaps(l.Map) || l.PanelZ <= 0 {
		t.Errorf("panel should float above the map: overlay=%v z=%d", l.PanelOverlay, l.PanelZ)
	}
	if !l.SearchFullWidth {
		t.Error("search should span the viewport on mobile")
	}
	if l.ControlsTop != 65 {
		t.Errorf("ControlsTop = %d, want 65", l.ControlsTop)
	}
	if l.PanelCloseInline {
		t.Error("mobile panel is closed from the map control")
	}

	s.TogglePanel()
	l = s.Layout(375, 667)
	if l.Panel != nil {
		t.Errorf("hidden panel has rect %+v", *l.Panel)
	}
	if l.Map != (Rect{W: 375, H: 667}) {
		t.Errorf("Map = %+v", l.Map)
	}
}

func TestLayout_DesktopSideBySide(t *testing.T) {
	s, _ := newTestShell(t)

	l := s.Layout(1280, 800)
	if l.Mode != Desktop {
		t.Errorf("Mode = %v, want desktop", l.Mode)
	}
	if l.Panel == nil {
		t.Fatal("visible panel has no rect")
	}
	if *l.Panel != (Rect{W: 320, H: 800}) {
		t.Errorf("Panel = %+v", *l.Panel)
	}
	if l.Map != (Rect{X: 320, W: 960, H: 800}) {
		t.Errorf("Map = %+v", l.Map)
	}
	if l.Panel.Overlaps(l.Map) || l.PanelOverlay {
		t.Error("desktop panel sits beside the map")
	}
	if !l.PanelCloseInline {
		t.Error("desktop panel draws its own close button")
	}

	s.TogglePanel()
	l = s.Layout(1280, 800)
	if l.Panel != nil {
		t.Errorf("hidden panel has rect %+v", *l.Panel)
	}
	if l.Map != (Rect{W: 1280, H: 800}) {
		t.Errorf("Map = %+v, want the full viewport", l.Map)
	}
}

func TestLayout_Breakpoint(t *testing.T) {
	s, _ := newTestShell(t)
	if m := s.Layout(639, 800).Mode; m != Mobile {
		t.Errorf("639px = %v, want mobile", m)
	}
	if m := s.Layout(640, 800).Mode; m != Desktop {
		t.Errorf("640px = %v, want desktop", m)
	}
}

func TestSearchWidth(t *testing.T) {
	tests := []struct {
		w    int
		want int
	}{
		{640, 250},
		{700, 250},
		{701, 300},
		{799, 300},
		{800, 400},
		{1920, 400},
	}
	for _, tt := range tests {
		if got := SearchWidth(tt.w); got != tt.want {
			t.Errorf("SearchWidth(%d) = %d, want %d", tt.w, got, tt.want)
		}
	}
}
