package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/paulmach/orb"

	"inatmap/pkg/geocode"
	"inatmap/pkg/prompt"
	"inatmap/pkg/session"
)

// SessionHandler serves the page session endpoints.
type SessionHandler struct {
	mgr           *session.Manager
	searchTimeout time.Duration
	keepalive     time.Duration
	now           func() time.Time
}

// NewSessionHandler creates a handler over mgr. searchTimeout bounds one geocoding call.
func NewSessionHandler(mgr *session.Manager, searchTimeout time.Duration) *SessionHandler {
	if searchTimeout <= 0 {
		searchTimeout = 30 * time.Second
	}
	return &SessionHandler{mgr: mgr, searchTimeout: searchTimeout, keepalive: pingPeriod, now: time.Now}
}

func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.mgr.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return s, true
}

// HandleCreate starts a page session and returns its snapshot.
func (h *SessionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	s, err := h.mgr.Create(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.Snapshot(h.now()))
}

// HandleGet returns the session snapshot.
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot(h.now()))
}

// HandleDelete ends the session (page unload).
func (h *SessionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.mgr.Close(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type visibilityResponse struct {
	PanelVisible bool `json:"panelVisible"`
}

// HandlePanelToggle flips the side panel from the shell side.
func (h *SessionHandler) HandlePanelToggle(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, visibilityResponse{PanelVisible: s.TogglePanel()})
}

// HandleMapDashboard is the map-side dashboard button.
func (h *SessionHandler) HandleMapDashboard(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, visibilityResponse{PanelVisible: s.ToggleDashboard()})
}

// HandleStyleToggle switches the tile source and returns the new style.
func (h *SessionHandler) HandleStyleToggle(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	mode, err := s.ToggleStyle()
	if err != nil {
		writeError(w, err)
		return
	}
	st, err := s.Style()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mode": mode, "glyph": mode.Glyph(), "style": st})
}

// HandleStyle returns the engine style document.
func (h *SessionHandler) HandleStyle(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	st, err := s.Style()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleControls returns the control corners as HTML fragments.
func (h *SessionHandler) HandleControls(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	out, err := s.Controls()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type fieldRequest struct {
	Field   string  `json:"field"`
	Option  *string `json:"option,omitempty"`
	Checked *bool   `json:"checked,omitempty"`
}

// HandlePanelField changes one dashboard input.
func (h *SessionHandler) HandlePanelField(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req fieldRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	var err error
	switch {
	case req.Option != nil && req.Checked == nil:
		err = s.SelectOption(req.Field, *req.Option)
	case req.Checked != nil && req.Option == nil:
		err = s.SetChecked(req.Field, *req.Checked)
	default:
		err = fmt.Errorf("exactly one of option or checked is required: %w", errBadRequest)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot(h.now()).Panel.Selections)
}

type clickRequest struct {
	Target string `json:"target"`
}

// HandlePromptClick delivers a click to the entry prompt.
func (h *SessionHandler) HandlePromptClick(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req clickRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	t, err := prompt.ParseTarget(req.Target)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.ClickPrompt(t); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot(h.now()).Prompt)
}

// HandlePromptLogin records a login intent.
func (h *SessionHandler) HandlePromptLogin(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.Login()
	w.WriteHeader(http.StatusNoContent)
}

// HandleLayout computes the layout for ?w=&h=.
func (h *SessionHandler) HandleLayout(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	width, err1 := strconv.Atoi(r.URL.Query().Get("w"))
	height, err2 := strconv.Atoi(r.URL.Query().Get("h"))
	if err1 != nil || err2 != nil || width < 0 || height < 0 {
		writeError(w, fmt.Errorf("w and h must be non-negative integers: %w", errBadRequest))
		return
	}
	writeJSON(w, http.StatusOK, s.Layout(width, height))
}

type geocodeResponse struct {
	geocode.FeatureCollection
	Stale bool `json:"stale"`
}

// HandleGeocode runs a search for ?q=. Superseded responses come back flagged stale.
func (h *SessionHandler) HandleGeocode(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.searchTimeout)
	defer cancel()

	fc, fresh := s.Search(ctx, r.URL.Query().Get("q"))
	if !fresh {
		slog.Debug("Dropped stale geocode response", "session_id", s.ID)
	}
	writeJSON(w, http.StatusOK, geocodeResponse{FeatureCollection: fc, Stale: !fresh})
}

type selectRequest struct {
	ID string `json:"id"`
}

// HandleGeocodeSelect picks a result: the map flies there and drops a marker.
func (h *SessionHandler) HandleGeocodeSelect(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req selectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.SelectResult(req.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot(h.now()).Map)
}

// HandleGeocodeClear empties the search box (Esc).
func (h *SessionHandler) HandleGeocodeClear(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.ClearSearch()
	w.WriteHeader(http.StatusNoContent)
}

type cameraRequest struct {
	Center [2]float64 `json:"center"`
	Zoom   float64    `json:"zoom"`
}

// HandleCamera records where the user panned or zoomed to and returns the
// settled camera with the recomputed scale bar.
func (h *SessionHandler) HandleCamera(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req cameraRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.SetCamera(orb.Point(req.Center), req.Zoom); err != nil {
		writeError(w, err)
		return
	}
	st := s.Snapshot(h.now()).Map
	writeJSON(w, http.StatusOK, map[string]any{"camera": st.Camera, "scale": st.Scale})
}
