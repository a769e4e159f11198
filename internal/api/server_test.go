package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inatmap/pkg/config"
	"inatmap/pkg/geocode"
	"inatmap/pkg/metrics"
	"inatmap/pkg/session"
	"inatmap/pkg/tiles"
	"inatmap/pkg/tracker"
)

type stubForwarder struct{}

func (stubForwarder) Forward(_ context.Context, q string) geocode.FeatureCollection {
	fc := geocode.Empty()
	if q == "paris" {
		fc.Features = append(fc.Features, geocode.Result{
			Type:      "Feature",
			ID:        "7444",
			PlaceName: "Paris, Île-de-France, France",
			Center:    orb.Point{2.35, 48.85},
		})
	}
	return fc
}

type testEnv struct {
	srv *httptest.Server
	mgr *session.Manager
}

func newTestEnv(t *testing.T, opts ...func(*SessionHandler)) *testEnv {
	t.Helper()
	cfg := config.DefaultConfig()
	tr := tracker.New()
	m := metrics.New()
	mgr := session.NewManager(stubForwarder{}, cfg, session.Deps{Tracker: tr, Metrics: m})

	sessions := NewSessionHandler(mgr, time.Second)
	for _, opt := range opts {
		opt(sessions)
	}
	server := NewServer("",
		sessions,
		NewTilesHandler(tiles.NewSet(cfg.Tiles), int(cfg.Map.MaxZoom)),
		NewConfigHandler(cfg),
		NewStatsHandler(tr, mgr, nil),
		m,
		func() {},
	)
	srv := httptest.NewServer(server.Handler)
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, mgr: mgr}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, r)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (e *testEnv) createSession(t *testing.T) session.Snapshot {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/session", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[session.Snapshot](t, resp)
}

func TestHealthAndVersion(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/version", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	v := decode[map[string]string](t, resp)
	assert.NotEmpty(t, v["version"])
}

func TestSessionLifecycle(t *testing.T) {
	e := newTestEnv(t)
	snap := e.createSession(t)

	assert.NotEmpty(t, snap.ID)
	assert.True(t, snap.PanelVisible)
	assert.True(t, snap.Prompt.Visible)
	assert.True(t, snap.Map.Mounted)
	assert.Equal(t, 1, e.mgr.Len())

	resp := e.do(t, http.MethodGet, "/api/session/"+snap.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, snap.ID, decode[session.Snapshot](t, resp).ID)

	resp = e.do(t, http.MethodDelete, "/api/session/"+snap.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 0, e.mgr.Len())

	resp = e.do(t, http.MethodGet, "/api/session/"+snap.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUnknownSession(t *testing.T) {
	e := newTestEnv(t)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/session/nope"},
		{http.MethodDelete, "/api/session/nope"},
		{http.MethodPost, "/api/session/nope/panel/toggle"},
		{http.MethodGet, "/api/session/nope/map/style"},
		{http.MethodGet, "/api/session/nope/geocode?q=paris"},
	} {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			resp := e.do(t, tc.method, tc.path, nil)
			assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		})
	}
}

func TestDashboardToggles(t *testing.T) {
	e := newTestEnv(t)
	id := e.createSession(t).ID

	resp := e.do(t, http.MethodPost, "/api/session/"+id+"/map/dashboard", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decode[visibilityResponse](t, resp).PanelVisible)

	resp = e.do(t, http.MethodPost, "/api/session/"+id+"/panel/toggle", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[visibilityResponse](t, resp).PanelVisible)

	resp = e.do(t, http.MethodGet, "/api/session/"+id+"/map/controls", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	controls := decode[map[string]string](t, resp)
	assert.Contains(t, controls["top-right"], "◀")
	assert.Contains(t, controls["top-right"], `aria-label="Hide Dashboard"`)
}

func TestStyleToggle(t *testing.T) {
	e := newTestEnv(t)
	id := e.createSession(t).ID

	resp := e.do(t, http.MethodPost, "/api/session/"+id+"/map/style", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Mode  tiles.Mode `json:"mode"`
		Glyph string     `json:"glyph"`
		Style struct {
			Sources map[string]json.RawMessage `json:"sources"`
			Layers  []struct {
				ID     string `json:"id"`
				Source string `json:"source"`
			} `json:"layers"`
		} `json:"style"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, tiles.Satellite, out.Mode)
	assert.Equal(t, tiles.Satellite.Glyph(), out.Glyph)
	require.Len(t, out.Style.Layers, 1)
	_, ok := out.Style.Sources[out.Style.Layers[0].Source]
	assert.True(t, ok, "layer must reference an existing source")
}

func TestCameraMove(t *testing.T) {
	e := newTestEnv(t)
	id := e.createSession(t).ID

	type cameraResponse struct {
		Camera struct {
			Center [2]float64 `json:"center"`
			Zoom   float64    `json:"zoom"`
		} `json:"camera"`
		Scale struct {
			Label string `json:"label"`
			Width int    `json:"width"`
		} `json:"scale"`
	}

	resp := e.do(t, http.MethodPost, "/api/session/"+id+"/map/camera",
		map[string]any{"center": []float64{0, 0}, "zoom": 12})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[cameraResponse](t, resp)
	assert.Equal(t, 12.0, out.Camera.Zoom)
	assert.Equal(t, "1 km", out.Scale.Label)
	assert.Equal(t, 52, out.Scale.Width)

	snap := decode[session.Snapshot](t, e.do(t, http.MethodGet, "/api/session/"+id, nil))
	require.NotNil(t, snap.Map.Camera)
	assert.Equal(t, 12.0, snap.Map.Camera.Zoom)
	assert.Equal(t, "1 km", snap.Map.Scale.Label)

	resp = e.do(t, http.MethodGet, "/api/session/"+id+"/map/controls", nil)
	controls := decode[map[string]string](t, resp)
	assert.Contains(t, controls["bottom-left"], "1 km")

	resp = e.do(t, http.MethodPost, "/api/session/"+id+"/map/camera",
		map[string]any{"center": []float64{200, 0}, "zoom": 3})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/session/"+id+"/map/camera",
		map[string]any{"centre": []float64{0, 0}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPanelField(t *testing.T) {
	e := newTestEnv(t)
	id := e.createSession(t).ID
	path := "/api/session/" + id + "/panel/field"

	resp := e.do(t, http.MethodPost, path, map[string]any{"field": "taxon", "option": "Birds"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Birds", decode[map[string]string](t, resp)["taxon"])

	resp = e.do(t, http.MethodPost, path, map[string]any{"field": "with_photos", "checked": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "true", decode[map[string]string](t, resp)["with_photos"])

	tests := []struct {
		name string
		body any
	}{
		{"UnknownField", map[string]any{"field": "colour", "option": "red"}},
		{"UnknownOption", map[string]any{"field": "taxon", "option": "Dragons"}},
		{"BothSet", map[string]any{"field": "taxon", "option": "Birds", "checked": true}},
		{"NeitherSet", map[string]any{"field": "taxon"}},
		{"ExtraKey", map[string]any{"field": "taxon", "option": "Birds", "x": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := e.do(t, http.MethodPost, path, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestPromptClicks(t *testing.T) {
	e := newTestEnv(t)
	id := e.createSession(t).ID
	path := "/api/session/" + id + "/prompt/click"

	resp := e.do(t, http.MethodPost, path, map[string]string{"target": "body"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[map[string]any](t, resp)["visible"].(bool))

	resp = e.do(t, http.MethodPost, path, map[string]string{"target": "window"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/session/"+id+"/prompt/login", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = e.do(t, http.MethodPost, path, map[string]string{"target": "backdrop"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decode[map[string]any](t, resp)["visible"].(bool))
}

func TestLayout(t *testing.T) {
	e := newTestEnv(t)
	id := e.createSession(t).ID

	resp := e.do(t, http.MethodGet, "/api/session/"+id+"/layout?w=390&h=844", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	l := decode[map[string]any](t, resp)
	assert.Equal(t, true, l["panelOverlay"])
	assert.Equal(t, true, l["searchFullWidth"])

	resp = e.do(t, http.MethodGet, "/api/session/"+id+"/layout?w=1440&h=900", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	l = decode[map[string]any](t, resp)
	assert.Equal(t, false, l["panelOverlay"])
	assert.Equal(t, float64(400), l["searchWidth"])

	for _, q := range []string{"", "?w=abc&h=1", "?w=-1&h=10"} {
		resp = e.do(t, http.MethodGet, "/api/session/"+id+"/layout"+q, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestGeocodeFlow(t *testing.T) {
	e := newTestEnv(t)
	id := e.createSession(t).ID

	resp := e.do(t, http.MethodGet, "/api/session/"+id+"/geocode?q=paris", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fc struct {
		Type     string           `json:"type"`
		Features []geocode.Result `json:"features"`
		Stale    bool             `json:"stale"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	assert.False(t, fc.Stale)
	require.Len(t, fc.Features, 1)

	resp = e.do(t, http.MethodPost, "/api/session/"+id+"/geocode/select", map[string]string{"id": "nope"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/session/"+id+"/geocode/select", map[string]string{"id": fc.Features[0].ID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var state struct {
		Camera struct {
			Center [2]float64 `json:"center"`
			Zoom   float64    `json:"zoom"`
		} `json:"camera"`
		Markers []json.RawMessage `json:"markers"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	assert.InDelta(t, 2.35, state.Camera.Center[0], 1e-9)
	assert.InDelta(t, 48.85, state.Camera.Center[1], 1e-9)
	assert.Len(t, state.Markers, 1)

	resp = e.do(t, http.MethodPost, "/api/session/"+id+"/geocode/clear", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestGeocodeEmptyQuery(t *testing.T) {
	e := newTestEnv(t)
	id := e.createSession(t).ID

	resp := e.do(t, http.MethodGet, "/api/session/"+id+"/geocode?q=", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Empty(t, body["features"])
}

func TestTilesHandler(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodGet, "/api/tiles?lat=48.85&lon=2.35&z=10&mode=satellite", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out tilesResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, tiles.Satellite, out.Mode)
	assert.Contains(t, out.Attribution, "Esri")
	assert.Len(t, out.Tiles, 9)

	for _, q := range []string{"lat=1&lon=2", "lat=91&lon=0&z=3", "lat=0&lon=0&z=30", "lat=0&lon=0&z=3&mode=terrain"} {
		resp = e.do(t, http.MethodGet, "/api/tiles?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestConfigAndStats(t *testing.T) {
	e := newTestEnv(t)
	e.createSession(t)

	resp := e.do(t, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cfg := decode[ConfigResponse](t, resp)
	assert.Equal(t, 18.0, cfg.Map.MaxZoom)
	assert.Equal(t, "Search...", cfg.Geocoder.Placeholder)
	assert.NotEmpty(t, cfg.Fields)

	resp = e.do(t, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decode[StatsResponse](t, resp)
	assert.Equal(t, 1, stats.Sessions)
	assert.Positive(t, stats.Server.Goroutines)

	resp = e.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "inatmap_sessions_active 1")
}

func TestSPAFallback(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	assert.True(t, strings.Contains(string(raw), "My iNat Map"))

	resp = e.do(t, http.MethodGet, "/observations/nearby", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/assets/missing.js", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/nothing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestErrorStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, errorStatus(session.ErrNotFound))
	assert.Equal(t, http.StatusBadRequest, errorStatus(errBadRequest))
	assert.Equal(t, http.StatusInternalServerError, errorStatus(io.ErrUnexpectedEOF))
}
