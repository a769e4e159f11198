package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inatmap/pkg/request"
	"inatmap/pkg/tracker"
)

type fixedCount int

func (c fixedCount) Len() int { return int(c) }

type fixedCooldowns map[string]request.CooldownState

func (c fixedCooldowns) Cooldowns() map[string]request.CooldownState { return c }

func TestStatsHandler(t *testing.T) {
	tr := tracker.New()
	tr.TrackCacheHit("nominatim.openstreetmap.org")
	tr.TrackCacheMiss("nominatim.openstreetmap.org")
	tr.TrackCacheMiss("nominatim.openstreetmap.org")
	tr.TrackCacheMiss("nominatim.openstreetmap.org")
	tr.TrackAPIFailure("nominatim.openstreetmap.org")
	tr.TrackStale("geocoder")

	until := time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)
	h := NewStatsHandler(tr, fixedCount(3), fixedCooldowns{
		"nominatim.openstreetmap.org": {Failures: 2, Until: until},
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/stats", http.NoBody))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp StatsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Sessions)

	nom := resp.Providers["nominatim.openstreetmap.org"]
	assert.Equal(t, int64(25), nom.HitRate)
	assert.Equal(t, int64(1), nom.APIFailures)
	assert.Equal(t, 2, nom.CooldownFailures)
	require.NotNil(t, nom.CooldownUntil)
	assert.True(t, until.Equal(*nom.CooldownUntil))

	geo := resp.Providers["geocoder"]
	assert.Equal(t, int64(1), geo.StaleDropped)
	assert.Nil(t, geo.CooldownUntil)
}
