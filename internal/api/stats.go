package api

import (
	"net/http"
	"runtime"
	"sync"
	"time"

	"inatmap/pkg/request"
	"inatmap/pkg/tracker"
)

// SessionCounter reports the number of open page sessions.
type SessionCounter interface {
	Len() int
}

// CooldownReporter reports providers that are being held back after failures.
type CooldownReporter interface {
	Cooldowns() map[string]request.CooldownState
}

type StatsHandler struct {
	tracker  *tracker.Tracker
	sessions SessionCounter
	cooldown CooldownReporter
	started  time.Time

	mu     sync.Mutex
	maxMem uint64
}

// NewStatsHandler creates the diagnostics handler. cooldown may be nil.
func NewStatsHandler(t *tracker.Tracker, sessions SessionCounter, cooldown CooldownReporter) *StatsHandler {
	return &StatsHandler{tracker: t, sessions: sessions, cooldown: cooldown, started: time.Now()}
}

type ProviderStatsDTO struct {
	CacheHits     int64 `json:"cache_hits"`
	CacheMisses   int64 `json:"cache_misses"`
	APISuccess    int64 `json:"api_success"`
	APIZeroResult int64 `json:"api_zero"`
	APIFailures   int64 `json:"api_errors"`
	StaleDropped  int64 `json:"stale_dropped"`
	HitRate       int64 `json:"hit_rate"`

	CooldownFailures int        `json:"cooldown_failures,omitempty"`
	CooldownUntil    *time.Time `json:"cooldown_until,omitempty"`
}

type ServerStats struct {
	MemoryMB    uint64 `json:"memory_mb"`
	MemoryMaxMB uint64 `json:"memory_max_mb"`
	Goroutines  int    `json:"goroutines"`
	UptimeSec   int64  `json:"uptime_sec"`
}

type StatsResponse struct {
	Server    ServerStats                 `json:"server"`
	Sessions  int                         `json:"sessions"`
	Providers map[string]ProviderStatsDTO `json:"providers"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snapshot := h.tracker.Snapshot()

	resp := StatsResponse{
		Server:    h.gatherServer(),
		Sessions:  h.sessions.Len(),
		Providers: make(map[string]ProviderStatsDTO, len(snapshot)),
	}

	var cooldowns map[string]request.CooldownState
	if h.cooldown != nil {
		cooldowns = h.cooldown.Cooldowns()
	}

	for provider, stats := range snapshot {
		totalCache := stats.CacheHits + stats.CacheMisses
		hitRate := int64(0)
		if totalCache > 0 {
			hitRate = (stats.CacheHits * 100) / totalCache
		}
		dto := ProviderStatsDTO{
			CacheHits:     stats.CacheHits,
			CacheMisses:   stats.CacheMisses,
			APISuccess:    stats.APISuccess,
			APIZeroResult: stats.APIZeroResult,
			APIFailures:   stats.APIFailures,
			StaleDropped:  stats.StaleDropped,
			HitRate:       hitRate,
		}
		if cd, ok := cooldowns[provider]; ok {
			until := cd.Until
			dto.CooldownFailures = cd.Failures
			dto.CooldownUntil = &until
		}
		resp.Providers[provider] = dto
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *StatsHandler) gatherServer() ServerStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	h.mu.Lock()
	if ms.Sys > h.maxMem {
		h.maxMem = ms.Sys
	}
	maxMem := h.maxMem
	h.mu.Unlock()

	return ServerStats{
		MemoryMB:    bToMb(ms.Sys),
		MemoryMaxMB: bToMb(maxMem),
		Goroutines:  runtime.NumGoroutine(),
		UptimeSec:   int64(time.Since(h.started).Seconds()),
	}
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
