// Package tracker counts outbound request outcomes per provider.
package tracker

import (
	"sort"
	"sync"
	"sync/atomic"
)

// ProviderStats is a point-in-time copy of one provider's counters.
type ProviderStats struct {
	CacheHits     int64 `json:"cache_hits"`
	CacheMisses   int64 `json:"cache_misses"`
	APISuccess    int64 `json:"api_success"`
	APIFailures   int64 `json:"api_failures"`
	APIZeroResult int64 `json:"api_zero_result"`
	StaleDropped  int64 `json:"stale_dropped"`
}

type counters struct {
	cacheHits, cacheMisses  atomic.Int64
	apiSuccess, apiFailures atomic.Int64
	apiZero, staleDropped   atomic.Int64
}

func (c *counters) load() ProviderStats {
	return ProviderStats{
		CacheHits:     c.cacheHits.Load(),
		CacheMisses:   c.cacheMisses.Load(),
		APISuccess:    c.apiSuccess.Load(),
		APIFailures:   c.apiFailures.Load(),
		APIZeroResult: c.apiZero.Load(),
		StaleDropped:  c.staleDropped.Load(),
	}
}

// Tracker keys counters by provider: an upstream host, or a logical name such as "geocoder".
type Tracker struct {
	mu        sync.RWMutex
	providers map[string]*counters
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{providers: make(map[string]*counters)}
}

func (t *Tracker) get(provider string) *counters {
	t.mu.RLock()
	c, ok := t.providers[provider]
	t.mu.RUnlock()
	if ok {
		return c
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok = t.providers[provider]; ok {
		return c
	}
	c = &counters{}
	t.providers[provider] = c
	return c
}

func (t *Tracker) TrackCacheHit(provider string) { t.get(provider).cacheHits.Add(1) }
func (t *Tracker) TrackCacheMiss(provider string) { t.get(provider).cacheMisses.Add(1) }
func (t *Tracker) TrackAPISuccess(provider string) { t.get(provider).apiSuccess.Add(1) }
func (t *Tracker) TrackAPIFailure(provider string) { t.get(provider).apiFailures.Add(1) }

// TrackAPIZero records a successful call that produced no usable results.
func (t *Tracker) TrackAPIZero(provider string) { t.get(provider).apiZero.Add(1) }

// TrackStale records a response that arrived after a newer request was issued and was dropped.
func (t *Tracker) TrackStale(provider string) { t.get(provider).staleDropped.Add(1) }

// Snapshot copies every provider's counters.
func (t *Tracker) Snapshot() map[string]ProviderStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]ProviderStats, len(t.providers))
	for name, c := range t.providers {
		out[name] = c.load()
	}
	return out
}

// Providers returns the tracked provider names in sorted order.
func (t *Tracker) Providers() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.providers))
	for k := range t.providers {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
