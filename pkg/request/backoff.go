package request

import (
	"context"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// CooldownState is the pause imposed on one provider.
type CooldownState struct {
	Failures int       `json:"failures"`
	Until    time.Time `json:"until"`
}

// Cooldown spaces out requests to a provider that has been failing or asked us
// to slow down. Each failure doubles the pause; each success walks it back one step.
// A Retry-After hint longer than the computed pause wins.
type Cooldown struct {
	mu        sync.Mutex
	providers map[string]*CooldownState
	baseDelay time.Duration
	maxDelay  time.Duration

	now    func() time.Time
	jitter func() float64 // in [0, 1)
}

// NewCooldown creates a cooldown tracker.
func NewCooldown(baseDelay, maxDelay time.Duration) *Cooldown {
	return &Cooldown{
		providers: make(map[string]*CooldownState),
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
		now:       time.Now,
		jitter:    rand.Float64,
	}
}

// Wait blocks until the provider may be called again or ctx is done.
func (c *Cooldown) Wait(ctx context.Context, provider string) error {
	c.mu.Lock()
	var until time.Time
	if st, ok := c.providers[provider]; ok {
		until = st.Until
	}
	now := c.now()
	c.mu.Unlock()

	d := until.Sub(now)
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Failure records a failed call. retryAfter is the server's hint, zero if none.
func (c *Cooldown) Failure(provider string, retryAfter time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.providers[provider]
	if !ok {
		st = &CooldownState{}
		c.providers[provider] = st
	}
	st.Failures++
	st.Until = c.now().Add(max(c.delay(st.Failures), retryAfter))
}

// Success records a successful call.
func (c *Cooldown) Success(provider string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.providers[provider]
	if !ok {
		return
	}
	if st.Failures > 0 {
		st.Failures--
	}
	if st.Failures == 0 {
		delete(c.providers, provider)
	}
}

// State returns the provider's current cooldown.
func (c *Cooldown) State(provider string) CooldownState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.providers[provider]; ok {
		return *st
	}
	return CooldownState{}
}

// Snapshot returns every provider that is still recovering.
func (c *Cooldown) Snapshot() map[string]CooldownState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]CooldownState, len(c.providers))
	for p, st := range c.providers {
		out[p] = *st
	}
	return out
}

// delay is baseDelay * 2^(failures-1), capped at maxDelay, plus up to 10% jitter.
func (c *Cooldown) delay(failures int) time.Duration {
	d := time.Duration(float64(c.baseDelay) * math.Pow(2, float64(failures-1)))
	if d > c.maxDelay {
		d = c.maxDelay
	}
	return d + time.Duration(c.jitter()*0.1*float64(d))
}

// parseRetryAfter reads a Retry-After header given as seconds or an HTTP date.
func parseRetryAfter(h string, now time.Time) time.Duration {
	h = strings.TrimSpace(h)
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil {
		return time.Duration(max(secs, 0)) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}
